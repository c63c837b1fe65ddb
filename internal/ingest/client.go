package ingest

import (
	"context"
	"errors"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

// Locations names the four pipeline outputs read every cycle.
type Locations struct {
	Summary     string
	Intercepted string
	Intrusion   string
	Timeline    string
}

// Each returns the locations keyed by source name.
func (l Locations) Each() map[string]string {
	return map[string]string{
		SourceSummary:     l.Summary,
		SourceIntercepted: l.Intercepted,
		SourceIntrusion:   l.Intrusion,
		SourceTimeline:    l.Timeline,
	}
}

// URIs returns the four locations in a fixed order.
func (l Locations) URIs() []string {
	return []string{l.Summary, l.Intercepted, l.Intrusion, l.Timeline}
}

// Client reads and parses the dashboard sources. Each method is one
// independent source read; failures are *FetchError or *ParseError.
type Client struct {
	fetcher Fetcher
	parser  *Parser
	loc     Locations
}

// NewClient builds a Client. A nil parser uses NewParser().
func NewClient(f Fetcher, p *Parser, loc Locations) *Client {
	if p == nil {
		p = NewParser()
	}
	return &Client{fetcher: f, parser: p, loc: loc}
}

// Locations returns the configured source locations.
func (c *Client) Locations() Locations { return c.loc }

// Summary reads the counter object.
func (c *Client) Summary(ctx context.Context) (telemetry.SummaryMetrics, error) {
	raw, err := c.fetch(ctx, SourceSummary, c.loc.Summary)
	if err != nil {
		return nil, err
	}
	return c.parser.ParseSummary(raw)
}

// InterceptEvents reads the proxy event array.
func (c *Client) InterceptEvents(ctx context.Context) ([]telemetry.InterceptEvent, error) {
	raw, err := c.fetch(ctx, SourceIntercepted, c.loc.Intercepted)
	if err != nil {
		return nil, err
	}
	return c.parser.ParseInterceptEvents(raw)
}

// IntrusionEvents reads the sensor alert array.
func (c *Client) IntrusionEvents(ctx context.Context) ([]telemetry.IntrusionEvent, error) {
	raw, err := c.fetch(ctx, SourceIntrusion, c.loc.Intrusion)
	if err != nil {
		return nil, err
	}
	return c.parser.ParseIntrusionEvents(raw)
}

// Timeline reads the attack start/stop log.
func (c *Client) Timeline(ctx context.Context) ([]telemetry.TimelineMark, error) {
	raw, err := c.fetch(ctx, SourceTimeline, c.loc.Timeline)
	if err != nil {
		return nil, err
	}
	return c.parser.ParseTimeline(raw)
}

func (c *Client) fetch(ctx context.Context, source, uri string) ([]byte, error) {
	if uri == "" {
		return nil, &FetchError{Source: source, URI: uri, Err: errors.New("no location configured")}
	}
	raw, err := c.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, &FetchError{Source: source, URI: uri, Err: err}
	}
	return raw, nil
}
