package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

// Source names used in errors, logs and status messages.
const (
	SourceSummary     = "summary"
	SourceIntercepted = "intercepted-events"
	SourceIntrusion   = "intrusion-events"
	SourceTimeline    = "attack-timeline"
)

var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Parser turns raw source content into telemetry values. It never fails on
// missing or mistyped fields inside a record, only on content that is not
// the declared top-level shape.
type Parser struct {
	// Delimiter separates the timeline columns. Defaults to ",".
	Delimiter string
}

// NewParser creates a parser with the default timeline delimiter.
func NewParser() *Parser {
	return &Parser{Delimiter: ","}
}

// ParseSummary decodes a flat JSON object of counters. Non-numeric, null
// and out-of-range counters are dropped; fractional values are truncated.
func (p *Parser) ParseSummary(raw []byte) (telemetry.SummaryMetrics, error) {
	trim := bytes.TrimSpace(raw)
	if len(trim) == 0 || trim[0] != '{' {
		return nil, &ParseError{Source: SourceSummary, Err: errors.New("expected a JSON object")}
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(trim, &fields); err != nil {
		return nil, &ParseError{Source: SourceSummary, Err: err}
	}
	out := make(telemetry.SummaryMetrics, len(fields))
	for name, v := range fields {
		if n, ok := toInt64(v); ok {
			out[name] = n
		}
	}
	return out, nil
}

// ParseInterceptEvents decodes the proxy event array. Every element must be
// an object; variants other than http_request are kept as-is.
func (p *Parser) ParseInterceptEvents(raw []byte) ([]telemetry.InterceptEvent, error) {
	items, err := splitArray(SourceIntercepted, raw)
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.InterceptEvent, 0, len(items))
	for i, item := range items {
		var ev telemetry.InterceptEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			return nil, &ParseError{Source: SourceIntercepted, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		out = append(out, ev)
	}
	return out, nil
}

// ParseIntrusionEvents decodes the sensor alert array.
func (p *Parser) ParseIntrusionEvents(raw []byte) ([]telemetry.IntrusionEvent, error) {
	items, err := splitArray(SourceIntrusion, raw)
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.IntrusionEvent, 0, len(items))
	for i, item := range items {
		var ev telemetry.IntrusionEvent
		if err := json.Unmarshal(item, &ev); err != nil {
			return nil, &ParseError{Source: SourceIntrusion, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		out = append(out, ev)
	}
	return out, nil
}

// ParseTimeline reads the delimited attack log. The first non-blank line is
// a header and is discarded, as are leading and trailing blank lines. Each remaining line needs at
// least two fields; columns past the second are ignored. Event kinds are not
// validated.
func (p *Parser) ParseTimeline(raw []byte) ([]telemetry.TimelineMark, error) {
	delim := p.Delimiter
	if delim == "" {
		delim = ","
	}

	lines := strings.Split(string(raw), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	// The header is the first non-blank line.
	header := 0
	for header < len(lines) && lines[header] == "" {
		header++
	}
	if len(lines)-header <= 1 {
		return []telemetry.TimelineMark{}, nil
	}

	out := make([]telemetry.TimelineMark, 0, len(lines)-header-1)
	for i, line := range lines[header+1:] {
		fields := strings.Split(line, delim)
		if len(fields) < 2 {
			return nil, &ParseError{
				Source: SourceTimeline,
				Line:   header + i + 2,
				Err:    fmt.Errorf("expected 2 fields, got %d", len(fields)),
			}
		}
		out = append(out, telemetry.TimelineMark{
			Timestamp: strings.TrimSpace(fields[0]),
			Kind:      telemetry.TimelineKind(strings.TrimSpace(fields[1])),
		})
	}
	return out, nil
}

func splitArray(source string, raw []byte) ([]jsoniter.RawMessage, error) {
	trim := bytes.TrimSpace(raw)
	if len(trim) == 0 || trim[0] != '[' {
		return nil, &ParseError{Source: source, Err: errors.New("expected a JSON array")}
	}
	var items []jsoniter.RawMessage
	if err := json.Unmarshal(trim, &items); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	for i, item := range items {
		t := bytes.TrimSpace(item)
		if len(t) == 0 || t[0] != '{' {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("record %d is not an object", i)}
		}
	}
	return items, nil
}

// toInt64 converts a decoded JSON value to an integer counter.
func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case interface {
		Int64() (int64, error)
		Float64() (float64, error)
	}:
		// json.Number from UseNumber decoding
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return telemetry.TruncateFloat(f)
		}
	case float64:
		return telemetry.TruncateFloat(v)
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
