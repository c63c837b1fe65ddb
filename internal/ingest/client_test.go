package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T) Locations {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"summary.json":         `{"total_http_requests":2}`,
		"intercepted.json":     `[{"type":"http_request","method":"GET"}]`,
		"suricata_events.json": `[{"event_type":"alert","src_port":"4444"}]`,
		"attack_log.csv":       "timestamp,event\n2024-01-15T10:30:00,start\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return Locations{
		Summary:     filepath.Join(dir, "summary.json"),
		Intercepted: filepath.Join(dir, "intercepted.json"),
		Intrusion:   filepath.Join(dir, "suricata_events.json"),
		Timeline:    filepath.Join(dir, "attack_log.csv"),
	}
}

func TestClientReadsAllSources(t *testing.T) {
	loc := writeSources(t)
	c := NewClient(FileFetcher{}, nil, loc)
	ctx := context.Background()

	sum, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Get("total_http_requests"))

	intercepted, err := c.InterceptEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, intercepted, 1)

	intrusion, err := c.IntrusionEvents(ctx)
	require.NoError(t, err)
	require.Len(t, intrusion, 1)
	assert.Equal(t, "4444", intrusion[0].SrcPort.String())

	timeline, err := c.Timeline(ctx)
	require.NoError(t, err)
	assert.Len(t, timeline, 1)

	assert.Equal(t, loc, c.Locations())
}

func TestClientFetchError(t *testing.T) {
	loc := writeSources(t)
	loc.Intrusion = filepath.Join(t.TempDir(), "missing.json")
	c := NewClient(FileFetcher{}, nil, loc)

	_, err := c.IntrusionEvents(context.Background())
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, SourceIntrusion, ferr.Source)
	assert.Equal(t, loc.Intrusion, ferr.URI)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestClientParseError(t *testing.T) {
	loc := writeSources(t)
	require.NoError(t, os.WriteFile(loc.Summary, []byte(`["not","an","object"]`), 0o644))
	c := NewClient(FileFetcher{}, nil, loc)

	_, err := c.Summary(context.Background())
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	var ferr *FetchError
	assert.False(t, errors.As(err, &ferr))
}

func TestClientEmptyLocation(t *testing.T) {
	c := NewClient(FileFetcher{}, nil, Locations{})
	_, err := c.Timeline(context.Background())
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, SourceTimeline, ferr.Source)
	assert.Contains(t, err.Error(), "no location configured")
}

func TestLocationsOrder(t *testing.T) {
	loc := Locations{Summary: "a", Intercepted: "b", Intrusion: "c", Timeline: "d"}
	assert.Equal(t, []string{"a", "b", "c", "d"}, loc.URIs())
	assert.Equal(t, "c", loc.Each()[SourceIntrusion])
}

func TestErrorMessages(t *testing.T) {
	base := errors.New("boom")
	assert.Equal(t, "fetch summary (x.json): boom", (&FetchError{Source: SourceSummary, URI: "x.json", Err: base}).Error())
	assert.Equal(t, "parse attack-timeline line 4: boom", (&ParseError{Source: SourceTimeline, Line: 4, Err: base}).Error())
	assert.Equal(t, "parse summary: boom", (&ParseError{Source: SourceSummary, Err: base}).Error())
}
