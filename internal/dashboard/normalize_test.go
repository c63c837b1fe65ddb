package dashboard

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

func intPtr(v int) *int { return &v }

func sampleInputs() Inputs {
	return Inputs{
		Summary: telemetry.SummaryMetrics{telemetry.CounterHTTPRequests: 3, telemetry.CounterUniqueURLs: 2},
		InterceptEvents: []telemetry.InterceptEvent{
			{Type: telemetry.EventTypeHTTPRequest, Method: "GET", URL: "http://a/1", StatusCode: intPtr(200)},
			{Type: telemetry.EventTypeClientConnect, ClientIP: "10.0.0.2"},
			{Type: telemetry.EventTypeHTTPRequest, Method: "POST", URL: "http://a/login"},
			{Type: telemetry.EventTypeHTTPRequest, URL: "http://a/2"},
		},
		IntrusionEvents: []telemetry.IntrusionEvent{
			{EventType: "http", HTTP: &telemetry.HTTPObservation{Method: "GET"}},
			{EventType: "alert"},
		},
		Timeline: []telemetry.TimelineMark{
			{Timestamp: "2024-01-15T10:30:00", Kind: telemetry.TimelineStart},
			{Timestamp: "2024-01-15T10:35:00", Kind: telemetry.TimelineStop},
		},
	}
}

func TestBuildDistributionSumsToHTTPRequests(t *testing.T) {
	snap := Build("c1", sampleInputs())

	total := 0
	for _, n := range snap.MethodDistribution {
		total += n
	}
	assert.Equal(t, len(snap.HTTPRequests()), total)
	assert.Equal(t, map[string]int{"GET": 1, "POST": 1, telemetry.UnknownMethod: 1}, snap.MethodDistribution)
}

func TestBuildDefaultsMissingMethod(t *testing.T) {
	snap := Build("c1", sampleInputs())

	// Most recent first: the method-less request was last in the source.
	require.NotEmpty(t, snap.InterceptEvents)
	assert.Equal(t, telemetry.UnknownMethod, snap.InterceptEvents[0].Method)
	// Non-request variants keep their empty method
	assert.Equal(t, "", snap.InterceptEvents[2].Method)
}

func TestBuildReversesFeedsAndKeepsTimelineOrder(t *testing.T) {
	in := sampleInputs()
	snap := Build("c1", in)

	assert.Equal(t, "http://a/2", snap.InterceptEvents[0].URL)
	assert.Equal(t, "http://a/1", snap.InterceptEvents[3].URL)
	assert.Equal(t, "alert", snap.IntrusionEvents[0].EventType)
	assert.Equal(t, "http", snap.IntrusionEvents[1].EventType)
	assert.Equal(t, in.Timeline, snap.Timeline)
	assert.Equal(t, "c1", snap.CycleID)
}

func TestBuildDoesNotAliasInputs(t *testing.T) {
	in := sampleInputs()
	snap := Build("c1", in)

	// Input untouched
	assert.Equal(t, "", in.InterceptEvents[3].Method)

	// Mutating inputs afterwards does not leak into the snapshot
	*in.InterceptEvents[0].StatusCode = 500
	in.IntrusionEvents[0].HTTP.Method = "PUT"
	in.Summary[telemetry.CounterHTTPRequests] = 99
	in.Timeline[0].Kind = telemetry.TimelineStop

	assert.Equal(t, 200, *snap.InterceptEvents[3].StatusCode)
	assert.Equal(t, "GET", snap.IntrusionEvents[1].HTTP.Method)
	assert.Equal(t, int64(3), snap.Summary.Get(telemetry.CounterHTTPRequests))
	assert.Equal(t, telemetry.TimelineStart, snap.Timeline[0].Kind)
}

func TestBuildEmptyInputs(t *testing.T) {
	snap := Build("c1", Inputs{})
	assert.Empty(t, snap.InterceptEvents)
	assert.Empty(t, snap.IntrusionEvents)
	assert.Empty(t, snap.Timeline)
	assert.Empty(t, snap.MethodDistribution)
	assert.NotNil(t, snap.Summary)
}

func TestBuildDropsNegativeCounter(t *testing.T) {
	in := sampleInputs()
	in.Summary[telemetry.CounterConnections] = -1
	snap := Build("c1", in)
	require.NotNil(t, snap)

	_, present := snap.Summary[telemetry.CounterConnections]
	assert.False(t, present)
	assert.Zero(t, snap.Summary.Get(telemetry.CounterConnections))
	assert.Equal(t, int64(3), snap.Summary.Get(telemetry.CounterHTTPRequests))
	assert.Equal(t, int64(-1), in.Summary[telemetry.CounterConnections])
}

func TestBuildCopiesRawRecords(t *testing.T) {
	in := sampleInputs()
	in.InterceptEvents[1].Raw = jsoniter.RawMessage(`{"type":"client_connect"}`)
	snap := Build("c1", in)

	in.InterceptEvents[1].Raw[2] = 'X'
	assert.Equal(t, `{"type":"client_connect"}`, string(snap.InterceptEvents[2].Raw))
}

func TestSortedDistribution(t *testing.T) {
	got := SortedDistribution(map[string]int{"POST": 2, "GET": 5, "DELETE": 2})
	assert.Equal(t, []MethodCount{{"GET", 5}, {"DELETE", 2}, {"POST", 2}}, got)
	assert.Empty(t, SortedDistribution(nil))
}
