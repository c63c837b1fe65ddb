package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

func readySnapshot(id string) *telemetry.Snapshot {
	return &telemetry.Snapshot{
		CycleID: id,
		InterceptEvents: []telemetry.InterceptEvent{
			{Type: telemetry.EventTypeHTTPRequest, Method: "GET"},
			{Type: telemetry.EventTypeClientConnect},
			{Type: telemetry.EventTypeHTTPRequest, Method: "POST"},
		},
		IntrusionEvents:    []telemetry.IntrusionEvent{{EventType: "alert"}},
		Timeline:           []telemetry.TimelineMark{{Timestamp: "t", Kind: telemetry.TimelineStart}},
		MethodDistribution: map[string]int{"GET": 1, "POST": 1},
	}
}

func TestNewCycleRecordReady(t *testing.T) {
	snaps := dashboard.NewStore()
	started := time.Now()
	snaps.Replace(readySnapshot("c1"), started)

	rec := NewCycleRecord(dashboard.Status{
		State:      dashboard.StateReady,
		CycleID:    "c1",
		StartedAt:  started,
		FinishedAt: started.Add(250 * time.Millisecond),
	}, snaps)

	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, "ready", rec.State)
	assert.Equal(t, int64(250), rec.DurationMS)
	assert.Equal(t, 2, rec.HTTPRequests)
	assert.Equal(t, 1, rec.IntrusionEvents)
	assert.Equal(t, 1, rec.TimelineMarks)
	assert.Equal(t, map[string]int{"GET": 1, "POST": 1}, rec.Methods)
}

func TestNewCycleRecordSkipsCountsForMismatchedSnapshot(t *testing.T) {
	snaps := dashboard.NewStore()
	snaps.Replace(readySnapshot("older"), time.Now())

	rec := NewCycleRecord(dashboard.Status{State: dashboard.StateReady, CycleID: "c2"}, snaps)
	assert.Zero(t, rec.HTTPRequests)
	assert.Nil(t, rec.Methods)

	rec = NewCycleRecord(dashboard.Status{State: dashboard.StateError, CycleID: "older", Message: "boom"}, snaps)
	assert.Equal(t, "error", rec.State)
	assert.Equal(t, "boom", rec.Message)
	assert.Zero(t, rec.HTTPRequests)
}

func TestRecorderWritesFinishedCyclesOnly(t *testing.T) {
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	snaps := dashboard.NewStore()
	snaps.Replace(readySnapshot("c1"), time.Now())
	record := Recorder(s, snaps, nil)

	now := time.Now()
	record(dashboard.Status{State: dashboard.StateFetching, CycleID: "c1", StartedAt: now})
	record(dashboard.Status{State: dashboard.StateReady, CycleID: "c1", StartedAt: now, FinishedAt: now})
	record(dashboard.Status{State: dashboard.StateError, CycleID: "c2", StartedAt: now, FinishedAt: now.Add(time.Second), Message: "x"})

	cycles, err := s.ListCycles(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "c2", cycles[0].ID)
	assert.Equal(t, "c1", cycles[1].ID)
	assert.Equal(t, 2, cycles[1].HTTPRequests)
}
