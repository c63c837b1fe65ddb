package bus

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

var quiet = log.New(io.Discard, "", 0)

type recordingBus struct {
	NullBus
	mu   sync.Mutex
	msgs []CycleMessage
	err  error
}

func (r *recordingBus) PublishCycle(ctx context.Context, msg CycleMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestNewBusWithoutURLIsNull(t *testing.T) {
	b := NewBus("", quiet)
	_, ok := b.(*NullBus)
	assert.True(t, ok)
	assert.NoError(t, b.HealthCheck(context.Background()))
	assert.NoError(t, b.Close())
}

func TestNewBusFallsBackOnBadURL(t *testing.T) {
	b := NewBus("not-a-redis-url", quiet)
	_, ok := b.(*NullBus)
	assert.True(t, ok)
}

func TestNullBusCountsPublishes(t *testing.T) {
	nb := NewNullBus(quiet)
	ctx := context.Background()
	require.NoError(t, nb.PublishCycle(ctx, CycleMessage{CycleID: "a"}))
	require.NoError(t, nb.PublishCycle(ctx, CycleMessage{CycleID: "b"}))

	stats, err := nb.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "null", stats["type"])
	assert.Equal(t, int64(2), stats["published"])
}

func TestNewCycleMessage(t *testing.T) {
	store := dashboard.NewStore()
	started := time.Unix(1700000000, 0)
	store.Replace(&telemetry.Snapshot{
		CycleID: "c1",
		InterceptEvents: []telemetry.InterceptEvent{
			{Type: telemetry.EventTypeHTTPRequest, Method: "GET"},
			{Type: telemetry.EventTypeClientConnect},
		},
		IntrusionEvents:    []telemetry.IntrusionEvent{{EventType: "alert"}, {EventType: "dns"}},
		MethodDistribution: map[string]int{"GET": 1},
	}, started)

	msg := NewCycleMessage(dashboard.Status{
		State:      dashboard.StateReady,
		CycleID:    "c1",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}, store)
	assert.Equal(t, "ready", msg.State)
	assert.Equal(t, int64(1500), msg.DurationMS)
	assert.Equal(t, started.Add(1500*time.Millisecond).Unix(), msg.Timestamp)
	assert.Equal(t, 1, msg.HTTPRequests)
	assert.Equal(t, 2, msg.IntrusionEvents)
	assert.Equal(t, map[string]int{"GET": 1}, msg.Methods)

	// A failed cycle never reports the stale snapshot's counts
	msg = NewCycleMessage(dashboard.Status{State: dashboard.StateError, CycleID: "c2", Message: "boom"}, store)
	assert.Equal(t, "error", msg.State)
	assert.Equal(t, "boom", msg.Message)
	assert.Zero(t, msg.HTTPRequests)
	assert.Nil(t, msg.Methods)
}

func TestPublisherSkipsFetchingAndLogsFailures(t *testing.T) {
	rb := &recordingBus{}
	publish := Publisher(rb, dashboard.NewStore(), quiet)

	publish(dashboard.Status{State: dashboard.StateFetching, CycleID: "c1"})
	publish(dashboard.Status{State: dashboard.StateError, CycleID: "c1"})
	rb.err = errors.New("broker down")
	publish(dashboard.Status{State: dashboard.StateReady, CycleID: "c2"})

	require.Len(t, rb.msgs, 2)
	assert.Equal(t, "error", rb.msgs[0].State)
	assert.Equal(t, "c2", rb.msgs[1].CycleID)
}

func TestCycleFields(t *testing.T) {
	fields, err := cycleFields(CycleMessage{CycleID: "c1", State: "ready", Methods: map[string]int{"GET": 2}})
	require.NoError(t, err)
	assert.Equal(t, "c1", fields["cycle_id"])
	assert.JSONEq(t, `{"GET":2}`, fields["methods"].(string))
}
