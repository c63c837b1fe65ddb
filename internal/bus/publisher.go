package bus

import (
	"context"
	"log"
	"time"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
)

// publishTimeout keeps a slow broker from holding up the refresh loop.
const publishTimeout = 2 * time.Second

// NewCycleMessage summarizes a finished cycle. Counts are taken from the
// store only when the cycle succeeded and committed that snapshot.
func NewCycleMessage(st dashboard.Status, store *dashboard.Store) CycleMessage {
	msg := CycleMessage{
		CycleID:    st.CycleID,
		State:      st.State.String(),
		Message:    st.Message,
		Timestamp:  st.FinishedAt.Unix(),
		DurationMS: st.Duration().Milliseconds(),
	}
	if st.State != dashboard.StateReady || store == nil {
		return msg
	}
	snap, _, ok := store.Load()
	if !ok || snap.CycleID != st.CycleID {
		return msg
	}
	msg.HTTPRequests = len(snap.HTTPRequests())
	msg.IntrusionEvents = len(snap.IntrusionEvents)
	msg.TimelineMarks = len(snap.Timeline)
	msg.Methods = make(map[string]int, len(snap.MethodDistribution))
	for k, v := range snap.MethodDistribution {
		msg.Methods[k] = v
	}
	return msg
}

// Publisher returns a scheduler observer that publishes every finished
// cycle. Publish failures are logged and otherwise ignored.
func Publisher(b Bus, store *dashboard.Store, logger *log.Logger) dashboard.Observer {
	if logger == nil {
		logger = log.New(log.Writer(), "[bus] ", log.LstdFlags)
	}
	return func(st dashboard.Status) {
		if st.State != dashboard.StateReady && st.State != dashboard.StateError {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.PublishCycle(ctx, NewCycleMessage(st, store)); err != nil {
			logger.Printf("Failed to publish cycle %s: %v", st.CycleID, err)
		}
	}
}
