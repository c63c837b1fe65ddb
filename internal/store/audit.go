package store

import (
	"context"
	"log"
	"time"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
)

// recordTimeout bounds one audit write from the refresh loop.
const recordTimeout = 2 * time.Second

// NewCycleRecord converts a finished cycle status into an audit record.
// Counts come from the committed snapshot when the cycle succeeded.
func NewCycleRecord(st dashboard.Status, snapStore *dashboard.Store) CycleRecord {
	rec := CycleRecord{
		ID:         st.CycleID,
		State:      st.State.String(),
		Message:    st.Message,
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
		DurationMS: st.Duration().Milliseconds(),
	}
	if st.State != dashboard.StateReady || snapStore == nil {
		return rec
	}
	if snap, _, ok := snapStore.Load(); ok && snap.CycleID == st.CycleID {
		rec.HTTPRequests = len(snap.HTTPRequests())
		rec.IntrusionEvents = len(snap.IntrusionEvents)
		rec.TimelineMarks = len(snap.Timeline)
		rec.Methods = make(map[string]int, len(snap.MethodDistribution))
		for k, v := range snap.MethodDistribution {
			rec.Methods[k] = v
		}
	}
	return rec
}

// Recorder returns a scheduler observer writing each finished cycle to s.
func Recorder(s *Store, snapStore *dashboard.Store, logger *log.Logger) dashboard.Observer {
	if logger == nil {
		logger = log.New(log.Writer(), "[audit] ", log.LstdFlags)
	}
	return func(st dashboard.Status) {
		if st.State != dashboard.StateReady && st.State != dashboard.StateError {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.RecordCycle(ctx, NewCycleRecord(st, snapStore)); err != nil {
			logger.Printf("Failed to record cycle %s: %v", st.CycleID, err)
		}
	}
}
