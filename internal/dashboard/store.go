package dashboard

import (
	"sync/atomic"
	"time"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

type committed struct {
	snap *telemetry.Snapshot
	at   time.Time
}

// Store holds the last successfully built snapshot and when it was built.
// Both are replaced together; readers never observe one without the other.
type Store struct {
	cur atomic.Pointer[committed]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Replace installs snap as the live snapshot, built at at.
func (s *Store) Replace(snap *telemetry.Snapshot, at time.Time) {
	s.cur.Store(&committed{snap: snap, at: at})
}

// Load returns the live snapshot and its success time. ok is false until
// the first successful cycle.
func (s *Store) Load() (snap *telemetry.Snapshot, at time.Time, ok bool) {
	c := s.cur.Load()
	if c == nil {
		return nil, time.Time{}, false
	}
	return c.snap, c.at, true
}
