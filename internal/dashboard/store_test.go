package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

func TestStoreEmptyUntilReplaced(t *testing.T) {
	s := NewStore()
	snap, at, ok := s.Load()
	assert.False(t, ok)
	assert.Nil(t, snap)
	assert.True(t, at.IsZero())

	first := &telemetry.Snapshot{CycleID: "a"}
	now := time.Now()
	s.Replace(first, now)
	snap, at, ok = s.Load()
	assert.True(t, ok)
	assert.Same(t, first, snap)
	assert.True(t, at.Equal(now))

	second := &telemetry.Snapshot{CycleID: "b"}
	s.Replace(second, now.Add(time.Second))
	snap, at, _ = s.Load()
	assert.Same(t, second, snap)
	assert.True(t, at.Equal(now.Add(time.Second)))
}
