package bus

import (
	"context"
	"io"
	"log"
)

// Bus publishes refresh-cycle outcomes for external consumers.
type Bus interface {
	// PublishCycle publishes one finished cycle to the cycles stream
	PublishCycle(ctx context.Context, msg CycleMessage) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// CycleMessage describes one finished refresh cycle. It carries counts
// only, never snapshot contents.
type CycleMessage struct {
	CycleID         string         `json:"cycle_id"`
	State           string         `json:"state"`
	Message         string         `json:"message,omitempty"`
	Timestamp       int64          `json:"timestamp"`
	DurationMS      int64          `json:"duration_ms"`
	HTTPRequests    int            `json:"http_requests"`
	IntrusionEvents int            `json:"intrusion_events"`
	TimelineMarks   int            `json:"timeline_marks"`
	Methods         map[string]int `json:"methods,omitempty"`
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or invalid, returns a NullBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	if redisBus, err := NewRedisBus(redisURL, logger); err == nil {
		return redisBus
	} else {
		logger.Printf("Redis unavailable (%v); cycle publishing disabled", err)
	}

	return NewNullBus(logger)
}
