package bus

import (
	"context"
	"log"
	"sync/atomic"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger    *log.Logger
	published atomic.Int64
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *log.Logger) *NullBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[NullBus] ", log.LstdFlags)
	}

	return &NullBus{
		logger: logger,
	}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishCycle logs the cycle but doesn't actually publish it
func (nb *NullBus) PublishCycle(ctx context.Context, msg CycleMessage) error {
	nb.published.Add(1)
	nb.logger.Printf("Would publish cycle %s state=%s (Redis disabled)", msg.CycleID, msg.State)
	return nil
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":      "null",
		"status":    "disabled",
		"published": nb.published.Load(),
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
