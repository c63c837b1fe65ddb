package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CyclesStream is the Redis stream receiving one entry per finished cycle.
const CyclesStream = "range:cycles"

// defaultMaxLen bounds the stream; consumers only care about recent cycles.
const defaultMaxLen = 1000

// RedisBus publishes cycle outcomes to a Redis Stream
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
	maxLen int64
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
		maxLen: defaultMaxLen,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishCycle appends the cycle to the cycles stream, trimming it to maxLen
func (rb *RedisBus) PublishCycle(ctx context.Context, msg CycleMessage) error {
	fields, err := cycleFields(msg)
	if err != nil {
		return err
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: CyclesStream,
		MaxLen: rb.maxLen,
		Approx: true,
		Values: fields,
	})

	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish cycle: %w", err)
	}

	rb.logger.Printf("Published cycle %s (%s) to %s", msg.CycleID, msg.State, CyclesStream)
	return nil
}

// cycleFields flattens a message into stream fields.
func cycleFields(msg CycleMessage) (map[string]interface{}, error) {
	methodsJSON, err := json.Marshal(msg.Methods)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal method distribution: %w", err)
	}
	return map[string]interface{}{
		"cycle_id":         msg.CycleID,
		"state":            msg.State,
		"message":          msg.Message,
		"timestamp":        msg.Timestamp,
		"duration_ms":      msg.DurationMS,
		"http_requests":    msg.HTTPRequests,
		"intrusion_events": msg.IntrusionEvents,
		"timeline_marks":   msg.TimelineMarks,
		"methods":          string(methodsJSON),
	}, nil
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the cycles stream
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"type": "redis"}

	if info, err := rb.GetStreamInfo(ctx, CyclesStream); err == nil {
		stats["cycles_stream"] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
	}

	return stats, nil
}
