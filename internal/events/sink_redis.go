package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream lifecycle events are appended to.
const DefaultStream = "voice:call-events"

// RedisStreamSink appends events to a capped Redis stream.
type RedisStreamSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSink(rdb redis.Cmdable, stream string) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{rdb: rdb, stream: stream, maxLen: 10000}
}

func (s *RedisStreamSink) Publish(ctx context.Context, e Event) error {
	if s.rdb == nil {
		return fmt.Errorf("events: redis client not configured")
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":         e.ID,
			"type":       string(e.Type),
			"tenant_id":  e.TenantID,
			"call_id":    e.CallID,
			"payload":    payload,
			"created_at": e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("events: xadd %s: %w", s.stream, err)
	}
	return nil
}
