package bridge

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-bridge/pkg/utils"
)

// SlotLimiter caps concurrent calls per tenant.
type SlotLimiter interface {
	Acquire(ctx context.Context, tenantID string) (bool, error)
	Release(ctx context.Context, tenantID string) error
}

// RedisSlots counts active calls per tenant in Redis, shared by every bridge
// process.
type RedisSlots struct {
	rdb   redis.Scripter
	limit int
	ttl   time.Duration
}

func NewRedisSlots(rdb redis.Scripter, limit int, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSlots{rdb: rdb, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context, tenantID string) (bool, error) {
	if s.limit <= 0 {
		return true, nil
	}
	return utils.AcquireConcurrencyCap(ctx, s.rdb, utils.CallSlotKey(tenantID), s.limit, s.ttl)
}

func (s *RedisSlots) Release(ctx context.Context, tenantID string) error {
	if s.limit <= 0 {
		return nil
	}
	return utils.ReleaseConcurrencyCap(ctx, s.rdb, utils.CallSlotKey(tenantID))
}
