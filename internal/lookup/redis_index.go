package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const recentDialKeyPrefix = "dialer:recent_outbound:"

// RedisDialIndex stores recent outbound dials as TTL'd keys so the callback
// window survives process restarts and is shared across instances.
type RedisDialIndex struct {
	rdb *redis.Client
}

func NewRedisDialIndex(rdb *redis.Client) *RedisDialIndex {
	return &RedisDialIndex{rdb: rdb}
}

func (r *RedisDialIndex) MarkOutbound(ctx context.Context, digits string, window time.Duration) error {
	if r.rdb == nil {
		return errors.New("lookup: redis client is nil")
	}
	return r.rdb.Set(ctx, recentDialKeyPrefix+digits, "1", window).Err()
}

func (r *RedisDialIndex) WasDialed(ctx context.Context, digits string) (bool, error) {
	if r.rdb == nil {
		return false, errors.New("lookup: redis client is nil")
	}
	n, err := r.rdb.Exists(ctx, recentDialKeyPrefix+digits).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
