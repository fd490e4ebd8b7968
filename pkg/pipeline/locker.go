package pipeline

import (
	"context"
	"time"

	"github.com/scout-edge/canon/pkg/redis"
)

// redisRunLocker adapts the redis Locker to the RunLocker interface.
type redisRunLocker struct {
	locker *redis.Locker
}

// NewRedisRunLocker wraps a redis Locker for use as the pipeline run lock.
func NewRedisRunLocker(locker *redis.Locker) RunLocker {
	return &redisRunLocker{locker: locker}
}

func (r *redisRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (RunLock, error) {
	lock, err := r.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
