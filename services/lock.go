package services

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
)

// PlacementLocker serializes capacity reservations for one slot key across
// service instances. Locking is best effort: the reservation itself is a
// conditional update and stays correct without it.
type PlacementLocker interface {
	Lock(ctx context.Context, key string) (unlock func())
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) func() { return func() {} }

// RedisPlacementLocker uses redislock to hold a short lease per slot
type RedisPlacementLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisPlacementLocker builds a locker with the given lease duration
func NewRedisPlacementLocker(client *redislock.Client, ttl time.Duration, log logger.Logger) *RedisPlacementLocker {
	return &RedisPlacementLocker{client: client, ttl: ttl, log: log}
}

// Lock waits briefly for the slot lease. When it cannot be obtained the
// caller proceeds unlocked.
func (l *RedisPlacementLocker) Lock(ctx context.Context, key string) func() {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 20),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			l.log.Warn("could not obtain placement lock; proceeding without it", "key", key)
		} else {
			l.log.Warn("error obtaining placement lock; proceeding without it", "key", key, "error", err)
		}
		return func() {}
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("failed to release placement lock", "key", key, "error", err)
		}
	}
}
