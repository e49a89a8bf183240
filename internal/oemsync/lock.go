package oemsync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

const lockKey = "lock:oemsync:run"

var ErrRunInProgress = errors.New("another sync run holds the lock")

// Locker guards a run so only one process pushes at a time.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
