package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/roha-backend/pkg/instance"
)

const (
	defaultLockTTL = 2 * time.Hour
	releaseTimeout = 5 * time.Second
)

// Lease is proof of holding the cron lock for one cycle.
type Lease interface {
	Release(ctx context.Context) error
}

// Lock hands out at most one Lease at a time across worker replicas. A nil
// Lease with a nil error means another replica holds the lock.
type Lock interface {
	TryAcquire(ctx context.Context) (Lease, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lock whose TTL outlives any sane cycle, so a worker
// killed mid-cycle frees it eventually.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (Lease, error) {
	// the instance prefix shows which replica holds a stuck lock
	token := instance.ID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}
	return &redisLease{lock: l, token: token}, nil
}

// Holder reports the token of whoever holds the lock, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	token, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

type redisLease struct {
	lock  *RedisLock
	token string
}

// Release deletes the key only while it still carries this lease's token; a
// lease that outlived its TTL must not free a successor's lock. It detaches
// from ctx so shutdown cancellation does not strand the key.
func (r *redisLease) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	holder, err := r.lock.Holder(ctx)
	if err != nil {
		return fmt.Errorf("read lock holder: %w", err)
	}
	if holder != r.token {
		return nil
	}
	if err := r.lock.store.Del(ctx, r.lock.key); err != nil {
		return fmt.Errorf("release %s: %w", r.lock.key, err)
	}
	return nil
}
