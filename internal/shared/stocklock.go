package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// StockLocker serialises work on a single stock key. Balance reads followed by
// writes are not atomic at the store level, so every document transition holds
// the lock for each (material, plant, location) it touches.
type StockLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
}

// ErrLockNotObtained indicates the key is held by another transition.
var ErrLockNotObtained = errors.New("stock key is locked by another transaction")

// NewStockLocker constructs a locker backed by Redis.
func NewStockLocker(client redis.UniversalClient, ttl time.Duration) *StockLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockLocker{client: redislock.New(client), ttl: ttl, retries: 20}
}

// StockLockKey builds the redis key for a stock critical section.
func StockLockKey(materialID, plantID, locationID int64) string {
	return fmt.Sprintf("stock:%d:%d:%d:lock", materialID, plantID, locationID)
}

// Acquire obtains the lock, retrying with linear backoff. The returned release
// function is safe to call once.
func (l *StockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("shared: obtain stock lock %s: %w", key, err)
	}
	return func() { _ = lock.Release(context.WithoutCancel(ctx)) }, nil
}

// AcquireAll obtains locks for every key in order, releasing already-held
// locks when any acquisition fails. Keys must be pre-sorted by the caller so
// competing transitions lock in the same order.
func (l *StockLocker) AcquireAll(ctx context.Context, keys []string) (func(), error) {
	if l == nil || len(keys) == 0 {
		return func() {}, nil
	}
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
