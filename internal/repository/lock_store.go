package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/cache"
)

// LockStore keeps window commitments in a cache.Store. With a RedisStore the
// first replica to commit a window wins; with a MemoryStore it guards a
// single process.
type LockStore struct {
	store cache.Store
	ttl   time.Duration
}

var _ drepo.LockStore = (*LockStore)(nil)

// NewLockStore creates a LockStore whose records expire after ttl.
func NewLockStore(store cache.Store, ttl time.Duration) *LockStore {
	return &LockStore{store: store, ttl: ttl}
}

// lockKey pairs the slug with the start so the repeated hour at the end of
// daylight saving time gets two locks.
func lockKey(windowID string, start time.Time) string {
	return cache.Key("lock", windowID, start.Unix())
}

// Commit stores lock if no commitment exists for its window yet.
func (s *LockStore) Commit(ctx context.Context, lock *models.WindowLock) (bool, error) {
	if lock == nil || !lock.IsCommitted() {
		return false, models.ErrNilPrediction
	}
	b, err := json.Marshal(lock)
	if err != nil {
		return false, fmt.Errorf("marshal lock: %w", err)
	}
	ok, err := s.store.SetNX(ctx, lockKey(lock.WindowID, lock.Start), b, s.ttl)
	if err != nil {
		return false, fmt.Errorf("commit lock %s: %w", lock.WindowID, err)
	}
	return ok, nil
}

// Get returns the stored commitment, or nil when the window is still open.
func (s *LockStore) Get(ctx context.Context, windowID string, start time.Time) (*models.WindowLock, error) {
	lock, err := cache.GetJSON[models.WindowLock](ctx, s.store, lockKey(windowID, start))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lock %s: %w", windowID, err)
	}
	return &lock, nil
}
