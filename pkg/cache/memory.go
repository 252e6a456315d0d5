package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryStore implements Store in process with LRU eviction.
type MemoryStore struct {
	data          map[string]*memoryItem
	access        map[string]time.Time
	mutex         sync.Mutex
	maxSize       int
	now           func() time.Time
	cleanupTicker *time.Ticker
	done          chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures NewMemoryStore.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds in-process store settings.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// WithMemoryMaxSize caps the number of keys; the least recently used go first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	ms := &MemoryStore{
		data:          make(map[string]*memoryItem),
		access:        make(map[string]time.Time),
		maxSize:       cfg.MaxSize,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
		done:          make(chan struct{}),
	}

	go ms.cleanupExpired()
	return ms
}

func (ms *MemoryStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	now := ms.now()
	item, exists := ms.data[key]
	if !exists || item.expired(now) {
		if exists {
			delete(ms.data, key)
			delete(ms.access, key)
		}
		return nil, ErrCacheMiss
	}

	ms.access[key] = now
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (ms *MemoryStore) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.setLocked(key, value, ttl)
	return nil
}

func (ms *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if item, ok := ms.data[key]; ok && !item.expired(ms.now()) {
		return false, nil
	}
	ms.setLocked(key, value, ttl)
	return true, nil
}

func (ms *MemoryStore) Delete(_ context.Context, keys ...string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, key := range keys {
		delete(ms.data, key)
		delete(ms.access, key)
	}
	return nil
}

// Len reports the number of held keys, expired ones included until cleanup.
func (ms *MemoryStore) Len() int {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return len(ms.data)
}

func (ms *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	if _, exists := ms.data[key]; !exists && len(ms.data) >= ms.maxSize {
		ms.evictLRU()
	}

	now := ms.now()
	var expireAt time.Time
	if ttl > 0 {
		expireAt = now.Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	ms.data[key] = &memoryItem{value: stored, expireAt: expireAt}
	ms.access[key] = now
}

func (ms *MemoryStore) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, accessTime := range ms.access {
		if oldestKey == "" || accessTime.Before(oldestTime) {
			oldestTime = accessTime
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(ms.data, oldestKey)
		delete(ms.access, oldestKey)
	}
}

func (ms *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-ms.cleanupTicker.C:
			ms.mutex.Lock()
			now := ms.now()
			for key, item := range ms.data {
				if item.expired(now) {
					delete(ms.data, key)
					delete(ms.access, key)
				}
			}
			ms.mutex.Unlock()
		case <-ms.done:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (ms *MemoryStore) Close() error {
	ms.cleanupTicker.Stop()
	select {
	case <-ms.done:
	default:
		close(ms.done)
	}
	return nil
}
