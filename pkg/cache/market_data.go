package cache

import (
	"context"
	"errors"
	"time"

	"MarketPulse/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Status tells the caller how much to trust a Result.
type Status string

const (
	StatusFresh       Status = "fresh"
	StatusStale       Status = "stale"
	StatusUnavailable Status = "unavailable"
)

// Result is the outcome of a Fetch. A failed refresh is reported through
// Status and Err rather than returned as an error.
type Result[T any] struct {
	Value     T
	Status    Status
	FetchedAt time.Time
	Err       error
}

// OK reports whether Value holds data (fresh or last-known-good).
func (r Result[T]) OK() bool { return r.Status != StatusUnavailable }

// LoadFunc performs one live retrieval. It must respect ctx.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Recorder receives cache outcome counts.
type Recorder interface {
	RecordCacheResult(cache, status string)
}

// MarketDataOption configures MarketDataCache.
type MarketDataOption func(*MarketDataConfig)

// MarketDataConfig holds MarketDataCache configuration.
type MarketDataConfig struct {
	TTL        time.Duration
	Timeout    time.Duration
	MaxEntries int
	L2         Store
	L2TTL      time.Duration
	Logger     *logger.Logger
	Recorder   Recorder
	Now        func() time.Time
}

type marketEntry[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// MarketDataCache wraps reads from an unreliable external source. Entries
// younger than TTL are served directly. Older ones trigger a live load
// bounded by Timeout; concurrent loads of one key are coalesced. When the
// load fails the last successful value is served as stale (from memory,
// then from the optional L2 store) and only without one is the result
// unavailable.
//
// The memory tier is a MemoryStore without expiry, so last-known-good values
// survive until evicted by MaxEntries.
type MarketDataCache[T any] struct {
	name   string
	cfg    *MarketDataConfig
	group  singleflight.Group
	memory *MemoryStore
}

// NewMarketData creates a cache named name (used in keys, logs and metrics).
func NewMarketData[T any](name string, opts ...MarketDataOption) *MarketDataCache[T] {
	cfg := &MarketDataConfig{
		TTL:        30 * time.Second,
		Timeout:    10 * time.Second,
		MaxEntries: 1024,
		L2TTL:      2 * time.Hour,
		Now:        time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}

	return &MarketDataCache[T]{
		name:   name,
		cfg:    cfg,
		memory: NewMemoryStore(WithMemoryMaxSize(cfg.MaxEntries)),
	}
}

// Name returns the cache name.
func (c *MarketDataCache[T]) Name() string { return c.name }

// Close releases the memory tier.
func (c *MarketDataCache[T]) Close() error { return c.memory.Close() }

// Fetch returns the value for key, loading it with load when the cached
// copy is missing or older than the TTL.
func (c *MarketDataCache[T]) Fetch(ctx context.Context, key string, load LoadFunc[T]) Result[T] {
	if e, ok := c.get(ctx, key); ok && c.fresh(e) {
		c.record(StatusFresh)
		return Result[T]{Value: e.Value, Status: StatusFresh, FetchedAt: e.FetchedAt}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()

		val, err := load(lctx)
		if err != nil {
			return nil, err
		}
		e := marketEntry[T]{Value: val, FetchedAt: c.cfg.Now()}
		c.put(lctx, key, e)
		c.writeSecondTier(lctx, key, e)
		return e, nil
	})
	if err == nil {
		e := v.(marketEntry[T])
		c.record(StatusFresh)
		return Result[T]{Value: e.Value, Status: StatusFresh, FetchedAt: e.FetchedAt}
	}

	c.cfg.Logger.Warn("market data refresh failed",
		logger.String("cache", c.name),
		logger.String("key", key),
		logger.Error(err),
	)

	// a concurrent load may have succeeded meanwhile
	if e, ok := c.get(ctx, key); ok {
		return c.fallback(e, err)
	}
	if e, ok := c.readSecondTier(ctx, key); ok {
		c.put(ctx, key, e)
		return c.fallback(e, err)
	}

	c.record(StatusUnavailable)
	return Result[T]{Status: StatusUnavailable, Err: err}
}

// Peek returns the held value for key without loading.
func (c *MarketDataCache[T]) Peek(key string) (Result[T], bool) {
	e, ok := c.get(context.Background(), key)
	if !ok {
		return Result[T]{Status: StatusUnavailable}, false
	}
	status := StatusStale
	if c.fresh(e) {
		status = StatusFresh
	}
	return Result[T]{Value: e.Value, Status: status, FetchedAt: e.FetchedAt}, true
}

// Invalidate drops key from memory and the second tier.
func (c *MarketDataCache[T]) Invalidate(ctx context.Context, key string) {
	_ = c.memory.Delete(ctx, key)
	if c.cfg.L2 != nil {
		_ = c.cfg.L2.Delete(ctx, c.l2Key(key))
	}
}

func (c *MarketDataCache[T]) fallback(e marketEntry[T], err error) Result[T] {
	if c.fresh(e) {
		c.record(StatusFresh)
		return Result[T]{Value: e.Value, Status: StatusFresh, FetchedAt: e.FetchedAt}
	}
	c.record(StatusStale)
	return Result[T]{Value: e.Value, Status: StatusStale, FetchedAt: e.FetchedAt, Err: err}
}

func (c *MarketDataCache[T]) get(ctx context.Context, key string) (marketEntry[T], bool) {
	e, err := GetJSON[marketEntry[T]](ctx, c.memory, key)
	return e, err == nil
}

func (c *MarketDataCache[T]) put(ctx context.Context, key string, e marketEntry[T]) {
	if err := SetJSON(ctx, c.memory, key, e, 0); err != nil {
		c.cfg.Logger.Debug("market data encode failed",
			logger.String("cache", c.name),
			logger.Error(err),
		)
	}
}

func (c *MarketDataCache[T]) fresh(e marketEntry[T]) bool {
	return c.cfg.Now().Sub(e.FetchedAt) < c.cfg.TTL
}

func (c *MarketDataCache[T]) record(s Status) {
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordCacheResult(c.name, string(s))
	}
}

func (c *MarketDataCache[T]) l2Key(key string) string {
	return Key("mdc", c.name, key)
}

func (c *MarketDataCache[T]) writeSecondTier(ctx context.Context, key string, e marketEntry[T]) {
	if c.cfg.L2 == nil {
		return
	}
	if err := SetJSON(ctx, c.cfg.L2, c.l2Key(key), e, c.cfg.L2TTL); err != nil {
		c.cfg.Logger.Debug("market data l2 write failed",
			logger.String("cache", c.name),
			logger.Error(err),
		)
	}
}

func (c *MarketDataCache[T]) readSecondTier(ctx context.Context, key string) (marketEntry[T], bool) {
	if c.cfg.L2 == nil {
		return marketEntry[T]{}, false
	}
	e, err := GetJSON[marketEntry[T]](ctx, c.cfg.L2, c.l2Key(key))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.cfg.Logger.Debug("market data l2 read failed",
				logger.String("cache", c.name),
				logger.Error(err),
			)
		}
		return marketEntry[T]{}, false
	}
	return e, true
}

// WithTTL sets how long a successful load is served without refreshing.
func WithTTL(ttl time.Duration) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.TTL = ttl
	}
}

// WithTimeout bounds every live load.
func WithTimeout(timeout time.Duration) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.Timeout = timeout
	}
}

// WithMaxEntries caps the number of keys held in memory; the least recently
// read go first.
func WithMaxEntries(n int) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.MaxEntries = n
	}
}

// WithSecondTier persists last-known-good values to store for ttl.
func WithSecondTier(store Store, ttl time.Duration) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.L2 = store
		c.L2TTL = ttl
	}
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(l *logger.Logger) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.Logger = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.Recorder = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MarketDataOption {
	return func(c *MarketDataConfig) {
		c.Now = now
	}
}
