package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordCacheResult(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[status]++
}

var errSource = errors.New("source down")

func TestFetchServesFreshWithoutReloading(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMarketData[[]float64]("closes", WithTTL(time.Minute), WithClock(clock.Now))

	calls := 0
	load := func(context.Context) ([]float64, error) {
		calls++
		return []float64{1, 2, 3}, nil
	}

	first := c.Fetch(context.Background(), "w1", load)
	second := c.Fetch(context.Background(), "w1", load)

	assert.Equal(t, StatusFresh, first.Status)
	assert.Equal(t, StatusFresh, second.Status)
	assert.Equal(t, []float64{1, 2, 3}, second.Value)
	assert.Equal(t, 1, calls)

	clock.Advance(2 * time.Minute)
	c.Fetch(context.Background(), "w1", load)
	assert.Equal(t, 2, calls)
}

func TestFetchFallsBackToLastGood(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rec := &countingRecorder{}
	c := NewMarketData[float64]("open", WithTTL(time.Minute), WithClock(clock.Now), WithRecorder(rec))

	ok := c.Fetch(context.Background(), "k", func(context.Context) (float64, error) { return 42, nil })
	require.True(t, ok.OK())
	fetchedAt := ok.FetchedAt

	clock.Advance(5 * time.Minute)
	res := c.Fetch(context.Background(), "k", func(context.Context) (float64, error) { return 0, errSource })

	assert.Equal(t, StatusStale, res.Status)
	assert.True(t, res.OK())
	assert.Equal(t, 42.0, res.Value)
	assert.True(t, fetchedAt.Equal(res.FetchedAt))
	assert.ErrorIs(t, res.Err, errSource)
	assert.Equal(t, 1, rec.counts["stale"])
}

func TestFetchFailureWithinTTLReturnsPriorValue(t *testing.T) {
	c := NewMarketData[float64]("open", WithTTL(time.Hour))

	c.Fetch(context.Background(), "k", func(context.Context) (float64, error) { return 7, nil })
	res := c.Fetch(context.Background(), "k", func(context.Context) (float64, error) { return 0, errSource })

	assert.True(t, res.OK())
	assert.Equal(t, 7.0, res.Value)
	assert.NoError(t, res.Err)
}

func TestFetchUnavailableWithoutHistory(t *testing.T) {
	c := NewMarketData[string]("resolution")

	res := c.Fetch(context.Background(), "missing", func(context.Context) (string, error) { return "", errSource })

	assert.Equal(t, StatusUnavailable, res.Status)
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, errSource)
	assert.Empty(t, res.Value)
}

func TestFetchBoundsLoadWithTimeout(t *testing.T) {
	c := NewMarketData[int]("slow", WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := c.Fetch(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestFetchCoalescesConcurrentLoads(t *testing.T) {
	c := NewMarketData[int]("coalesce", WithTTL(time.Minute))

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 9, nil
	}

	var wg sync.WaitGroup
	results := make([]Result[int], 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Fetch(context.Background(), "k", load)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, 9, r.Value)
	}
}

func TestFetchUsesSecondTierAfterRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	defer store.Close()

	warm := NewMarketData[[]float64]("closes", WithSecondTier(store, time.Hour))
	warm.Fetch(context.Background(), "w1", func(context.Context) ([]float64, error) { return []float64{5, 6}, nil })

	// a new process has an empty memory tier
	cold := NewMarketData[[]float64]("closes", WithSecondTier(store, time.Hour), WithTTL(time.Nanosecond))
	res := cold.Fetch(context.Background(), "w1", func(context.Context) ([]float64, error) { return nil, errSource })

	assert.Equal(t, StatusStale, res.Status)
	assert.Equal(t, []float64{5, 6}, res.Value)

	peek, ok := cold.Peek("w1")
	require.True(t, ok)
	assert.Equal(t, []float64{5, 6}, peek.Value)
}

func TestInvalidate(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	c := NewMarketData[int]("inv", WithSecondTier(store, time.Hour), WithTTL(time.Hour))

	c.Fetch(context.Background(), "k", func(context.Context) (int, error) { return 1, nil })
	c.Invalidate(context.Background(), "k")

	_, ok := c.Peek("k")
	assert.False(t, ok)
	res := c.Fetch(context.Background(), "k", func(context.Context) (int, error) { return 0, errSource })
	assert.Equal(t, StatusUnavailable, res.Status)
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMarketData[int]("small", WithMaxEntries(2), WithClock(clock.Now), WithTTL(time.Hour))
	defer c.Close()

	for _, k := range []string{"a", "b", "c"} {
		k := k
		c.Fetch(context.Background(), k, func(context.Context) (int, error) { return len(k), nil })
		clock.Advance(time.Second)
	}

	_, okA := c.Peek("a")
	_, okC := c.Peek("c")
	assert.False(t, okA)
	assert.True(t, okC)
}
