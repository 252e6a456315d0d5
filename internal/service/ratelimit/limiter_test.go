package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("data"))
	assert.True(t, l.Allow("data"))
	assert.False(t, l.Allow("data"))
	assert.True(t, l.Allow("gamma"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("data"))
	assert.False(t, l.Allow("data"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("data"))
	assert.True(t, l.Allow("data"))
	assert.False(t, l.Allow("data"))
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(1, 0.001)
	assert.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "k"), context.DeadlineExceeded)
}

func TestWaitWithoutRefill(t *testing.T) {
	l := New(1, 0)
	assert.NoError(t, l.Wait(context.Background(), "k"))
	assert.ErrorIs(t, l.Wait(context.Background(), "k"), ErrRateLimited)
}
