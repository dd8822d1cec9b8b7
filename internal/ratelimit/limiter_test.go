package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts map[string]int64
	err    error
	keys   []string
}

func (f *fakeCounter) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	f.keys = append(f.keys, key)
	return f.counts[key], nil
}

func TestAllowCountsWithinWindow(t *testing.T) {
	counter := &fakeCounter{}
	l := New(counter, 3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "tasker:1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow(ctx, "tasker:1.2.3.4"), "fourth request over a limit of 3")
}

func TestAllowKeysAreScopedPerClient(t *testing.T) {
	counter := &fakeCounter{}
	l := New(counter, 1, time.Minute)

	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "tasker:1.2.3.4"))
	assert.True(t, l.Allow(ctx, "tasker:5.6.7.8"), "different client has its own counter")
	assert.False(t, l.Allow(ctx, "tasker:1.2.3.4"))

	require.NotEmpty(t, counter.keys)
	assert.True(t, strings.HasPrefix(counter.keys[0], "ratelimit:tasker:1.2.3.4:"))
}

func TestAllowFailsOpenOnStoreError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	l := New(counter, 1, time.Minute)

	assert.True(t, l.Allow(context.Background(), "tasker:1.2.3.4"))
	assert.True(t, l.Allow(context.Background(), "tasker:1.2.3.4"))
}

func TestSubSecondWindowIsClampedNotFatal(t *testing.T) {
	counter := &fakeCounter{}
	l := New(counter, 1, 0)

	assert.True(t, l.Allow(context.Background(), "tasker:1.2.3.4"))
	assert.Equal(t, time.Second, l.window)
	require.Len(t, counter.keys, 1, "counter reached despite the zero window")
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	assert.True(t, New(nil, 0, time.Minute).Allow(context.Background(), "any"))

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow(context.Background(), "any"))
}
