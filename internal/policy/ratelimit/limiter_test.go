package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/foo"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/bar"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLimiterZeroDelayNeverBlocks(t *testing.T) {
	t.Parallel()

	l := New(0)
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.Wait(context.Background(), "https://example.com/"))
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(time.Hour)
	require.NoError(t, l.Wait(context.Background(), "https://example.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://example.com/")
	require.Error(t, err)
}
