package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucketRefills(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC))
	bucket := NewMemoryBucket(fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "k", 1, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter)

	fake.Advance(time.Second)
	res, err = bucket.Allow(ctx, "k", 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryBucketKeysAreIndependent(t *testing.T) {
	bucket := NewMemoryBucket(clock.NewFakeClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	res, err := bucket.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = bucket.Allow(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = bucket.Allow(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryBucketSweep(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC))
	bucket := NewMemoryBucket(fake)
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "old", 1, 1)
	require.NoError(t, err)
	fake.Advance(2 * time.Hour)
	_, err = bucket.Allow(ctx, "fresh", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, bucket.Sweep(time.Hour))
	assert.Len(t, bucket.entries, 1)
}

func TestBucketRejectsBadParameters(t *testing.T) {
	bucket := NewMemoryBucket(nil)
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(ctx, "k", 1, 0)
	assert.Error(t, err)
}

func TestNilIntakeLimiterAllows(t *testing.T) {
	var limiter *IntakeLimiter
	res, err := limiter.AllowClient(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "disabled", limiter.Backend())
}

func TestIntakeLimiterPerClient(t *testing.T) {
	bucket := NewMemoryBucket(clock.NewFakeClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC)))
	limiter, err := NewIntakeLimiter(bucket, "memory", 0.5, 1)
	require.NoError(t, err)
	ctx := context.Background()

	res, err := limiter.AllowClient(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowClient(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2*time.Second, res.RetryAfter)

	res, err = limiter.AllowClient(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = NewIntakeLimiter(nil, "redis", 1, 1)
	assert.Error(t, err)
}

func TestToFloatParsesScriptStrings(t *testing.T) {
	assert.InDelta(t, 1.5, toFloat("1.5"), 1e-9)
	assert.Equal(t, int64(7), toInt("7"))
	assert.Equal(t, int64(1), toInt(int64(1)))
}
