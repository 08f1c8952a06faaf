package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/warrantyhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryBucketBurstThenDeny(t *testing.T) {
	bucket := NewMemoryBucket()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 1, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := bucket.Allow(ctx, "k", 1, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	other, err := bucket.Allow(ctx, "other", 1, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(2 * time.Second)
	res, err = bucket.Allow(ctx, "k", 1, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryBucketEvictsIdleKeys(t *testing.T) {
	bucket := NewMemoryBucket()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }

	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = bucket.Allow(context.Background(), "j", 1, 1)
	require.NoError(t, err)

	_, ok := bucket.entries["k"]
	assert.False(t, ok)
}

func TestMemoryBucketValidates(t *testing.T) {
	_, err := NewMemoryBucket().Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = NewMemoryBucket().Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)
}

func TestPublicLookupLimiterWithoutRedis(t *testing.T) {
	cfg := config.Config{Tenancy: config.TenancyConfig{PublicLookupRate: 1, PublicLookupBurst: 2}}
	limiter := NewPublicLookupLimiter(cfg, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "acme", "10.0.0.1").Allowed)
	assert.True(t, limiter.Allow(ctx, "ACME", "10.0.0.1").Allowed)
	assert.False(t, limiter.Allow(ctx, "acme", "10.0.0.1").Allowed)
	assert.True(t, limiter.Allow(ctx, "acme", "10.0.0.2").Allowed)
}

func TestPublicLookupLimiterDisabled(t *testing.T) {
	limiter := NewPublicLookupLimiter(config.Config{}, nil, zaptest.NewLogger(t))
	for i := 0; i < 50; i++ {
		assert.True(t, limiter.Allow(context.Background(), "acme", "ip").Allowed)
	}
}

func TestNilLockerRunsUnguarded(t *testing.T) {
	var locker *Locker
	called := false
	err := locker.WithLock(context.Background(), "k", time.Second, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	boom := errors.New("boom")
	err = locker.WithLock(context.Background(), "k", time.Second, time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

func TestNewResultRetryAfter(t *testing.T) {
	res := newResult(false, 5, 0.5, 2)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)
	assert.Equal(t, 0, res.Remaining)
}
