package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T, limits Limits) (*RedisLimiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, limits, nil)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, mr, &now
}

func TestRedisLimiterAdmitsUpToLimit(t *testing.T) {
	l, _, _ := newTestRedisLimiter(t, Limits{PerMinuteByPatient: 3, PerMinuteByIP: 100})
	ctx := context.Background()
	req := Request{PatientID: "42", IP: "10.0.0.1"}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, req)
		require.NoError(t, err)
		assert.True(t, d.OK, "call %d within the limit must be admitted", i+1)
	}

	d, err := l.Allow(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, ScopePatient, d.Scope)
	assert.Greater(t, d.RetryAfterSec(), 0)
	assert.LessOrEqual(t, d.RetryAfterSec(), 60)
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	l, _, now := newTestRedisLimiter(t, Limits{PerMinuteByPatient: 2, PerMinuteByIP: 100})
	ctx := context.Background()
	req := Request{PatientID: "42", IP: "10.0.0.1"}

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, req)
		require.NoError(t, err)
		require.True(t, d.OK)
	}
	d, err := l.Allow(ctx, req)
	require.NoError(t, err)
	require.False(t, d.OK)

	*now = now.Add(61 * time.Second)
	d, err = l.Allow(ctx, req)
	require.NoError(t, err)
	assert.True(t, d.OK, "an exhausted key is admitted again after the window passes")
}

func TestRedisLimiterMostRestrictiveWins(t *testing.T) {
	l, _, _ := newTestRedisLimiter(t, Limits{PerMinuteByPatient: 100, PerMinuteByIP: 1})
	ctx := context.Background()

	d, err := l.Allow(ctx, Request{PatientID: "1", IP: "10.0.0.9"})
	require.NoError(t, err)
	require.True(t, d.OK)

	// Patient window has capacity, IP window does not: reject.
	d, err = l.Allow(ctx, Request{PatientID: "2", IP: "10.0.0.9"})
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, ScopeIP, d.Scope)
}

func TestRedisLimiterSetsKeyTTL(t *testing.T) {
	l, mr, _ := newTestRedisLimiter(t, Limits{PerMinuteByPatient: 5, PerMinuteByIP: 5})
	ctx := context.Background()

	_, err := l.Allow(ctx, Request{PatientID: "42", IP: "10.0.0.1"})
	require.NoError(t, err)

	ttl := mr.TTL("rate:patient:42")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, KeyTTL)

	// Idle keys vanish after the TTL instead of lingering forever.
	mr.FastForward(KeyTTL + time.Second)
	assert.False(t, mr.Exists("rate:patient:42"))
}

func TestRedisLimiterFailsOpenWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, Limits{PerMinuteByPatient: 1, PerMinuteByIP: 1}, nil)
	mr.Close()

	d, err := l.Allow(context.Background(), Request{PatientID: "42", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, d.OK, "a limiter outage must not block the pipeline")
}
