package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterMinuteWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(2, 0, 0, true).WithClock(clock.now)

	assert.True(t, rl.AllowRequest("10.0.0.1"))
	assert.True(t, rl.AllowRequest("10.0.0.1"))
	assert.False(t, rl.AllowRequest("10.0.0.1"))

	// other clients have their own windows
	assert.True(t, rl.AllowRequest("10.0.0.2"))

	clock.advance(61 * time.Second)
	assert.True(t, rl.AllowRequest("10.0.0.1"))
}

func TestRateLimiterHourWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(10, 3, 0, true).WithClock(clock.now)

	for i := 0; i < 3; i++ {
		require.True(t, rl.AllowRequest("c"))
		clock.advance(2 * time.Minute)
	}
	assert.False(t, rl.AllowRequest("c"))

	clock.advance(time.Hour)
	assert.True(t, rl.AllowRequest("c"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1, false)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.AllowRequest("c"))
	}
	assert.False(t, rl.GetStats("c").Enabled)
}

func TestRateLimiterStats(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(5, 0, 100, true).WithClock(clock.now)

	rl.AllowRequest("c")
	rl.AllowRequest("c")

	s := rl.GetStats("c")
	assert.True(t, s.Enabled)
	assert.Equal(t, 2, s.RequestsLastMinute)
	assert.Equal(t, 3, s.RemainingThisMinute)
	assert.Equal(t, -1, s.RemainingThisHour)
	assert.Equal(t, 98, s.RemainingThisDay)
	assert.Equal(t, 1, s.TrackedClients)
}

func TestRateLimiterPrune(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(5, 0, 0, true).WithClock(clock.now)

	rl.AllowRequest("old")
	clock.advance(25 * time.Hour)
	rl.AllowRequest("new")

	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, 1, rl.GetStats("new").TrackedClients)
}

func TestRateLimiterStatsDoesNotTrackUnknownClients(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(5, 0, 0, true).WithClock(clock.now)

	rl.AllowRequest("known")
	for _, key := range []string{"a", "b", "c"} {
		s := rl.GetStats(key)
		assert.Equal(t, 0, s.RequestsLastMinute)
		assert.Equal(t, 5, s.RemainingThisMinute)
	}

	assert.Equal(t, 1, rl.GetStats("known").TrackedClients)
	assert.Equal(t, 0, rl.Prune())
}

func TestHostLimiterSpacesRequestsPerHost(t *testing.T) {
	hl := NewHostLimiter(2, 50*time.Millisecond, 0)
	ctx := context.Background()

	require.NoError(t, hl.Acquire(ctx, "a.example"))
	hl.Release()

	start := time.Now()
	require.NoError(t, hl.Acquire(ctx, "b.example"))
	hl.Release()
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	require.NoError(t, hl.Acquire(ctx, "a.example"))
	hl.Release()
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHostLimiterHonoursContext(t *testing.T) {
	hl := NewHostLimiter(1, 0, 0)
	require.NoError(t, hl.Acquire(context.Background(), "a.example"))
	assert.Equal(t, 1, hl.GetInFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := hl.Acquire(ctx, "b.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	hl.Release()
	assert.Equal(t, 0, hl.GetInFlight())
}
