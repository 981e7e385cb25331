package pacing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestGovernor returns a Governor with deterministic time and no-jitter,
// no-actual-sleep hooks so tests run instantly and assert exact durations.
func newTestGovernor(t *testing.T) (*Governor, *fakeClock) {
	t.Helper()
	fc := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := NewGovernor()
	g.nowFunc = fc.Now
	g.jitter = func(time.Duration) time.Duration { return 0 }
	g.sleepFunc = func(ctx context.Context, d time.Duration) error {
		fc.Advance(d)
		return nil
	}
	return g, fc
}

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
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGovernor_FirstRequestNoWait(t *testing.T) {
	g, _ := newTestGovernor(t)
	d, err := g.Await(context.Background(), "www.linkedin.com")
	require.NoError(t, err)
	require.False(t, d.Blocked)
	require.Zero(t, d.Waited)
}

func TestGovernor_SecondRequestWaitsMinSpacing(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)

	d, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)
	require.Equal(t, minSpacing, d.Waited)
}

func TestGovernor_ExponentialBackoffAfterRateLimit(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)

	g.RecordRateLimit("www.linkedin.com")

	d, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)
	require.Equal(t, 2*minSpacing, d.Waited)
}

func TestGovernor_JitterNeverErodesBelowMinSpacing(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()
	host := "www.linkedin.com"

	// A maximally negative jitter draw must not push the wait under the
	// current effective minSpacing floor.
	g.jitter = func(span time.Duration) time.Duration { return -span }

	_, err := g.Await(ctx, host)
	require.NoError(t, err)

	d, err := g.Await(ctx, host)
	require.NoError(t, err)
	require.GreaterOrEqual(t, d.Waited, minSpacing)
	require.Equal(t, minSpacing, d.Waited)
}

func TestGovernor_BackoffCapsAtMaxSpacing(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		g.RecordRateLimit("www.linkedin.com")
	}

	stats := g.Stats("www.linkedin.com")
	require.True(t, stats.ConsecutiveRateLimits >= rateLimitThreshold)

	// Extended cooldown trips before we'd ever observe the raw spacing cap,
	// so reset just the backoff timer to exercise the cap directly.
	hl := g.limiterFor("www.linkedin.com")
	hl.extendedBackoffUntil = time.Time{}

	d, err := g.Await(ctx, "www.linkedin.com")
	require.NoError(t, err)
	require.Equal(t, maxSpacing, d.Waited)
}

func TestGovernor_ExtendedCooldownBlocksAfterThreshold(t *testing.T) {
	g, _ := newTestGovernor(t)
	host := "www.linkedin.com"

	g.RecordRateLimit(host)
	g.RecordRateLimit(host)
	g.RecordRateLimit(host)

	stats := g.Stats(host)
	require.Equal(t, 3, stats.ConsecutiveRateLimits)
	require.Equal(t, extendedCooldown, stats.ExtendedBackoffUntil.Sub(g.nowFunc()))

	d, err := g.Await(context.Background(), host)
	require.NoError(t, err)
	require.True(t, d.Blocked)
	require.Equal(t, extendedCooldown, d.RetryAfter)
}

func TestGovernor_RecordSuccessClearsBackoff(t *testing.T) {
	g, _ := newTestGovernor(t)
	host := "www.linkedin.com"

	g.RecordRateLimit(host)
	g.RecordRateLimit(host)
	g.RecordRateLimit(host)
	g.RecordSuccess(host)

	stats := g.Stats(host)
	require.Zero(t, stats.ConsecutiveRateLimits)
	require.True(t, stats.ExtendedBackoffUntil.IsZero())

	d, err := g.Await(context.Background(), host)
	require.NoError(t, err)
	require.False(t, d.Blocked)
}

func TestGovernor_RecordErrorDoesNotAffectRateLimitCount(t *testing.T) {
	g, _ := newTestGovernor(t)
	host := "www.linkedin.com"

	g.RecordError(host)
	g.RecordError(host)
	g.RecordError(host)

	stats := g.Stats(host)
	require.Zero(t, stats.ConsecutiveRateLimits)
}

func TestGovernor_SlidingWindowCapsRequests(t *testing.T) {
	g, fc := newTestGovernor(t)
	ctx := context.Background()
	host := "www.linkedin.com"

	// Under the documented 10-minute minimum spacing, the window cap can
	// never bind on its own (max natural rate is 6/hour, below the 10/hour
	// cap) — populate the window directly to exercise the window-admission
	// branch of Await in isolation.
	hl := g.limiterFor(host)
	now := fc.Now()
	hl.lastRequestAt = now.Add(-minSpacing) // spacing requirement already satisfied
	for i := 0; i < windowCap; i++ {
		hl.window = append(hl.window, now.Add(-time.Duration(i)*time.Minute))
	}

	stats := g.Stats(host)
	require.Equal(t, windowCap, stats.WindowRequestCount)

	d, err := g.Await(ctx, host)
	require.NoError(t, err)
	require.Greater(t, d.Waited, time.Duration(0))
}

func TestGovernor_ResetClearsState(t *testing.T) {
	g, _ := newTestGovernor(t)
	host := "www.linkedin.com"

	g.RecordRateLimit(host)
	g.Reset(host)

	stats := g.Stats(host)
	require.Zero(t, stats.ConsecutiveRateLimits)
}

func TestGovernor_PerHostIndependence(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, err := g.Await(ctx, "host-a")
	require.NoError(t, err)

	d, err := g.Await(ctx, "host-b")
	require.NoError(t, err)
	require.Zero(t, d.Waited)
}

func TestGovernor_AwaitReleasesOnContextCancel(t *testing.T) {
	g, _ := newTestGovernor(t)
	host := "www.linkedin.com"

	g.sleepFunc = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}

	_, err := g.Await(context.Background(), host)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Await(ctx, host)
	require.Error(t, err)

	// The mutex must have been released despite the cancellation, so a
	// subsequent Await does not deadlock.
	done := make(chan struct{})
	go func() {
		_, _ = g.Await(context.Background(), host)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not release its lock after context cancellation")
	}
}

func TestGovernor_Snapshot(t *testing.T) {
	g, _ := newTestGovernor(t)
	ctx := context.Background()

	_, _ = g.Await(ctx, "host-a")
	_, _ = g.Await(ctx, "host-b")

	snap := g.Snapshot()
	require.Len(t, snap, 2)
	require.Contains(t, snap, "host-a")
	require.Contains(t, snap, "host-b")
}
