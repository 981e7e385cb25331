// Package pacing implements the adaptive per-host request-pacing policy
// (Pacing Governor, C1): minimum spacing with jitter, exponential backoff on
// provider pushback, an extended cooldown after repeated pushback, and a
// sliding-window request cap. All state is in-memory and process-lifetime.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minSpacing is the floor on time between permitted requests to a host
	// under normal conditions.
	minSpacing = 10 * time.Minute
	// jitterSpan bounds the uniform jitter added to each wait, in either
	// direction.
	jitterSpan = 5 * time.Minute
	// maxSpacing caps the exponential backoff applied after repeated
	// provider pushback.
	maxSpacing = 60 * time.Minute
	// rateLimitThreshold is the number of consecutive rate-limit signals
	// that trips extended cooldown.
	rateLimitThreshold = 3
	// extendedCooldown is how long a host stays blocked once
	// rateLimitThreshold is crossed.
	extendedCooldown = 2 * time.Hour
	// windowSize is the sliding-window duration for the request cap.
	windowSize = 60 * time.Minute
	// windowCap is the maximum number of requests admitted per windowSize.
	windowCap = 10
)

// Decision is the outcome of an Await call.
type Decision struct {
	// Blocked is true when the host is in extended cooldown; the caller
	// should abandon the request rather than wait.
	Blocked bool
	// RetryAfter is set when Blocked is true.
	RetryAfter time.Duration
	// Waited is how long Await actually slept before returning permission.
	Waited time.Duration
}

// HostStats is an observability snapshot of a single host's DomainState.
type HostStats struct {
	Host                  string    `json:"host"`
	ConsecutiveRateLimits int       `json:"consecutive_rate_limits"`
	ExtendedBackoffUntil  time.Time `json:"extended_backoff_until,omitempty"`
	WindowRequestCount    int       `json:"window_request_count"`
	LastRequestAt         time.Time `json:"last_request_at,omitempty"`
}

// Governor serializes outbound requests per host. Safe for concurrent use.
type Governor struct {
	mu    sync.Mutex
	hosts map[string]*hostLimiter

	// fallback is a generic rate.Limiter built by NewGovernor. Await never
	// consults it: every host gets the same spacing, window and backoff policy.
	fallback *rate.Limiter

	// nowFunc and sleepFunc allow deterministic tests.
	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	jitter    func(span time.Duration) time.Duration
}

// NewGovernor constructs a Governor with the documented policy.
func NewGovernor() *Governor {
	return &Governor{
		hosts:     make(map[string]*hostLimiter),
		fallback:  rate.NewLimiter(rate.Every(time.Minute), 1),
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
		jitter:    uniformJitter,
	}
}

// hostLimiter guards one host's DomainState and serializes Await calls
// arriving for it via a mutex held for the duration of the wait — the next
// caller only acquires it once the current one has slept out its spacing,
// which gives strict arrival-order queuing.
type hostLimiter struct {
	mu sync.Mutex

	lastRequestAt         time.Time
	window                []time.Time
	consecutiveRateLimits int
	extendedBackoffUntil  time.Time
}

func (g *Governor) limiterFor(host string) *hostLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	hl, ok := g.hosts[host]
	if !ok {
		hl = &hostLimiter{}
		g.hosts[host] = hl
	}
	return hl
}

// Await blocks until a request to host is permitted, or reports Blocked if
// the host is in extended cooldown. The underlying mutex is held for the
// whole wait, so concurrent Await calls for the same host queue strictly in
// arrival order.
func (g *Governor) Await(ctx context.Context, host string) (Decision, error) {
	hl := g.limiterFor(host)
	hl.mu.Lock()
	defer hl.mu.Unlock()

	now := g.nowFunc()
	if !hl.extendedBackoffUntil.IsZero() && now.Before(hl.extendedBackoffUntil) {
		return Decision{Blocked: true, RetryAfter: hl.extendedBackoffUntil.Sub(now)}, nil
	}

	spacingWait := g.spacingWait(hl, now)
	windowWait := g.windowWait(hl, now)
	wait := spacingWait
	if windowWait > wait {
		wait = windowWait
	}
	wait += g.jitter(jitterSpan)
	// Jitter must never erode the wait below the current effective minSpacing
	// floor — a negative draw can only eat into the slack windowWait added on
	// top of spacingWait, not the spacing requirement itself.
	if wait < spacingWait {
		wait = spacingWait
	}

	if wait > 0 {
		if err := g.sleepFunc(ctx, wait); err != nil {
			return Decision{}, err
		}
	}

	now = g.nowFunc()
	hl.lastRequestAt = now
	hl.window = append(pruneWindow(hl.window, now), now)

	return Decision{Waited: wait}, nil
}

func (g *Governor) spacingWait(hl *hostLimiter, now time.Time) time.Duration {
	if hl.lastRequestAt.IsZero() {
		return 0
	}
	spacing := minSpacing << hl.consecutiveRateLimits // 2^n backoff
	if spacing > maxSpacing || spacing <= 0 {
		spacing = maxSpacing
	}
	elapsed := now.Sub(hl.lastRequestAt)
	if elapsed >= spacing {
		return 0
	}
	return spacing - elapsed
}

func (g *Governor) windowWait(hl *hostLimiter, now time.Time) time.Duration {
	hl.window = pruneWindow(hl.window, now)
	if len(hl.window) < windowCap {
		return 0
	}
	oldest := hl.window[0]
	return oldest.Add(windowSize).Sub(now)
}

func pruneWindow(window []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-windowSize)
	i := 0
	for i < len(window) && window[i].Before(cutoff) {
		i++
	}
	return window[i:]
}

// RecordSuccess clears rate-limit state for host.
func (g *Governor) RecordSuccess(host string) {
	hl := g.limiterFor(host)
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.consecutiveRateLimits = 0
	hl.extendedBackoffUntil = time.Time{}
}

// RecordRateLimit registers provider pushback for host, escalating backoff
// and tripping extended cooldown once the threshold is crossed.
func (g *Governor) RecordRateLimit(host string) {
	hl := g.limiterFor(host)
	hl.mu.Lock()
	defer hl.mu.Unlock()
	hl.consecutiveRateLimits++
	if hl.consecutiveRateLimits >= rateLimitThreshold {
		hl.extendedBackoffUntil = g.nowFunc().Add(extendedCooldown)
	}
}

// RecordError registers a transport/other failure for host. Per spec this
// does not affect consecutiveRateLimits.
func (g *Governor) RecordError(host string) {
	// Deliberately a no-op on rate-limit state; kept as a named method so
	// call sites distinguish "provider pushback" from "transport failure"
	// even though only the former currently changes state.
	_ = g.limiterFor(host)
}

// Stats returns a snapshot of host's DomainState.
func (g *Governor) Stats(host string) HostStats {
	hl := g.limiterFor(host)
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return HostStats{
		Host:                  host,
		ConsecutiveRateLimits: hl.consecutiveRateLimits,
		ExtendedBackoffUntil:  hl.extendedBackoffUntil,
		WindowRequestCount:    len(pruneWindow(hl.window, g.nowFunc())),
		LastRequestAt:         hl.lastRequestAt,
	}
}

// Reset clears all state for host.
func (g *Governor) Reset(host string) {
	hl := g.limiterFor(host)
	hl.mu.Lock()
	defer hl.mu.Unlock()
	*hl = hostLimiter{}
}

// Snapshot returns stats for every host the Governor has seen, for the
// observability endpoint described in the configuration surface.
func (g *Governor) Snapshot() map[string]HostStats {
	g.mu.Lock()
	hosts := make([]string, 0, len(g.hosts))
	for h := range g.hosts {
		hosts = append(hosts, h)
	}
	g.mu.Unlock()

	out := make(map[string]HostStats, len(hosts))
	for _, h := range hosts {
		out[h] = g.Stats(h)
	}
	return out
}

func uniformJitter(span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	// Uniform in [-span, +span].
	n := rand.Int63n(int64(2*span) + 1)
	return time.Duration(n) - span
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
