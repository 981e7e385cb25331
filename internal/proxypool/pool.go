// Package proxypool implements the Proxy Pool (C2): endpoint selection and
// per-proxy health tracking for outbound egress. All state is in-memory and
// process-lifetime.
package proxypool

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

const (
	// failureThreshold is the number of consecutive failures that marks a
	// proxy unhealthy.
	failureThreshold = 3
	// autoRehabAfter is how long an unhealthy proxy stays excluded before
	// it is reconsidered on the next read.
	autoRehabAfter = 30 * time.Minute
)

// Strategy selects among the healthy proxy set.
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round-robin"
)

// Stats is a credential-masked snapshot of one proxy's health.
type Stats struct {
	URL                 string    `json:"url"`
	SuccessCount        int       `json:"success_count"`
	FailureCount        int       `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastUsedAt          time.Time `json:"last_used_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	IsHealthy           bool      `json:"is_healthy"`
}

type proxyState struct {
	url                 *url.URL
	successCount        int
	failureCount        int
	consecutiveFailures int
	lastUsedAt          time.Time
	lastFailureAt       time.Time
	isHealthy           bool
}

// Pool yields egress endpoints and tracks their health. Safe for concurrent
// use; Next never blocks and performs no I/O.
type Pool struct {
	mu       sync.Mutex
	order    []string // insertion order, for round-robin tie-break
	entries  map[string]*proxyState
	strategy Strategy

	nowFunc func() time.Time
}

// NewPool constructs a Pool seeded with the given proxy URLs (credential-
// bearing is fine — credentials never leave Stats() unmasked).
func NewPool(rawURLs []string, strategy Strategy) (*Pool, error) {
	if strategy != StrategyRandom && strategy != StrategyRoundRobin {
		strategy = StrategyRandom
	}
	p := &Pool{
		entries:  make(map[string]*proxyState, len(rawURLs)),
		strategy: strategy,
		nowFunc:  time.Now,
	}
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "proxypool: parse proxy url %q", raw)
		}
		p.order = append(p.order, raw)
		p.entries[raw] = &proxyState{url: u, isHealthy: true}
	}
	return p, nil
}

// Next returns the next proxy URL per the configured strategy, or nil for a
// direct connection when no proxy is currently healthy.
func (p *Pool) Next(ctx context.Context) (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	healthy := p.healthySet(now)
	if len(healthy) == 0 {
		return nil, nil
	}

	var pick string
	switch p.strategy {
	case StrategyRoundRobin:
		pick = healthy[0]
		for _, key := range healthy[1:] {
			if p.entries[key].lastUsedAt.Before(p.entries[pick].lastUsedAt) {
				pick = key
			}
		}
	default: // StrategyRandom
		pick = healthy[rand.Intn(len(healthy))]
	}

	p.entries[pick].lastUsedAt = now
	return p.entries[pick].url, nil
}

// healthySet returns the keys (in insertion order) of proxies that are
// healthy or have crossed the auto-rehab window. Caller holds p.mu.
func (p *Pool) healthySet(now time.Time) []string {
	var out []string
	for _, key := range p.order {
		st := p.entries[key]
		if st.isHealthy || now.Sub(st.lastFailureAt) >= autoRehabAfter {
			out = append(out, key)
		}
	}
	return out
}

// RecordSuccess marks proxyURL healthy and resets its failure streak.
func (p *Pool) RecordSuccess(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.entries[proxyURL]
	if !ok {
		return
	}
	st.consecutiveFailures = 0
	st.isHealthy = true
	st.successCount++
}

// RecordFailure registers a failed use of proxyURL, marking it unhealthy
// once consecutiveFailures crosses failureThreshold.
func (p *Pool) RecordFailure(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.entries[proxyURL]
	if !ok {
		return
	}
	st.failureCount++
	st.consecutiveFailures++
	if st.consecutiveFailures >= failureThreshold {
		st.isHealthy = false
		st.lastFailureAt = p.nowFunc()
	}
}

// Stats returns a credential-masked snapshot of every configured proxy.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stats, 0, len(p.order))
	for _, key := range p.order {
		st := p.entries[key]
		out = append(out, Stats{
			URL:                 maskCredentials(st.url),
			SuccessCount:        st.successCount,
			FailureCount:        st.failureCount,
			ConsecutiveFailures: st.consecutiveFailures,
			LastUsedAt:          st.lastUsedAt,
			LastFailureAt:       st.lastFailureAt,
			IsHealthy:           st.isHealthy,
		})
	}
	return out
}

// Reset rehabilitates proxyURL, or every proxy when proxyURL is empty.
func (p *Pool) Reset(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if proxyURL == "" {
		for _, st := range p.entries {
			rehab(st)
		}
		return
	}
	if st, ok := p.entries[proxyURL]; ok {
		rehab(st)
	}
}

func rehab(st *proxyState) {
	st.consecutiveFailures = 0
	st.isHealthy = true
	st.lastFailureAt = time.Time{}
}

// HealthSweep eagerly HEAD-probes every configured proxy's own host and
// rehabilitates those that respond, instead of waiting for the lazy
// auto-rehab check on the next Next() call. Probes run concurrently via
// errgroup, unbounded since the proxy count is small and operator-configured.
func (p *Pool) HealthSweep(ctx context.Context) error {
	p.mu.Lock()
	targets := make([]*proxyState, 0, len(p.order))
	for _, key := range p.order {
		targets = append(targets, p.entries[key])
	}
	p.mu.Unlock()

	client := &http.Client{Timeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range targets {
		st := st
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodHead, st.url.String(), nil)
			if err != nil {
				return eris.Wrapf(err, "proxypool: build probe request for %s", st.url.Host)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil // a failed probe just leaves the proxy as-is
			}
			_ = resp.Body.Close()
			p.mu.Lock()
			rehab(st)
			p.mu.Unlock()
			return nil
		})
	}
	return eris.Wrap(g.Wait(), "proxypool: health sweep")
}

func maskCredentials(u *url.URL) string {
	if u == nil {
		return ""
	}
	masked := *u
	if masked.User != nil {
		masked.User = url.UserPassword("***", "***")
	}
	return masked.String()
}
