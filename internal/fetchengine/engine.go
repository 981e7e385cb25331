package fetchengine

import (
	"context"
	"math/rand"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/pacing"
	"github.com/sells-group/leadgen-engine/internal/proxypool"
)

const (
	defaultQuickRetries    = 3
	defaultLongWaitRetries = 3
	longWaitSleep          = 60 * time.Second

	cardDelayMin = 18 * time.Second
	cardDelayMax = 30 * time.Second

	preCardWaitMin = 1 * time.Second
	preCardWaitMax = 2 * time.Second

	wheelEventsMin = 2
	wheelEventsMax = 4
	wheelPxMin     = 200
	wheelPxMax     = 600
	wheelSpacingMin = 800 * time.Millisecond
	wheelSpacingMax = 1500 * time.Millisecond

	cardSelector = "[data-urn], .feed-shared-update-v2, .directory-card"
)

// Request parameterizes one Harvest call.
type Request struct {
	Host              string // the host Pacing Governor keys on, e.g. "www.linkedin.com"
	URL               string
	Cookies           []SessionToken
	ProfileDir        string
	Limit             int  // max records to yield; 0 means no cap beyond the retry budgets
	HiringKeywordOnly bool // apply the hiring-keyword filter
	QuickRetries      int  // 0 uses defaultQuickRetries
	LongWaitRetries   int  // 0 uses defaultLongWaitRetries
}

// Engine drives a BrowserDriver through the scroll-and-harvest loop,
// consulting the Pacing Governor and Proxy Pool for every navigation.
// Within one campaign, fetch is single-flight: one browser context,
// sequential cards.
type Engine struct {
	driver   BrowserDriver
	governor *pacing.Governor
	proxies  *proxypool.Pool

	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func(min, max time.Duration) time.Duration
}

// Driver exposes the underlying BrowserDriver for callers that need a
// browser context outside the Harvest/HarvestCompanyDirectory loops, e.g.
// an optional enrichment lookup.
func (e *Engine) Driver() BrowserDriver { return e.driver }

// EngineOption configures optional Engine behavior.
type EngineOption func(*Engine)

// WithClock overrides the sleep and jitter functions the harvest loop uses
// between cards and scroll events. Tests use this to remove real-time
// delays; production callers never need it.
func WithClock(sleepFunc func(ctx context.Context, d time.Duration) error, randFunc func(min, max time.Duration) time.Duration) EngineOption {
	return func(e *Engine) {
		if sleepFunc != nil {
			e.sleepFunc = sleepFunc
		}
		if randFunc != nil {
			e.randFunc = randFunc
		}
	}
}

// NewEngine constructs an Engine wired to the given capabilities.
func NewEngine(driver BrowserDriver, governor *pacing.Governor, proxies *proxypool.Pool, opts ...EngineOption) *Engine {
	e := &Engine{
		driver:    driver,
		governor:  governor,
		proxies:   proxies,
		sleepFunc: sleepCtx,
		randFunc:  uniformDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Harvest drives req to completion, streaming raw records on the returned
// channel. The error channel carries at most one terminal error
// (ErrRateLimited, ErrUnauthenticated, or a Transient/Fatal wrap); both
// channels are closed when the loop ends. Records and the error are never
// sent after the channels close.
func (e *Engine) Harvest(ctx context.Context, req Request) (<-chan model.RawRecord, <-chan error) {
	out := make(chan model.RawRecord)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		if err := e.run(ctx, req, out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (e *Engine) run(ctx context.Context, req Request, out chan<- model.RawRecord) error {
	quickBudget := req.QuickRetries
	if quickBudget <= 0 {
		quickBudget = defaultQuickRetries
	}
	longBudget := req.LongWaitRetries
	if longBudget <= 0 {
		longBudget = defaultLongWaitRetries
	}

	proxyURL, err := e.proxies.Next(ctx)
	if err != nil {
		return eris.Wrap(err, "fetchengine: select proxy")
	}

	browserCtx, err := e.driver.LaunchContext(ctx, LaunchOptions{
		ProfileDir: req.ProfileDir,
		Cookies:    req.Cookies,
		ProxyURL:   proxyURLString(proxyURL),
	})
	if err != nil {
		return eris.Wrap(err, "fetchengine: launch browser context")
	}
	defer browserCtx.Close(ctx)

	page, err := browserCtx.NewPage(ctx)
	if err != nil {
		return eris.Wrap(err, "fetchengine: open page")
	}

	if _, err := e.governor.Await(ctx, req.Host); err != nil {
		return eris.Wrap(err, "fetchengine: await pacing permission")
	}
	if err := page.Goto(ctx, req.URL, GotoOptions{WaitFor: "domcontentloaded", TimeoutMs: 60000}); err != nil {
		e.governor.RecordError(req.Host)
		e.recordProxyFailure(proxyURL)
		return eris.Wrap(err, "fetchengine: navigate")
	}

	if err := e.checkVerdict(ctx, page, req.Host); err != nil {
		return err
	}
	e.governor.RecordSuccess(req.Host)
	e.recordProxySuccess(proxyURL)

	return e.scrollAndHarvest(ctx, page, req, quickBudget, longBudget, out)
}

// scrollAndHarvest is the per-page loop described in the scroll-and-harvest
// contract: two nested retry budgets, human-paced delays between cards,
// and four termination conditions checked in priority order.
func (e *Engine) scrollAndHarvest(ctx context.Context, page Page, req Request, quickBudget, longBudget int, out chan<- model.RawRecord) error {
	seen := make(map[string]struct{})
	harvested := 0
	quickLeft := quickBudget
	longLeft := longBudget
	firstCard := true

	for {
		if req.Limit > 0 && harvested >= req.Limit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		elements, err := page.QuerySelectorAll(ctx, cardSelector)
		if err != nil {
			e.governor.RecordError(req.Host)
			return eris.Wrap(err, "fetchengine: query cards")
		}

		newThisPass := 0
		for i, el := range elements {
			rec, ok, err := e.extractOne(ctx, page, i)
			if err != nil {
				e.governor.RecordError(req.Host)
				continue // transient DOM failure: skip this card, continue the loop
			}
			if !ok {
				continue
			}
			if _, dup := seen[rec.ProviderID]; dup {
				continue
			}
			if req.HiringKeywordOnly && !containsHiringKeyword(rec.PostText) {
				seen[rec.ProviderID] = struct{}{}
				continue
			}

			if !firstCard {
				if err := e.sleepFunc(ctx, e.randFunc(cardDelayMin, cardDelayMax)); err != nil {
					return err
				}
			}
			firstCard = false

			if err := el.ScrollIntoViewIfNeeded(ctx); err == nil {
				_ = e.sleepFunc(ctx, e.randFunc(preCardWaitMin, preCardWaitMax))
			}

			if verdict := DetectVerdict(page.URL(), rec.PostText); verdict != VerdictOK {
				return e.verdictErr(req.Host, verdict)
			}

			seen[rec.ProviderID] = struct{}{}
			newThisPass++
			harvested++

			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			if req.Limit > 0 && harvested >= req.Limit {
				return nil
			}
		}

		if verdict := DetectVerdict(page.URL(), ""); verdict != VerdictOK {
			return e.verdictErr(req.Host, verdict)
		}

		if newThisPass > 0 {
			quickLeft = quickBudget
			continue
		}

		if quickLeft > 0 {
			quickLeft--
			if err := e.shortScroll(ctx, page); err != nil {
				return err
			}
			continue
		}

		if longLeft > 0 {
			longLeft--
			quickLeft = quickBudget
			if err := e.sleepFunc(ctx, longWaitSleep); err != nil {
				return err
			}
			continue
		}

		return ErrExhausted
	}
}

// shortScroll performs 2-4 downward wheel events spaced 800-1500ms apart,
// per the quick-retry contract.
func (e *Engine) shortScroll(ctx context.Context, page Page) error {
	events := wheelEventsMin + rand.Intn(wheelEventsMax-wheelEventsMin+1)
	for i := 0; i < events; i++ {
		px := wheelPxMin + rand.Intn(wheelPxMax-wheelPxMin+1)
		if err := page.WheelDown(ctx, 0, px); err != nil {
			return eris.Wrap(err, "fetchengine: scroll wheel")
		}
		if err := e.sleepFunc(ctx, e.randFunc(wheelSpacingMin, wheelSpacingMax)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) extractOne(ctx context.Context, page Page, index int) (model.RawRecord, bool, error) {
	raw, err := page.Evaluate(ctx, cardExtractionScript(index))
	if err != nil {
		return model.RawRecord{}, false, err
	}
	c := decodeCardPayload(raw)
	rec, ok := extractRawRecord(c)
	return rec, ok, nil
}

func (e *Engine) checkVerdict(ctx context.Context, page Page, host string) error {
	body, err := page.Content()
	if err != nil {
		e.governor.RecordError(host)
		return eris.Wrap(err, "fetchengine: read page content")
	}
	if verdict := DetectVerdict(page.URL(), body); verdict != VerdictOK {
		return e.verdictErr(host, verdict)
	}
	return nil
}

// verdictErr translates a non-OK Verdict into the engine's sentinel error,
// recording rate-limit pushback against host so the Governor's backoff and
// extended-cooldown escalation actually sees it.
func (e *Engine) verdictErr(host string, v Verdict) error {
	switch v {
	case VerdictRateLimited:
		e.governor.RecordRateLimit(host)
		return ErrRateLimited
	case VerdictUnauthenticated:
		return ErrUnauthenticated
	default:
		return nil
	}
}

func (e *Engine) recordProxyFailure(proxyURL *url.URL) {
	if proxyURL != nil {
		e.proxies.RecordFailure(proxyURL.String())
	}
}

func (e *Engine) recordProxySuccess(proxyURL *url.URL) {
	if proxyURL != nil {
		e.proxies.RecordSuccess(proxyURL.String())
	}
}

func proxyURLString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

func uniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	return min + time.Duration(rand.Int63n(span+1))
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
