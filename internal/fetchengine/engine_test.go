package fetchengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/pacing"
	"github.com/sells-group/leadgen-engine/internal/proxypool"
)

// fakeDriver/fakePage/fakeElement are an in-memory BrowserDriver, grounded
// on how the teacher fakes its fetcher capability in testhelpers_test.go:
// a tiny hand-rolled stub that returns scripted data instead of driving a
// real browser.
type fakeDriver struct {
	page *fakePage
}

func (d *fakeDriver) LaunchContext(ctx context.Context, opts LaunchOptions) (BrowserContext, error) {
	return &fakeContext{page: d.page}, nil
}

type fakeContext struct {
	page *fakePage
}

func (c *fakeContext) NewPage(ctx context.Context) (Page, error) { return c.page, nil }
func (c *fakeContext) Close(ctx context.Context) error           { return nil }

type fakePage struct {
	url     string
	content string
	passes  [][]map[string]any
	calls   int
}

func (p *fakePage) Goto(ctx context.Context, url string, opts GotoOptions) error { return nil }
func (p *fakePage) URL() string                                                 { return p.url }
func (p *fakePage) Content() (string, error)                                    { return p.content, nil }
func (p *fakePage) Title() (string, error)                                      { return "", nil }

func (p *fakePage) Evaluate(ctx context.Context, script string) (any, error) {
	var idx int
	if _, err := fmt.Sscanf(script, "__harvestCard(%d)", &idx); err != nil {
		return nil, err
	}
	pass := p.currentPass()
	if idx < 0 || idx >= len(pass) {
		return map[string]any{}, nil
	}
	return pass[idx], nil
}

func (p *fakePage) currentPass() []map[string]any {
	if len(p.passes) == 0 {
		return nil
	}
	i := p.calls
	if i >= len(p.passes) {
		i = len(p.passes) - 1
	}
	return p.passes[i]
}

func (p *fakePage) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	pass := p.currentPass()
	p.calls++
	out := make([]Element, len(pass))
	for i := range pass {
		out[i] = &fakeElement{}
	}
	return out, nil
}

func (p *fakePage) WheelDown(ctx context.Context, dx, dy int) error           { return nil }
func (p *fakePage) WaitForTimeout(ctx context.Context, d time.Duration) error { return nil }

type fakeElement struct{}

func (e *fakeElement) InnerText(ctx context.Context) (string, error)            { return "", nil }
func (e *fakeElement) GetAttribute(ctx context.Context, name string) (string, error) { return "", nil }
func (e *fakeElement) ScrollIntoViewIfNeeded(ctx context.Context) error         { return nil }

func cardPayload(providerID, postText string) map[string]any {
	return map[string]any{
		"dataUrn":  "urn:li:activity:" + providerID,
		"postText": postText,
	}
}

func newTestEngine(page *fakePage) *Engine {
	e := NewEngine(&fakeDriver{page: page}, pacing.NewGovernor(), noopProxyPool())
	e.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func noopProxyPool() *proxypool.Pool {
	p, err := proxypool.NewPool(nil, proxypool.StrategyRandom)
	if err != nil {
		panic(err)
	}
	return p
}

func TestEngine_Harvest_StopsAtLimit(t *testing.T) {
	page := &fakePage{
		url: "https://www.linkedin.com/search/results/content/",
		passes: [][]map[string]any{
			{cardPayload("1", "hiring an engineer"), cardPayload("2", "another post"), cardPayload("3", "yet another")},
		},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 2})

	var recs []model.RawRecord
	for r := range out {
		recs = append(recs, r)
	}
	require.NoError(t, <-errc)
	require.Len(t, recs, 2)
	require.Equal(t, "1", recs[0].ProviderID)
	require.Equal(t, "2", recs[1].ProviderID)
}

func TestEngine_Harvest_DedupesAcrossScrollPasses(t *testing.T) {
	page := &fakePage{
		url: "https://www.linkedin.com/search/results/content/",
		passes: [][]map[string]any{
			{cardPayload("1", "post one")},
			{cardPayload("1", "post one"), cardPayload("2", "post two")},
		},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 2})

	var recs []model.RawRecord
	for r := range out {
		recs = append(recs, r)
	}
	require.NoError(t, <-errc)
	require.Len(t, recs, 2)
	require.Equal(t, "1", recs[0].ProviderID)
	require.Equal(t, "2", recs[1].ProviderID)
}

func TestEngine_Harvest_HiringKeywordFilterDropsNonMatching(t *testing.T) {
	page := &fakePage{
		url: "https://www.linkedin.com/in/someone/recent-activity/all/",
		passes: [][]map[string]any{
			{cardPayload("1", "just a regular update"), cardPayload("2", "we are hiring a backend engineer")},
		},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{
		Host:              "www.linkedin.com",
		URL:               page.url,
		Limit:             1,
		HiringKeywordOnly: true,
	})

	var recs []model.RawRecord
	for r := range out {
		recs = append(recs, r)
	}
	require.NoError(t, <-errc)
	require.Len(t, recs, 1)
	require.Equal(t, "2", recs[0].ProviderID)
}

func TestEngine_Harvest_UnauthenticatedOnLoginRedirect(t *testing.T) {
	page := &fakePage{url: "https://www.linkedin.com/login"}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 5})

	for range out {
	}
	require.ErrorIs(t, <-errc, ErrUnauthenticated)
}

func TestEngine_Harvest_RateLimitedOnBodyMarker(t *testing.T) {
	page := &fakePage{
		url:     "https://www.linkedin.com/search/results/content/",
		content: "We have detected unusual activity on your account.",
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 5})

	for range out {
	}
	require.ErrorIs(t, <-errc, ErrRateLimited)
}

func TestEngine_Harvest_RateLimitedMidCardText(t *testing.T) {
	page := &fakePage{
		url: "https://www.linkedin.com/search/results/content/",
		passes: [][]map[string]any{
			{cardPayload("1", "please verify your identity to continue")},
		},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 5})

	var recs []model.RawRecord
	for r := range out {
		recs = append(recs, r)
	}
	require.Empty(t, recs)
	require.ErrorIs(t, <-errc, ErrRateLimited)
}

func TestEngine_Harvest_CheckpointURLIsRateLimitedNotUnauthenticated(t *testing.T) {
	page := &fakePage{url: "https://www.linkedin.com/checkpoint/challenge"}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 5})

	for range out {
	}
	require.ErrorIs(t, <-errc, ErrRateLimited)
}

func TestEngine_Harvest_CheckpointVerdictRecordsRateLimitOnGovernor(t *testing.T) {
	page := &fakePage{url: "https://www.linkedin.com/checkpoint/challenge"}
	e := newTestEngine(page)
	host := "www.linkedin.com"

	out, errc := e.Harvest(context.Background(), Request{Host: host, URL: page.url, Limit: 5})
	for range out {
	}
	require.ErrorIs(t, <-errc, ErrRateLimited)

	stats := e.governor.Stats(host)
	require.Equal(t, 1, stats.ConsecutiveRateLimits)
}

func TestEngine_Harvest_ExhaustedWhenNoNewRecords(t *testing.T) {
	page := &fakePage{
		url:    "https://www.linkedin.com/search/results/content/",
		passes: [][]map[string]any{{}},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{
		Host:            "www.linkedin.com",
		URL:             page.url,
		Limit:           5,
		QuickRetries:    1,
		LongWaitRetries: 1,
	})

	for range out {
	}
	require.ErrorIs(t, <-errc, ErrExhausted)
}

func TestEngine_Harvest_MissingProviderIDSkipsCard(t *testing.T) {
	page := &fakePage{
		url: "https://www.linkedin.com/search/results/content/",
		passes: [][]map[string]any{
			{{"postText": "no urn here"}, cardPayload("9", "a real post")},
		},
	}
	e := newTestEngine(page)

	out, errc := e.Harvest(context.Background(), Request{Host: "www.linkedin.com", URL: page.url, Limit: 1})

	var recs []model.RawRecord
	for r := range out {
		recs = append(recs, r)
	}
	require.NoError(t, <-errc)
	require.Len(t, recs, 1)
	require.Equal(t, "9", recs[0].ProviderID)
}
