// Package orchestrator implements the Campaign Orchestrator (C5): it owns
// the campaign lifecycle, dispatches the correct fetch shape, persists
// leads and companies with dedupe, and tracks progress and stop reason.
package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-engine/internal/extractor"
	"github.com/sells-group/leadgen-engine/internal/fetchengine"
	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/resilience"
	"github.com/sells-group/leadgen-engine/internal/store"
)

const defaultHost = "www.linkedin.com"
const defaultStoreWriteTimeout = 10 * time.Second

// Orchestrator drives one campaign at a time to a terminal state,
// composing the Fetch Engine and Field Extractor as injected capabilities.
// One-way dependencies only: neither C3 nor C4 ever calls back into this
// package.
type Orchestrator struct {
	store           store.Store
	engine          *fetchengine.Engine
	extractor       *extractor.Extractor
	defaultMaxPosts int

	storeWriteTimeout time.Duration
	storeRetry        resilience.RetryConfig

	now func() time.Time
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithStoreWriteTimeout bounds every individual store write (campaign
// status/progress, lead/company insert) at d, including its retries.
func WithStoreWriteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.storeWriteTimeout = d }
}

// WithStoreRetry overrides the retry policy applied to store writes.
// Defaults to resilience.DefaultRetryConfig with a store-specific logger.
func WithStoreRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.storeRetry = cfg }
}

// New constructs an Orchestrator. defaultMaxPosts is the cap applied when
// a campaign omits both maxItems and query.limit.
func New(st store.Store, engine *fetchengine.Engine, ext *extractor.Extractor, defaultMaxPosts int, opts ...Option) *Orchestrator {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("store", "write")

	o := &Orchestrator{
		store:             st,
		engine:            engine,
		extractor:         ext,
		defaultMaxPosts:   defaultMaxPosts,
		storeWriteTimeout: defaultStoreWriteTimeout,
		storeRetry:        retry,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// writeStore runs fn bounded by storeWriteTimeout, retrying transient
// failures per storeRetry. Store errors the caller must branch on (e.g.
// duplicate-key) must not be classified as transient by the configured
// ShouldRetry, or they propagate after storeRetry.MaxAttempts instead of
// on the first attempt.
func (o *Orchestrator) writeStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.storeWriteTimeout)
	defer cancel()
	return resilience.Do(ctx, o.storeRetry, fn)
}

// writeStoreVal is writeStore for store calls that also return a value.
func writeStoreVal[T any](ctx context.Context, o *Orchestrator, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.storeWriteTimeout)
	defer cancel()
	return resilience.DoVal(ctx, o.storeRetry, fn)
}

// Run drives one campaign to a terminal state. cookies are the session
// tokens injected into every browser context this run opens.
func (o *Orchestrator) Run(ctx context.Context, tenantID, campaignID string, cookies []fetchengine.SessionToken) error {
	campaign, err := o.store.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return eris.Wrap(err, "orchestrator: load campaign")
	}
	if campaign == nil {
		return eris.Errorf("orchestrator: campaign %s not found", campaignID)
	}

	if err := o.transitionToRunning(ctx, campaign); err != nil {
		return err
	}

	reason, runErr := o.dispatch(ctx, campaign, cookies)

	finalStatus := model.StatusCompleted
	switch reason {
	case model.StopReasonRateLimited, model.StopReasonUnauthenticated, model.StopReasonFatal:
		finalStatus = model.StatusFailed
	case model.StopReasonCancelled:
		finalStatus = model.StatusStopped
	case model.StopReasonLimitReached, model.StopReasonExhausted:
		finalStatus = model.StatusCompleted
	}

	if err := o.transitionToTerminal(ctx, campaign, finalStatus, reason); err != nil {
		return err
	}
	clearCheckpoint(ctx, o.store, campaign.ID)

	return runErr
}

func (o *Orchestrator) transitionToRunning(ctx context.Context, c *model.Campaign) error {
	started := o.now()
	c.Stats.StartedAt = &started
	if err := o.writeStore(ctx, func(ctx context.Context) error {
		return o.store.UpdateCampaignProgress(ctx, c.TenantID, c.ID, c.Stats, c.Progress)
	}); err != nil {
		return eris.Wrap(err, "orchestrator: stamp started_at")
	}
	if err := o.writeStore(ctx, func(ctx context.Context) error {
		return o.store.UpdateCampaignStatus(ctx, c.TenantID, c.ID, model.StatusRunning, model.StopReasonNone)
	}); err != nil {
		return eris.Wrap(err, "orchestrator: transition to running")
	}
	c.Status = model.StatusRunning
	return nil
}

func (o *Orchestrator) transitionToTerminal(ctx context.Context, c *model.Campaign, status model.CampaignStatus, reason model.StopReason) error {
	finished := o.now()
	c.Stats.StopReason = reason
	c.Stats.FinishedAt = &finished
	if err := o.writeStore(ctx, func(ctx context.Context) error {
		return o.store.UpdateCampaignProgress(ctx, c.TenantID, c.ID, c.Stats, c.Progress)
	}); err != nil {
		return eris.Wrap(err, "orchestrator: stamp finished_at")
	}
	err := o.writeStore(ctx, func(ctx context.Context) error {
		return o.store.UpdateCampaignStatus(ctx, c.TenantID, c.ID, status, reason)
	})
	return eris.Wrap(err, "orchestrator: transition to terminal")
}

// dispatch runs the mode-appropriate fetch shape and returns the stop
// reason to persist. A non-nil error is always accompanied by a non-empty
// stop reason.
func (o *Orchestrator) dispatch(ctx context.Context, c *model.Campaign, cookies []fetchengine.SessionToken) (model.StopReason, error) {
	switch c.Source {
	case model.SourceSearchPosts:
		return o.runSearchPosts(ctx, c, cookies)
	case model.SourceSeedURLs:
		return o.runSeedURLs(ctx, c, cookies)
	case model.SourceCompanyDirectory:
		return o.runCompanyDirectory(ctx, c, cookies)
	default:
		return model.StopReasonFatal, eris.Errorf("orchestrator: unknown campaign source %q", c.Source)
	}
}

func (o *Orchestrator) runSearchPosts(ctx context.Context, c *model.Campaign, cookies []fetchengine.SessionToken) (model.StopReason, error) {
	limit := c.EffectiveLimit(o.defaultMaxPosts)
	req := fetchengine.Request{
		Host:              defaultHost,
		URL:               buildSearchPostsURL(c.Query),
		Cookies:           cookies,
		Limit:             limit,
		HiringKeywordOnly: false,
	}
	return o.harvestAndPersist(ctx, c, req)
}

func (o *Orchestrator) runSeedURLs(ctx context.Context, c *model.Campaign, cookies []fetchengine.SessionToken) (model.StopReason, error) {
	limit := c.EffectiveLimit(o.defaultMaxPosts)
	perURL := perSeedCap(limit, len(c.SeedURLs))

	cp, err := loadOrInitCheckpoint(ctx, o.store, c.ID)
	if err != nil {
		return model.StopReasonFatal, err
	}

	for i := cp.LastSeedIndex; i < len(c.SeedURLs); i++ {
		seedURL := c.SeedURLs[i]
		switch classifySeedURL(seedURL) {
		case seedKindSinglePost:
			reason, err := o.harvestAndPersist(ctx, c, fetchengine.Request{
				Host: defaultHost, URL: seedURL, Cookies: cookies, Limit: 1,
			})
			if reason == model.StopReasonRateLimited || reason == model.StopReasonUnauthenticated {
				return reason, err
			}
		case seedKindProfileFeed:
			reason, err := o.harvestAndPersist(ctx, c, fetchengine.Request{
				Host: defaultHost, URL: rewriteProfileActivityURL(seedURL), Cookies: cookies,
				Limit: perURL, HiringKeywordOnly: true,
			})
			if reason == model.StopReasonRateLimited || reason == model.StopReasonUnauthenticated {
				return reason, err
			}
		case seedKindSearchContent:
			reason, err := o.harvestAndPersist(ctx, c, fetchengine.Request{
				Host: defaultHost, URL: seedURL, Cookies: cookies, Limit: perURL,
			})
			if reason == model.StopReasonRateLimited || reason == model.StopReasonUnauthenticated {
				return reason, err
			}
		case seedKindNotSupported:
			zap.L().Info("orchestrator: company seed url not supported in seed-urls mode", zap.String("url", seedURL))
		default:
			zap.L().Info("orchestrator: unrecognized seed url, skipping", zap.String("url", seedURL))
		}

		cp.LastSeedIndex = i + 1
		cp.TotalCollected = c.Stats.LeadsExtracted
		saveProgress(ctx, o.store, cp)

		if c.Stats.LeadsExtracted >= limit {
			return model.StopReasonLimitReached, nil
		}
	}

	if c.Stats.LeadsExtracted >= limit {
		return model.StopReasonLimitReached, nil
	}
	return model.StopReasonExhausted, nil
}

func (o *Orchestrator) runCompanyDirectory(ctx context.Context, c *model.Campaign, cookies []fetchengine.SessionToken) (model.StopReason, error) {
	limit := c.EffectiveLimit(o.defaultMaxPosts)
	req := fetchengine.CompanyDirectoryRequest{
		Host:      defaultHost,
		SearchURL: buildCompanyDirectoryURL(c.Query),
		Cookies:   cookies,
		Limit:     limit,
	}

	out, errc := o.engine.HarvestCompanyDirectory(ctx, req)
	for company := range out {
		company.TenantID = c.TenantID
		company.CampaignID = c.ID
		o.persistCompany(ctx, c, company)
	}

	if err := <-errc; err != nil {
		return classifyEngineError(err)
	}
	if c.Stats.LeadsExtracted >= limit {
		return model.StopReasonLimitReached, nil
	}
	return model.StopReasonExhausted, nil
}

// harvestAndPersist drives one Harvest call to completion, extracting and
// persisting each record, and returns the stop reason implied by how the
// harvest ended.
func (o *Orchestrator) harvestAndPersist(ctx context.Context, c *model.Campaign, req fetchengine.Request) (model.StopReason, error) {
	out, errc := o.engine.Harvest(ctx, req)

	limit := c.EffectiveLimit(o.defaultMaxPosts)
	for raw := range out {
		o.persistLead(ctx, c, raw)
		if c.Stats.LeadsExtracted >= limit {
			// Drain the channel so the producer goroutine can exit; its
			// error, if any, is irrelevant once the cap is already hit.
			for range out {
			}
			return model.StopReasonLimitReached, nil
		}
	}

	if err := <-errc; err != nil {
		return classifyEngineError(err)
	}
	return model.StopReasonExhausted, nil
}

func classifyEngineError(err error) (model.StopReason, error) {
	switch {
	case eris.Is(err, fetchengine.ErrRateLimited):
		return model.StopReasonRateLimited, err
	case eris.Is(err, fetchengine.ErrUnauthenticated):
		return model.StopReasonUnauthenticated, err
	case eris.Is(err, fetchengine.ErrExhausted):
		return model.StopReasonExhausted, nil
	default:
		return model.StopReasonFatal, err
	}
}

// persistLead extracts fields for raw and writes the Lead via the
// persistence protocol: duplicate-key is a silent skip, other store
// errors increment stats.errors, and every successful persist advances
// stats and progress.
func (o *Orchestrator) persistLead(ctx context.Context, c *model.Campaign, raw model.RawRecord) {
	lead := model.Lead{
		ID:               uuid.NewString(),
		TenantID:         c.TenantID,
		CampaignID:       c.ID,
		ProviderID:       raw.ProviderID,
		AuthorName:       raw.AuthorName,
		AuthorHeadline:   raw.AuthorHeadline,
		AuthorProfileURL: raw.AuthorProfileURL,
		PostURL:          raw.PostURL,
		PostTitle:        raw.PostTitle,
		PostText:         raw.PostText,
		PostedAt:         raw.PostedAt,
		RawMetadata: model.RawMetadata{
			ProviderID:     raw.ProviderID,
			AuthorName:     raw.AuthorName,
			AuthorHeadline: raw.AuthorHeadline,
			PostText:       raw.PostText,
			PostURL:        raw.PostURL,
		},
	}

	attempted := o.now()
	lead.LastEnrichmentAttempt = &attempted
	fields, status, err := o.extractor.Extract(ctx, raw)
	if status == model.EnrichmentEnriched {
		lead.Fields = fields
		lead.EnrichmentStatus = model.EnrichmentEnriched
		if fields.CompanyURL != "" {
			if industry, ierr := o.extractor.EnrichCompanyIndustry(ctx, engineDriver(o.engine), nil, fields.CompanyURL); ierr == nil {
				lead.Fields.CompanyIndustry = industry
			}
		}
	} else {
		lead.EnrichmentStatus = model.EnrichmentPending
		if err != nil {
			lead.EnrichmentError = err.Error()
		}
	}

	c.Stats.PostsProcessed++

	inserted, err := writeStoreVal(ctx, o, func(ctx context.Context) (bool, error) {
		return o.store.InsertLeadIfAbsent(ctx, lead)
	})
	if err != nil {
		c.Stats.Errors++
		zap.L().Warn("orchestrator: insert lead failed", zap.String("campaign_id", c.ID), zap.Error(err))
		o.flushProgress(ctx, c, c.EffectiveLimit(o.defaultMaxPosts))
		return
	}
	if !inserted {
		return // duplicate key: expected, not an error
	}

	c.Stats.LeadsExtracted++
	o.flushProgress(ctx, c, c.EffectiveLimit(o.defaultMaxPosts))
}

func (o *Orchestrator) persistCompany(ctx context.Context, c *model.Campaign, company model.Company) {
	c.Stats.PostsProcessed++
	inserted, err := writeStoreVal(ctx, o, func(ctx context.Context) (bool, error) {
		return o.store.InsertCompanyIfAbsent(ctx, company)
	})
	if err != nil {
		c.Stats.Errors++
		zap.L().Warn("orchestrator: insert company failed", zap.String("campaign_id", c.ID), zap.Error(err))
		o.flushProgress(ctx, c, c.EffectiveLimit(o.defaultMaxPosts))
		return
	}
	if !inserted {
		return
	}
	c.Stats.LeadsExtracted++ // companies count toward the same progress denominator
	o.flushProgress(ctx, c, c.EffectiveLimit(o.defaultMaxPosts))
}

func (o *Orchestrator) flushProgress(ctx context.Context, c *model.Campaign, maxItems int) {
	c.Progress = progressPercent(c.Stats.LeadsExtracted, maxItems)
	err := o.writeStore(ctx, func(ctx context.Context) error {
		return o.store.UpdateCampaignProgress(ctx, c.TenantID, c.ID, c.Stats, c.Progress)
	})
	if err != nil {
		zap.L().Warn("orchestrator: progress update failed", zap.String("campaign_id", c.ID), zap.Error(err))
	}
}

func progressPercent(leadsExtracted, maxItems int) int {
	if maxItems <= 0 {
		return 0
	}
	pct := int(math.Floor(100 * float64(leadsExtracted) / float64(maxItems)))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// engineDriver exposes the Engine's underlying BrowserDriver for the
// optional company-industry enrichment step, which needs its own browser
// context per the teacher's "premium lookups are non-fatal" posture.
func engineDriver(e *fetchengine.Engine) fetchengine.BrowserDriver {
	return e.Driver()
}
