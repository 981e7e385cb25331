// Package model holds the entities persisted by the campaign pipeline:
// Campaign, Lead, and Company (directory mode), plus the in-process pacing
// and proxy state each of them feeds back into.
package model

import "time"

// CampaignSource selects which fetch shape an Orchestrator dispatches for a
// campaign.
type CampaignSource string

const (
	SourceSearchPosts      CampaignSource = "search-posts"
	SourceSeedURLs         CampaignSource = "seed-urls"
	SourceCompanyDirectory CampaignSource = "company-directory"
)

// CampaignStatus is the campaign lifecycle state. See the state machine in
// Orchestrator.
type CampaignStatus string

const (
	StatusQueued    CampaignStatus = "queued"
	StatusRunning   CampaignStatus = "running"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
	StatusStopped   CampaignStatus = "stopped"

	// statusLegacyDone is an alias a few hand-authored fixtures still use
	// for StatusCompleted. NormalizeStatus folds it on read.
	statusLegacyDone CampaignStatus = "done"
)

// NormalizeStatus folds the legacy "done" status onto "completed" so callers
// never have to special-case it.
func NormalizeStatus(s CampaignStatus) CampaignStatus {
	if s == statusLegacyDone {
		return StatusCompleted
	}
	return s
}

// StopReason is the machine-readable reason a campaign reached a terminal
// state.
type StopReason string

const (
	StopReasonNone             StopReason = ""
	StopReasonLimitReached     StopReason = "limit_reached"
	StopReasonExhausted        StopReason = "exhausted"
	StopReasonRateLimited      StopReason = "rate_limit_detected"
	StopReasonUnauthenticated StopReason = "unauthenticated"
	StopReasonFatal            StopReason = "fatal"
	StopReasonCancelled        StopReason = "cancelled"
)

// ContentType filters the kind of post a search-posts campaign targets.
type ContentType string

// ConnectionDegree filters by network distance from the authenticated user.
type ConnectionDegree string

// CampaignQuery parameterizes a search-posts (or content-filtered
// seed-urls/company-directory) campaign.
type CampaignQuery struct {
	Mode             string           `json:"mode,omitempty"`
	Roles            string           `json:"roles,omitempty"`
	Period           string           `json:"period,omitempty"`
	Location         string           `json:"location,omitempty"`
	ContentType      ContentType      `json:"content_type,omitempty"`
	SortOrder        string           `json:"sort_order,omitempty"`
	Language         string           `json:"language,omitempty"`
	ConnectionDegree ConnectionDegree `json:"connection_degree,omitempty"`
	Industries       []string         `json:"industries,omitempty"`
	CompanySizes     []string         `json:"company_sizes,omitempty"`
	KeywordScope     string           `json:"keyword_scope,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Limit            int              `json:"limit,omitempty"`
}

// CampaignStats tracks progress and outcome counters for a campaign run.
type CampaignStats struct {
	PostsProcessed int        `json:"posts_processed"`
	LeadsExtracted int        `json:"leads_extracted"`
	Errors         int        `json:"errors"`
	StopReason     StopReason `json:"stop_reason,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Campaign is a tenant-scoped unit of lead-generation work.
type Campaign struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Source      CampaignSource `json:"source"`
	SeedURLs    []string       `json:"seed_urls,omitempty"`
	Query       CampaignQuery  `json:"query"`
	Status      CampaignStatus `json:"status"`
	Progress    int            `json:"progress"`
	Stats       CampaignStats  `json:"stats"`
	MaxItems    int            `json:"max_items"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EffectiveLimit returns the campaign's item cap, falling back to the
// process-wide default when the campaign omits one.
func (c Campaign) EffectiveLimit(defaultMax int) int {
	if c.MaxItems > 0 {
		return c.MaxItems
	}
	if c.Query.Limit > 0 {
		return c.Query.Limit
	}
	return defaultMax
}

// Checkpoint records enough state for a multi-URL or multi-page campaign to
// resume after a crash without re-harvesting earlier seeds/pages.
type Checkpoint struct {
	CampaignID     string    `json:"campaign_id"`
	LastSeedIndex  int       `json:"last_seed_index"`
	LastPage       int       `json:"last_page"`
	TotalCollected int       `json:"total_collected"`
	UpdatedAt      time.Time `json:"updated_at"`
}
