package store

import (
	"context"
	"time"

	"github.com/sells-group/leadgen-engine/internal/model"
)

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	TenantID string               `json:"tenant_id,omitempty"`
	Status   model.CampaignStatus `json:"status,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	TenantID         string                 `json:"tenant_id,omitempty"`
	CampaignID       string                 `json:"campaign_id,omitempty"`
	EnrichmentStatus model.EnrichmentStatus `json:"enrichment_status,omitempty"`
	Limit            int                    `json:"limit,omitempty"`
	Offset           int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the campaign pipeline. All
// three collections (Campaigns, Leads, Companies) are tenant-scoped; Leads
// and Companies additionally enforce a per-tenant uniqueness constraint so
// that repeated harvesting of the same provider record never duplicates it.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)
	UpdateCampaignProgress(ctx context.Context, tenantID, campaignID string, stats model.CampaignStats, progress int) error
	UpdateCampaignStatus(ctx context.Context, tenantID, campaignID string, status model.CampaignStatus, reason model.StopReason) error

	// Leads. InsertLeadIfAbsent reports inserted=false without error when the
	// (tenantID, providerID) pair already exists — the caller treats this as
	// a no-op, not a failure.
	InsertLeadIfAbsent(ctx context.Context, l model.Lead) (inserted bool, err error)
	UpdateLeadEnrichment(ctx context.Context, tenantID, leadID string, fields model.ExtractedFields, status model.EnrichmentStatus, enrichErr string) error
	GetLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	CountLeads(ctx context.Context, tenantID, campaignID string) (int, error)

	// Companies (directory mode). Same insertIfAbsent shape as Leads, keyed
	// on (tenantID, linkedInURL).
	InsertCompanyIfAbsent(ctx context.Context, c model.Company) (inserted bool, err error)
	ListCompanies(ctx context.Context, tenantID, campaignID string) ([]model.Company, error)

	// Checkpoint/resume, one row per campaign.
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	LoadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, campaignID string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// nowUTC is overridden in tests that need deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
