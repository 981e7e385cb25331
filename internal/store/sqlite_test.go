package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-engine/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGetCampaign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.Campaign{
		TenantID: "tenant-1",
		Name:     "AI engineers hiring",
		Source:   model.SourceSearchPosts,
		Query:    model.CampaignQuery{Roles: "AI engineer", Limit: 50},
		MaxItems: 50,
	}
	created, err := s.CreateCampaign(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, model.StatusQueued, created.Status)

	got, err := s.GetCampaign(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	require.Equal(t, "AI engineers hiring", got.Name)
	require.Equal(t, "AI engineer", got.Query.Roles)
}

func TestSQLiteStore_GetCampaign_NormalizesLegacyStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.Campaign{TenantID: "t1", Name: "legacy", Source: model.SourceSeedURLs}
	created, err := s.CreateCampaign(ctx, c)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE campaigns SET status = 'done' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	got, err := s.GetCampaign(ctx, "t1", created.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
}

func TestSQLiteStore_ListCampaigns_FiltersByTenantAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCampaign(ctx, model.Campaign{TenantID: "t1", Name: "a", Source: model.SourceSeedURLs})
	require.NoError(t, err)
	_, err = s.CreateCampaign(ctx, model.Campaign{TenantID: "t2", Name: "b", Source: model.SourceSeedURLs})
	require.NoError(t, err)

	list, err := s.ListCampaigns(ctx, CampaignFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].Name)
}

func TestSQLiteStore_UpdateCampaignStatus_SetsFinishedAtAndReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateCampaign(ctx, model.Campaign{TenantID: "t1", Name: "a", Source: model.SourceSeedURLs})
	require.NoError(t, err)

	require.NoError(t, s.UpdateCampaignStatus(ctx, "t1", created.ID, model.StatusCompleted, model.StopReasonLimitReached))

	got, err := s.GetCampaign(ctx, "t1", created.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, model.StopReasonLimitReached, got.Stats.StopReason)
	require.NotNil(t, got.Stats.FinishedAt)
}

func TestSQLiteStore_InsertLeadIfAbsent_DedupesByTenantAndProviderID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lead := model.Lead{
		TenantID:   "t1",
		CampaignID: "c1",
		ProviderID: "2001",
		PostURL:    "https://www.linkedin.com/feed/update/urn:li:activity:2001/",
	}

	inserted, err := s.InsertLeadIfAbsent(ctx, lead)
	require.NoError(t, err)
	require.True(t, inserted)

	lead.ID = "" // simulate a fresh harvest of the same providerId
	inserted, err = s.InsertLeadIfAbsent(ctx, lead)
	require.NoError(t, err)
	require.False(t, inserted)

	n, err := s.CountLeads(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSQLiteStore_InsertLeadIfAbsent_SameProviderIDDifferentTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lead1 := model.Lead{TenantID: "t1", CampaignID: "c1", ProviderID: "2001", PostURL: "https://x/1"}
	lead2 := model.Lead{TenantID: "t2", CampaignID: "c1", ProviderID: "2001", PostURL: "https://x/1"}

	ok1, err := s.InsertLeadIfAbsent(ctx, lead1)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := s.InsertLeadIfAbsent(ctx, lead2)
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestSQLiteStore_UpdateLeadEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lead := model.Lead{TenantID: "t1", CampaignID: "c1", ProviderID: "7777", PostURL: "https://x/7777", PostText: "hiring senior engineer"}
	_, err := s.InsertLeadIfAbsent(ctx, lead)
	require.NoError(t, err)

	list, err := s.ListLeads(ctx, LeadFilter{TenantID: "t1", CampaignID: "c1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, model.EnrichmentPending, list[0].EnrichmentStatus)

	err = s.UpdateLeadEnrichment(ctx, "t1", list[0].ID, model.ExtractedFields{Company: "Acme"}, model.EnrichmentEnriched, "")
	require.NoError(t, err)

	got, err := s.GetLead(ctx, "t1", list[0].ID)
	require.NoError(t, err)
	require.Equal(t, model.EnrichmentEnriched, got.EnrichmentStatus)
	require.Equal(t, "Acme", got.Fields.Company)
}

func TestSQLiteStore_InsertCompanyIfAbsent_DedupesByTenantAndURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.Company{TenantID: "t1", CampaignID: "c1", LinkedInURL: "https://www.linkedin.com/company/acme", Name: "Acme"}
	inserted, err := s.InsertCompanyIfAbsent(ctx, c)
	require.NoError(t, err)
	require.True(t, inserted)

	c.ID = ""
	inserted, err = s.InsertCompanyIfAbsent(ctx, c)
	require.NoError(t, err)
	require.False(t, inserted)

	list, err := s.ListCompanies(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSQLiteStore_CheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := model.Checkpoint{CampaignID: "c1", LastSeedIndex: 2, LastPage: 0, TotalCollected: 17}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	got, err := s.LoadCheckpoint(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, got.LastSeedIndex)
	require.Equal(t, 17, got.TotalCollected)

	// Overwrite on conflict.
	cp.LastSeedIndex = 3
	require.NoError(t, s.SaveCheckpoint(ctx, cp))
	got, err = s.LoadCheckpoint(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 3, got.LastSeedIndex)

	require.NoError(t, s.DeleteCheckpoint(ctx, "c1"))
	got, err = s.LoadCheckpoint(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteStore_LoadCheckpoint_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.LoadCheckpoint(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteStore_UpdateCampaignStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateCampaignStatus(context.Background(), "t1", "missing", model.StatusFailed, model.StopReasonFatal)
	require.Error(t, err)
}

func TestSQLiteStore_PingAndMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_UpdateCampaignProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateCampaign(ctx, model.Campaign{TenantID: "t1", Name: "a", Source: model.SourceSeedURLs, MaxItems: 10})
	require.NoError(t, err)

	stats := model.CampaignStats{PostsProcessed: 4, LeadsExtracted: 2}
	require.NoError(t, s.UpdateCampaignProgress(ctx, "t1", created.ID, stats, 20))

	got, err := s.GetCampaign(ctx, "t1", created.ID)
	require.NoError(t, err)
	require.Equal(t, 20, got.Progress)
	require.Equal(t, 2, got.Stats.LeadsExtracted)
}

func TestSQLiteStore_ListLeads_FiltersByEnrichmentStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, pid := range []string{"1", "2", "3"} {
		_, err := s.InsertLeadIfAbsent(ctx, model.Lead{TenantID: "t1", CampaignID: "c1", ProviderID: pid, PostURL: "https://x/" + pid})
		require.NoError(t, err)
	}
	list, err := s.ListLeads(ctx, LeadFilter{TenantID: "t1", CampaignID: "c1"})
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.NoError(t, s.UpdateLeadEnrichment(ctx, "t1", list[0].ID, model.ExtractedFields{}, model.EnrichmentFailed, "timeout"))

	failed, err := s.ListLeads(ctx, LeadFilter{TenantID: "t1", EnrichmentStatus: model.EnrichmentFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "timeout", failed[0].EnrichmentError)
}

func TestMain_NowUTCOverride(t *testing.T) {
	orig := nowUTC
	t.Cleanup(func() { nowUTC = orig })
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowUTC = func() time.Time { return fixed }

	s := newTestStore(t)
	created, err := s.CreateCampaign(context.Background(), model.Campaign{TenantID: "t1", Name: "a", Source: model.SourceSeedURLs})
	require.NoError(t, err)
	require.Equal(t, fixed, created.CreatedAt)
}
