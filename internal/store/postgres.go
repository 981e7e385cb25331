package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-engine/internal/model"
)

// PostgresStore implements Store using pgxpool. Production deployments run
// this; SQLiteStore is its dev/single-node counterpart.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	source      TEXT NOT NULL,
	seed_urls   JSONB NOT NULL DEFAULT '[]',
	query       JSONB NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	stats       JSONB NOT NULL DEFAULT '{}',
	max_items   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);

CREATE TABLE IF NOT EXISTS leads (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id               TEXT NOT NULL,
	campaign_id             TEXT NOT NULL,
	provider_id             TEXT NOT NULL,
	author_name             TEXT,
	author_headline         TEXT,
	author_profile_url      TEXT,
	post_url                TEXT NOT NULL,
	post_title              TEXT,
	post_text               TEXT,
	posted_at               TIMESTAMPTZ,
	fields                  JSONB NOT NULL DEFAULT '{}',
	raw_metadata            JSONB NOT NULL DEFAULT '{}',
	enrichment_status       TEXT NOT NULL DEFAULT 'pending',
	enrichment_error        TEXT,
	last_enrichment_attempt TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, provider_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_enrichment_status ON leads(enrichment_status);

CREATE TABLE IF NOT EXISTS companies (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id      TEXT NOT NULL,
	campaign_id    TEXT NOT NULL,
	linkedin_url   TEXT NOT NULL,
	name           TEXT NOT NULL,
	tagline        TEXT,
	industry       TEXT,
	company_size   TEXT,
	headquarters   TEXT,
	founded        TEXT,
	website        TEXT,
	specialties    JSONB NOT NULL DEFAULT '[]',
	follower_count INTEGER NOT NULL DEFAULT 0,
	logo           TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, linkedin_url)
);

CREATE INDEX IF NOT EXISTS idx_companies_campaign ON companies(campaign_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	campaign_id     TEXT PRIMARY KEY,
	last_seed_index INTEGER NOT NULL DEFAULT 0,
	last_page       INTEGER NOT NULL DEFAULT 0,
	total_collected INTEGER NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = model.StatusQueued
	}

	seedURLsJSON, err := json.Marshal(c.SeedURLs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal seed urls")
	}
	queryJSON, err := json.Marshal(c.Query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal query")
	}
	statsJSON, err := json.Marshal(c.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.TenantID, c.Name, c.Description, string(c.Source), seedURLsJSON, queryJSON,
		string(c.Status), c.Progress, statsJSON, c.MaxItems, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}
	return &c, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	var c model.Campaign
	var seedURLsJSON, queryJSON, statsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at
		 FROM campaigns WHERE tenant_id = $1 AND id = $2`,
		tenantID, campaignID,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Source, &seedURLsJSON, &queryJSON,
		&c.Status, &c.Progress, &statsJSON, &c.MaxItems, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.Errorf("postgres: campaign %s not found", campaignID)
		}
		return nil, eris.Wrapf(err, "postgres: get campaign %s", campaignID)
	}
	if err := json.Unmarshal(seedURLsJSON, &c.SeedURLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal seed urls")
	}
	if err := json.Unmarshal(queryJSON, &c.Query); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal query")
	}
	if err := json.Unmarshal(statsJSON, &c.Stats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal stats")
	}
	c.Status = model.NormalizeStatus(c.Status)
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at
	          FROM campaigns WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		var seedURLsJSON, queryJSON, statsJSON []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Source, &seedURLsJSON, &queryJSON,
			&c.Status, &c.Progress, &statsJSON, &c.MaxItems, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		if err := json.Unmarshal(seedURLsJSON, &c.SeedURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal seed urls")
		}
		if err := json.Unmarshal(queryJSON, &c.Query); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal query")
		}
		if err := json.Unmarshal(statsJSON, &c.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
		c.Status = model.NormalizeStatus(c.Status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpdateCampaignProgress(ctx context.Context, tenantID, campaignID string, stats model.CampaignStats, progress int) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET stats = $1, progress = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
		statsJSON, progress, nowUTC(), tenantID, campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign progress %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: campaign %s not found", campaignID)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, tenantID, campaignID string, status model.CampaignStatus, reason model.StopReason) error {
	var statsRaw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT stats FROM campaigns WHERE tenant_id = $1 AND id = $2`, tenantID, campaignID,
	).Scan(&statsRaw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return eris.Errorf("postgres: campaign %s not found", campaignID)
		}
		return eris.Wrap(err, "postgres: read campaign stats")
	}
	var stats model.CampaignStats
	if err := json.Unmarshal(statsRaw, &stats); err != nil {
		return eris.Wrap(err, "postgres: unmarshal campaign stats")
	}
	stats.StopReason = reason
	if status == model.StatusCompleted || status == model.StatusFailed || status == model.StatusStopped {
		now := nowUTC()
		stats.FinishedAt = &now
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, stats = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
		string(status), statsJSON, nowUTC(), tenantID, campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: campaign %s not found", campaignID)
	}
	return nil
}

func (s *PostgresStore) InsertLeadIfAbsent(ctx context.Context, l model.Lead) (bool, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := nowUTC()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.EnrichmentStatus == "" {
		l.EnrichmentStatus = model.EnrichmentPending
	}

	fieldsJSON, err := json.Marshal(l.Fields)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal fields")
	}
	rawJSON, err := json.Marshal(l.RawMetadata)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal raw metadata")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads
		 (id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
		  post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
		  enrichment_error, last_enrichment_attempt, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (tenant_id, provider_id) DO NOTHING`,
		l.ID, l.TenantID, l.CampaignID, l.ProviderID, l.AuthorName, l.AuthorHeadline, l.AuthorProfileURL,
		l.PostURL, l.PostTitle, l.PostText, l.PostedAt, fieldsJSON, rawJSON,
		string(l.EnrichmentStatus), l.EnrichmentError, l.LastEnrichmentAttempt, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert lead %s", l.ProviderID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateLeadEnrichment(ctx context.Context, tenantID, leadID string, fields model.ExtractedFields, status model.EnrichmentStatus, enrichErr string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET fields = $1, enrichment_status = $2, enrichment_error = $3, last_enrichment_attempt = $4, updated_at = $5
		 WHERE tenant_id = $6 AND id = $7`,
		fieldsJSON, string(status), enrichErr, nowUTC(), nowUTC(), tenantID, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead enrichment %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: lead %s not found", leadID)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error) {
	var l model.Lead
	var fieldsJSON, rawJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
		        post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
		        enrichment_error, last_enrichment_attempt, created_at, updated_at
		 FROM leads WHERE tenant_id = $1 AND id = $2`,
		tenantID, leadID,
	).Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.ProviderID, &l.AuthorName, &l.AuthorHeadline,
		&l.AuthorProfileURL, &l.PostURL, &l.PostTitle, &l.PostText, &l.PostedAt, &fieldsJSON, &rawJSON,
		&l.EnrichmentStatus, &l.EnrichmentError, &l.LastEnrichmentAttempt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, eris.Errorf("postgres: lead %s not found", leadID)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	if err := json.Unmarshal(fieldsJSON, &l.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	if err := json.Unmarshal(rawJSON, &l.RawMetadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw metadata")
	}
	return &l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
	                 post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
	                 enrichment_error, last_enrichment_attempt, created_at, updated_at
	          FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.EnrichmentStatus != "" {
		query += fmt.Sprintf(` AND enrichment_status = $%d`, argIdx)
		args = append(args, string(filter.EnrichmentStatus))
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		var l model.Lead
		var fieldsJSON, rawJSON []byte
		if err := rows.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.ProviderID, &l.AuthorName, &l.AuthorHeadline,
			&l.AuthorProfileURL, &l.PostURL, &l.PostTitle, &l.PostText, &l.PostedAt, &fieldsJSON, &rawJSON,
			&l.EnrichmentStatus, &l.EnrichmentError, &l.LastEnrichmentAttempt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if err := json.Unmarshal(fieldsJSON, &l.Fields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fields")
		}
		if err := json.Unmarshal(rawJSON, &l.RawMetadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw metadata")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) CountLeads(ctx context.Context, tenantID, campaignID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE tenant_id = $1 AND campaign_id = $2`, tenantID, campaignID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) InsertCompanyIfAbsent(ctx context.Context, c model.Company) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now

	specialtiesJSON, err := json.Marshal(c.Specialties)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal specialties")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO companies
		 (id, tenant_id, campaign_id, linkedin_url, name, tagline, industry, company_size,
		  headquarters, founded, website, specialties, follower_count, logo, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (tenant_id, linkedin_url) DO NOTHING`,
		c.ID, c.TenantID, c.CampaignID, c.LinkedInURL, c.Name, c.Tagline, c.Industry, c.CompanySize,
		c.Headquarters, c.Founded, c.Website, specialtiesJSON, c.FollowerCount, c.Logo, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert company %s", c.LinkedInURL)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, tenantID, campaignID string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, campaign_id, linkedin_url, name, tagline, industry, company_size,
		        headquarters, founded, website, specialties, follower_count, logo, created_at, updated_at
		 FROM companies WHERE tenant_id = $1 AND campaign_id = $2 ORDER BY created_at ASC`,
		tenantID, campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var specialtiesJSON []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.CampaignID, &c.LinkedInURL, &c.Name, &c.Tagline, &c.Industry,
			&c.CompanySize, &c.Headquarters, &c.Founded, &c.Website, &specialtiesJSON, &c.FollowerCount,
			&c.Logo, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		if err := json.Unmarshal(specialtiesJSON, &c.Specialties); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal specialties")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	cp.UpdatedAt = nowUTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (campaign_id, last_seed_index, last_page, total_collected, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (campaign_id) DO UPDATE SET
		   last_seed_index = excluded.last_seed_index,
		   last_page = excluded.last_page,
		   total_collected = excluded.total_collected,
		   updated_at = excluded.updated_at`,
		cp.CampaignID, cp.LastSeedIndex, cp.LastPage, cp.TotalCollected, cp.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save checkpoint")
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.pool.QueryRow(ctx,
		`SELECT campaign_id, last_seed_index, last_page, total_collected, updated_at FROM checkpoints WHERE campaign_id = $1`,
		campaignID,
	).Scan(&cp.CampaignID, &cp.LastSeedIndex, &cp.LastPage, &cp.TotalCollected, &cp.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: load checkpoint")
	}
	return &cp, nil
}

func (s *PostgresStore) DeleteCheckpoint(ctx context.Context, campaignID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE campaign_id = $1`, campaignID)
	return eris.Wrap(err, "postgres: delete checkpoint")
}
