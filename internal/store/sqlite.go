package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // Register the pure-Go SQLite driver.

	"github.com/sells-group/leadgen-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend for local development and single-node deployments; PostgresStore
// is the production equivalent.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// Embed pragmas in DSN so every pooled connection gets them.
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite tolerates only one writer; keep the pool small so writers queue
	// instead of colliding on SQLITE_BUSY.
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT,
	source      TEXT NOT NULL,
	seed_urls   TEXT,
	query       TEXT NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	stats       TEXT NOT NULL DEFAULT '{}',
	max_items   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);

CREATE TABLE IF NOT EXISTS leads (
	id                       TEXT PRIMARY KEY,
	tenant_id                TEXT NOT NULL,
	campaign_id              TEXT NOT NULL,
	provider_id              TEXT NOT NULL,
	author_name              TEXT,
	author_headline          TEXT,
	author_profile_url       TEXT,
	post_url                 TEXT NOT NULL,
	post_title               TEXT,
	post_text                TEXT,
	posted_at                DATETIME,
	fields                   TEXT NOT NULL DEFAULT '{}',
	raw_metadata             TEXT NOT NULL DEFAULT '{}',
	enrichment_status        TEXT NOT NULL DEFAULT 'pending',
	enrichment_error         TEXT,
	last_enrichment_attempt  DATETIME,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_tenant_provider ON leads(tenant_id, provider_id);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_enrichment_status ON leads(enrichment_status);

CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	campaign_id     TEXT NOT NULL,
	linkedin_url    TEXT NOT NULL,
	name            TEXT NOT NULL,
	tagline         TEXT,
	industry        TEXT,
	company_size    TEXT,
	headquarters    TEXT,
	founded         TEXT,
	website         TEXT,
	specialties     TEXT,
	follower_count  INTEGER NOT NULL DEFAULT 0,
	logo            TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_tenant_url ON companies(tenant_id, linkedin_url);
CREATE INDEX IF NOT EXISTS idx_companies_campaign ON companies(campaign_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	campaign_id      TEXT PRIMARY KEY,
	last_seed_index  INTEGER NOT NULL DEFAULT 0,
	last_page        INTEGER NOT NULL DEFAULT 0,
	total_collected  INTEGER NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCampaign implements Store.
func (s *SQLiteStore) CreateCampaign(ctx context.Context, c model.Campaign) (*model.Campaign, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal seed urls")
	}
	queryJSON, err := json.Marshal(c.Query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal query")
	}
	statsJSON, err := json.Marshal(c.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Description, string(c.Source), string(seedURLsJSON), string(queryJSON),
		string(c.Status), c.Progress, string(statsJSON), c.MaxItems, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert campaign")
	}
	return &c, nil
}

// GetCampaign implements Store.
func (s *SQLiteStore) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at
		 FROM campaigns WHERE tenant_id = ? AND id = ?`,
		tenantID, campaignID,
	)
	return scanCampaign(row)
}

// ListCampaigns implements Store.
func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT id, tenant_id, name, description, source, seed_urls, query, status, progress, stats, max_items, created_at, updated_at
	          FROM campaigns WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaignFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

// UpdateCampaignProgress implements Store.
func (s *SQLiteStore) UpdateCampaignProgress(ctx context.Context, tenantID, campaignID string, stats model.CampaignStats, progress int) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET stats = ?, progress = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(statsJSON), progress, nowUTC(), tenantID, campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign progress %s", campaignID)
	}
	return checkRowsAffected(res, "campaign", campaignID)
}

// UpdateCampaignStatus implements Store.
func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, tenantID, campaignID string, status model.CampaignStatus, reason model.StopReason) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT stats FROM campaigns WHERE tenant_id = ? AND id = ?`, tenantID, campaignID,
	)
	var statsRaw string
	if err := row.Scan(&statsRaw); err != nil {
		if err == sql.ErrNoRows {
			return eris.Errorf("sqlite: campaign %s not found", campaignID)
		}
		return eris.Wrap(err, "sqlite: read campaign stats")
	}
	var stats model.CampaignStats
	if err := json.Unmarshal([]byte(statsRaw), &stats); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal campaign stats")
	}
	stats.StopReason = reason
	if status == model.StatusCompleted || status == model.StatusFailed || status == model.StatusStopped {
		now := nowUTC()
		stats.FinishedAt = &now
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, stats = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		string(status), string(statsJSON), nowUTC(), tenantID, campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", campaignID)
	}
	return checkRowsAffected(res, "campaign", campaignID)
}

// InsertLeadIfAbsent implements Store.
func (s *SQLiteStore) InsertLeadIfAbsent(ctx context.Context, l model.Lead) (bool, error) {
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
		return false, eris.Wrap(err, "sqlite: marshal fields")
	}
	rawJSON, err := json.Marshal(l.RawMetadata)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal raw metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leads
		 (id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
		  post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
		  enrichment_error, last_enrichment_attempt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TenantID, l.CampaignID, l.ProviderID, l.AuthorName, l.AuthorHeadline, l.AuthorProfileURL,
		l.PostURL, l.PostTitle, l.PostText, l.PostedAt, string(fieldsJSON), string(rawJSON),
		string(l.EnrichmentStatus), l.EnrichmentError, l.LastEnrichmentAttempt, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert lead %s", l.ProviderID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

// UpdateLeadEnrichment implements Store.
func (s *SQLiteStore) UpdateLeadEnrichment(ctx context.Context, tenantID, leadID string, fields model.ExtractedFields, status model.EnrichmentStatus, enrichErr string) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET fields = ?, enrichment_status = ?, enrichment_error = ?, last_enrichment_attempt = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		string(fieldsJSON), string(status), enrichErr, nowUTC(), nowUTC(), tenantID, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead enrichment %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// GetLead implements Store.
func (s *SQLiteStore) GetLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
		        post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
		        enrichment_error, last_enrichment_attempt, created_at, updated_at
		 FROM leads WHERE tenant_id = ? AND id = ?`,
		tenantID, leadID,
	)
	return scanLead(row)
}

// ListLeads implements Store.
func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, tenant_id, campaign_id, provider_id, author_name, author_headline, author_profile_url,
	                 post_url, post_title, post_text, posted_at, fields, raw_metadata, enrichment_status,
	                 enrichment_error, last_enrichment_attempt, created_at, updated_at
	          FROM leads WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.EnrichmentStatus != "" {
		query += ` AND enrichment_status = ?`
		args = append(args, string(filter.EnrichmentStatus))
	}
	query += ` ORDER BY created_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Lead
	for rows.Next() {
		l, err := scanLeadFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

// CountLeads implements Store.
func (s *SQLiteStore) CountLeads(ctx context.Context, tenantID, campaignID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE tenant_id = ? AND campaign_id = ?`, tenantID, campaignID,
	)
	var n int
	err := row.Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

// InsertCompanyIfAbsent implements Store.
func (s *SQLiteStore) InsertCompanyIfAbsent(ctx context.Context, c model.Company) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := nowUTC()
	c.CreatedAt, c.UpdatedAt = now, now

	specialtiesJSON, err := json.Marshal(c.Specialties)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal specialties")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO companies
		 (id, tenant_id, campaign_id, linkedin_url, name, tagline, industry, company_size,
		  headquarters, founded, website, specialties, follower_count, logo, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.CampaignID, c.LinkedInURL, c.Name, c.Tagline, c.Industry, c.CompanySize,
		c.Headquarters, c.Founded, c.Website, string(specialtiesJSON), c.FollowerCount, c.Logo, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert company %s", c.LinkedInURL)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

// ListCompanies implements Store.
func (s *SQLiteStore) ListCompanies(ctx context.Context, tenantID, campaignID string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, campaign_id, linkedin_url, name, tagline, industry, company_size,
		        headquarters, founded, website, specialties, follower_count, logo, created_at, updated_at
		 FROM companies WHERE tenant_id = ? AND campaign_id = ? ORDER BY created_at ASC`,
		tenantID, campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		var c model.Company
		var specialtiesJSON string
		err := rows.Scan(&c.ID, &c.TenantID, &c.CampaignID, &c.LinkedInURL, &c.Name, &c.Tagline, &c.Industry,
			&c.CompanySize, &c.Headquarters, &c.Founded, &c.Website, &specialtiesJSON, &c.FollowerCount,
			&c.Logo, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		if err := json.Unmarshal([]byte(specialtiesJSON), &c.Specialties); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal specialties")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// SaveCheckpoint implements Store.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	cp.UpdatedAt = nowUTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (campaign_id, last_seed_index, last_page, total_collected, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(campaign_id) DO UPDATE SET
		   last_seed_index = excluded.last_seed_index,
		   last_page = excluded.last_page,
		   total_collected = excluded.total_collected,
		   updated_at = excluded.updated_at`,
		cp.CampaignID, cp.LastSeedIndex, cp.LastPage, cp.TotalCollected, cp.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save checkpoint")
}

// LoadCheckpoint implements Store.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT campaign_id, last_seed_index, last_page, total_collected, updated_at FROM checkpoints WHERE campaign_id = ?`,
		campaignID,
	)
	var cp model.Checkpoint
	err := row.Scan(&cp.CampaignID, &cp.LastSeedIndex, &cp.LastPage, &cp.TotalCollected, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load checkpoint")
	}
	return &cp, nil
}

// DeleteCheckpoint implements Store.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE campaign_id = ?`, campaignID)
	return eris.Wrap(err, "sqlite: delete checkpoint")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var seedURLsJSON, queryJSON, statsJSON string
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Source, &seedURLsJSON, &queryJSON,
		&c.Status, &c.Progress, &statsJSON, &c.MaxItems, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("sqlite: campaign not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan campaign")
	}
	if err := json.Unmarshal([]byte(seedURLsJSON), &c.SeedURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal seed urls")
	}
	if err := json.Unmarshal([]byte(queryJSON), &c.Query); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal query")
	}
	if err := json.Unmarshal([]byte(statsJSON), &c.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	c.Status = model.NormalizeStatus(c.Status)
	return &c, nil
}

func scanCampaignFromRows(rows *sql.Rows) (*model.Campaign, error) {
	return scanCampaign(rows)
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var fieldsJSON, rawJSON string
	err := row.Scan(&l.ID, &l.TenantID, &l.CampaignID, &l.ProviderID, &l.AuthorName, &l.AuthorHeadline,
		&l.AuthorProfileURL, &l.PostURL, &l.PostTitle, &l.PostText, &l.PostedAt, &fieldsJSON, &rawJSON,
		&l.EnrichmentStatus, &l.EnrichmentError, &l.LastEnrichmentAttempt, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("sqlite: lead not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &l.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if err := json.Unmarshal([]byte(rawJSON), &l.RawMetadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw metadata")
	}
	return &l, nil
}

func scanLeadFromRows(rows *sql.Rows) (*model.Lead, error) {
	return scanLead(rows)
}
