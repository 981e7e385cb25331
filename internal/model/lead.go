package model

import "time"

// EnrichmentStatus tracks how far a Lead's LLM-backed field extraction got.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentEnriched EnrichmentStatus = "enriched"
	EnrichmentFailed   EnrichmentStatus = "failed"
	EnrichmentSkipped  EnrichmentStatus = "skipped"
)

// WorkMode is the employment arrangement extracted from a post, when stated.
type WorkMode string

// RawMetadata is the untransformed capture kept alongside a Lead so it can
// be re-submitted to the extractor later without re-harvesting the page.
type RawMetadata struct {
	ProviderID     string `json:"provider_id"`
	AuthorName     string `json:"author_name,omitempty"`
	AuthorHeadline string `json:"author_headline,omitempty"`
	PostText       string `json:"post_text,omitempty"`
	PostURL        string `json:"post_url"`
	CapturedAt     string `json:"captured_at,omitempty"`
}

// ExtractedFields are the structured fields the Field Extractor (C4)
// produces from a RawMetadata capture. Zero values are used when extraction
// failed or a field was simply absent from the source text.
type ExtractedFields struct {
	Company          string   `json:"company,omitempty"`
	CompanyURL       string   `json:"company_url,omitempty"`
	CompanyIndustry  string   `json:"company_industry,omitempty"`
	JobTitles        []string `json:"job_titles,omitempty"`
	Locations        []string `json:"locations,omitempty"`
	Seniority        string   `json:"seniority,omitempty"`
	Skills           []string `json:"skills,omitempty"`
	SalaryRange      string   `json:"salary_range,omitempty"`
	WorkMode         WorkMode `json:"work_mode,omitempty"`
	ApplicationLink  string   `json:"application_link,omitempty"`
}

// Lead is a single extracted hiring-related record, unique per tenant by
// ProviderID. Re-extraction only ever updates the enrichment fields; the
// identity and raw capture fields are immutable once observed.
type Lead struct {
	ID                    string           `json:"id"`
	TenantID              string           `json:"tenant_id"`
	CampaignID            string           `json:"campaign_id"`
	ProviderID            string           `json:"provider_id"`
	AuthorName            string           `json:"author_name,omitempty"`
	AuthorHeadline        string           `json:"author_headline,omitempty"`
	AuthorProfileURL      string           `json:"author_profile_url,omitempty"`
	PostURL               string           `json:"post_url"`
	PostTitle             string           `json:"post_title,omitempty"`
	PostText              string           `json:"post_text,omitempty"`
	PostedAt              *time.Time       `json:"posted_at,omitempty"`
	Fields                ExtractedFields  `json:"fields"`
	RawMetadata           RawMetadata      `json:"raw_metadata"`
	EnrichmentStatus      EnrichmentStatus `json:"enrichment_status"`
	EnrichmentError       string           `json:"enrichment_error,omitempty"`
	LastEnrichmentAttempt *time.Time       `json:"last_enrichment_attempt,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// RawRecord is what the Fetch Engine (C3) yields per harvested card, before
// the Field Extractor (C4) has run. It carries only what the DOM can give
// us directly.
type RawRecord struct {
	ProviderID       string
	AuthorName       string
	AuthorHeadline   string
	AuthorProfileURL string
	PostURL          string
	PostTitle        string
	PostText         string
	PostedAt         *time.Time
	CompanyURLHint   string // first /company/ href seen on the card, if any
}
