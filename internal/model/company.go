package model

import "time"

// Company is a directory-mode record, unique per tenant by LinkedInURL.
type Company struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	CampaignID     string    `json:"campaign_id"`
	LinkedInURL    string    `json:"linkedin_url"`
	Name           string    `json:"name"`
	Tagline        string    `json:"tagline,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	CompanySize    string    `json:"company_size,omitempty"`
	Headquarters   string    `json:"headquarters,omitempty"`
	Founded        string    `json:"founded,omitempty"`
	Website        string    `json:"website,omitempty"`
	Specialties    []string  `json:"specialties,omitempty"`
	FollowerCount  int       `json:"follower_count,omitempty"`
	Logo           string    `json:"logo,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
