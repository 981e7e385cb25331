package orchestrator

import (
	"net/url"
	"strings"

	"github.com/sells-group/leadgen-engine/internal/model"
)

// seedKind classifies a seed URL per the mode-dispatch contract.
type seedKind string

const (
	seedKindSinglePost     seedKind = "single_post"
	seedKindProfileFeed    seedKind = "profile_feed"
	seedKindSearchContent  seedKind = "search_content"
	seedKindNotSupported   seedKind = "not_supported"
	seedKindUnrecognized   seedKind = "unrecognized"
)

// classifySeedURL applies the seed-urls path-classification rules, in
// priority order.
func classifySeedURL(rawURL string) seedKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return seedKindUnrecognized
	}
	path := u.Path

	switch {
	case strings.Contains(path, "/feed/update/"), strings.Contains(path, "/posts/"), strings.Contains(path, "/activity/"):
		return seedKindSinglePost
	case strings.Contains(path, "/in/"):
		return seedKindProfileFeed
	case strings.Contains(path, "/search/results/content/"):
		return seedKindSearchContent
	case strings.Contains(path, "/company/"):
		return seedKindNotSupported
	default:
		return seedKindUnrecognized
	}
}

// rewriteProfileActivityURL rewrites a /in/<handle> profile URL to its
// recent-activity feed, unless it already points there.
func rewriteProfileActivityURL(rawURL string) string {
	if strings.Contains(rawURL, "/recent-activity/") {
		return rawURL
	}
	trimmed := strings.TrimRight(rawURL, "/")
	return trimmed + "/recent-activity/all/"
}

// perSeedCap computes ceil(limit / count(seedUrls)), the per-URL cap for
// seed-urls campaigns.
func perSeedCap(limit, seedCount int) int {
	if seedCount <= 0 {
		return limit
	}
	return (limit + seedCount - 1) / seedCount
}

// buildSearchPostsURL constructs a LinkedIn content-search URL from a
// campaign's query parameters.
func buildSearchPostsURL(q model.CampaignQuery) string {
	params := url.Values{}
	if q.Roles != "" {
		params.Set("keywords", q.Roles)
	}
	if q.Period != "" {
		params.Set("datePosted", q.Period)
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.ContentType != "" {
		params.Set("contentType", string(q.ContentType))
	}
	if q.SortOrder != "" {
		params.Set("sortBy", q.SortOrder)
	}
	if q.ConnectionDegree != "" {
		params.Set("network", string(q.ConnectionDegree))
	}
	if len(q.Industries) > 0 {
		params.Set("industry", strings.Join(q.Industries, ","))
	}
	if len(q.CompanySizes) > 0 {
		params.Set("companySize", strings.Join(q.CompanySizes, ","))
	}
	if q.KeywordScope != "" {
		params.Set("keywordScope", q.KeywordScope)
	}

	return "https://www.linkedin.com/search/results/content/?" + params.Encode()
}

// buildCompanyDirectoryURL constructs a LinkedIn company-search URL from a
// campaign's query parameters, without a page parameter (pagination is
// applied by the Fetch Engine).
func buildCompanyDirectoryURL(q model.CampaignQuery) string {
	params := url.Values{}
	if q.Roles != "" {
		params.Set("keywords", q.Roles)
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if len(q.Industries) > 0 {
		params.Set("industry", strings.Join(q.Industries, ","))
	}
	if len(q.CompanySizes) > 0 {
		params.Set("companySize", strings.Join(q.CompanySizes, ","))
	}

	return "https://www.linkedin.com/search/results/companies/?" + params.Encode()
}
