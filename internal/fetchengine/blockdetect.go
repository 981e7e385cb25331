package fetchengine

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
)

var caseFold = cases.Fold()

// Verdict describes the outcome of inspecting a resolved URL and rendered
// page body.
type Verdict string

const (
	VerdictOK             Verdict = "ok"
	VerdictRateLimited    Verdict = "rate_limited"
	VerdictUnauthenticated Verdict = "unauthenticated"
)

// rateLimitURLMarkers are path substrings that by themselves indicate
// provider pushback — a checkpoint/authwall redirect, independent of
// whatever body text it happens to render.
var rateLimitURLMarkers = []string{
	"/checkpoint",
	"/authwall",
}

// unauthenticatedPrefixes are path prefixes that mean the session itself
// lost auth, as opposed to being rate-limited.
var unauthenticatedPrefixes = []string{
	"/login",
	"/uas/login",
}

// rateLimitBodyMarkers are case-insensitive substrings of rendered text
// that indicate provider pushback.
var rateLimitBodyMarkers = []string{
	"try again later",
	"unusual activity",
	"too many requests",
	"verify your identity",
	"security verification",
}

// DetectVerdict classifies a navigation result per the resolved URL and
// rendered body text. A checkpoint/authwall URL marker is declared
// rate_limited before the narrower login-path check runs, since a
// checkpoint redirect is provider pushback, not a lost session.
func DetectVerdict(resolvedURL, bodyText string) Verdict {
	if containsPathMarker(resolvedURL, rateLimitURLMarkers) {
		return VerdictRateLimited
	}
	if hasPathPrefix(resolvedURL, unauthenticatedPrefixes) {
		return VerdictUnauthenticated
	}

	lower := caseFold.String(bodyText)
	for _, marker := range rateLimitBodyMarkers {
		if strings.Contains(lower, marker) {
			return VerdictRateLimited
		}
	}

	return VerdictOK
}

func containsPathMarker(rawURL string, markers []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, marker := range markers {
		if strings.Contains(u.Path, marker) {
			return true
		}
	}
	return false
}

func hasPathPrefix(rawURL string, prefixes []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return false
}
