package fetchengine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/leadgen-engine/internal/model"
)

// card bundles the raw DOM access needed to extract one record, decoupled
// from the live Element/Page types so the extraction pipeline stays pure
// and independently testable.
type card struct {
	dataURN           string   // the card's own data-urn attribute
	descendantURNs    []string // data-urn of descendants
	timestampHrefs    []string // hrefs of timestamp-style links
	viewPostHrefs     []string // hrefs of "view post" links
	anchorHrefs       []string // every other descendant anchor href
	authorName        string
	authorHeadline    string
	authorProfileURL  string
	postText          string
	postTitle         string
	companyHref       string
	timestampAttr     string // datetime attribute, if present
	timestampText     string // innertext of a time-like element
}

var (
	urnPattern      = regexp.MustCompile(`urn:li:activity:(\d+)`)
	postsPathPattern = regexp.MustCompile(`posts/(\d+)`)
	feedUpdatePattern = regexp.MustCompile(`feed/update/urn:li:activity:(\d+)`)
	activityDashPattern = regexp.MustCompile(`activity[:-](\d+)`)
)

// resolveProviderID applies the five-strategy fallback chain from the
// per-card extraction contract, in priority order.
func resolveProviderID(c card) string {
	if id := matchURN(c.dataURN); id != "" {
		return id
	}
	for _, urn := range c.descendantURNs {
		if id := matchURN(urn); id != "" {
			return id
		}
	}
	for _, href := range c.timestampHrefs {
		if id := matchHrefPatterns(href); id != "" {
			return id
		}
	}
	for _, href := range c.viewPostHrefs {
		if id := matchHrefPatterns(href); id != "" {
			return id
		}
	}
	for _, href := range c.anchorHrefs {
		if m := activityDashPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

func matchURN(s string) string {
	if m := urnPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// matchHrefPatterns tries, in order, feed/update/urn:li:activity:<n>,
// urn:li:activity:<n>, then posts/<n> — the three href shapes the spec names for timestamp and
// "view post" links.
func matchHrefPatterns(href string) string {
	if m := feedUpdatePattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := urnPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := postsPathPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// canonicalPostURL never uses the author profile URL, per the spec — it is
// always deterministically reconstructed from the providerID.
func canonicalPostURL(providerID string) string {
	return "https://www.linkedin.com/feed/update/urn:li:activity:" + providerID + "/"
}

func companyURLFromHref(href string) string {
	if !strings.Contains(href, "/company/") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return "https://www.linkedin.com" + href
}

// extractRawRecord turns a card into a RawRecord, or reports ok=false when
// the record lacks a providerID and is therefore disqualified.
func extractRawRecord(c card) (model.RawRecord, bool) {
	providerID := resolveProviderID(c)
	if providerID == "" {
		return model.RawRecord{}, false
	}

	rec := model.RawRecord{
		ProviderID:       providerID,
		AuthorName:       c.authorName,
		AuthorHeadline:   c.authorHeadline,
		AuthorProfileURL: c.authorProfileURL,
		PostURL:          canonicalPostURL(providerID),
		PostTitle:        c.postTitle,
		PostText:         c.postText,
		CompanyURLHint:   companyURLFromHref(c.companyHref),
	}
	if t, ok := parseTimestamp(c.timestampAttr, c.timestampText); ok {
		rec.PostedAt = &t
	}
	return rec, true
}

// parseTimestamp tries the datetime attribute first, then falls back to
// the innertext of a time-like element. Per spec, an unparseable timestamp
// is emitted as null rather than an error.
func parseTimestamp(attr, text string) (time.Time, bool) {
	for _, candidate := range []string{attr, text} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// containsHiringKeyword reports whether text mentions hiring intent,
// case-insensitively, for the hiring-keyword filter applied on noisy feed
// pages.
func containsHiringKeyword(text string) bool {
	lower := caseFold.String(text)
	for _, kw := range hiringKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var hiringKeywords = []string{
	"hiring", "recruiting", "join", "looking for", "opportunity", "position", "role", "opening",
}

// cardExtractionScript is the snippet passed to Page.Evaluate for the card
// at the given index within the ranked selector list of the page's card
// selector. The real browser driver runs this in page context; it returns
// a JSON-serializable object whose shape matches decodeCardPayload's
// expectations. Opaque to this package beyond that contract.
func cardExtractionScript(cardIndex int) string {
	return fmt.Sprintf("__harvestCard(%d)", cardIndex)
}

// decodeCardPayload turns the map Page.Evaluate hands back into a card,
// tolerating absent keys (multi-strategy fallbacks treat a missing field
// as an empty string, not an error).
func decodeCardPayload(raw any) card {
	m, _ := raw.(map[string]any)
	return card{
		dataURN:          str(m["dataUrn"]),
		descendantURNs:   strSlice(m["descendantUrns"]),
		timestampHrefs:   strSlice(m["timestampHrefs"]),
		viewPostHrefs:    strSlice(m["viewPostHrefs"]),
		anchorHrefs:      strSlice(m["anchorHrefs"]),
		authorName:       str(m["authorName"]),
		authorHeadline:   str(m["authorHeadline"]),
		authorProfileURL: str(m["authorProfileUrl"]),
		postText:         str(m["postText"]),
		postTitle:        str(m["postTitle"]),
		companyHref:      str(m["companyHref"]),
		timestampAttr:    str(m["timestampAttr"]),
		timestampText:    str(m["timestampText"]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
