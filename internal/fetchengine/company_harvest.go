package fetchengine

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-engine/internal/model"
)

const companyCardSelector = ".org-people-profile-card, [data-test-id='company-card']"

// CompanyDirectoryRequest parameterizes one HarvestCompanyDirectory call.
type CompanyDirectoryRequest struct {
	Host       string
	SearchURL  string // the directory search URL, without a page parameter
	Cookies    []SessionToken
	ProfileDir string
	Limit      int // max companies to yield across all pages; 0 means no cap
}

// HarvestCompanyDirectory paginates a company-directory search URL by
// appending/updating a page=<n> query parameter, harvesting company cards
// per page and visiting each company's "about" page for detailed fields.
// Pagination stops at the first empty page or when Limit is reached.
func (e *Engine) HarvestCompanyDirectory(ctx context.Context, req CompanyDirectoryRequest) (<-chan model.Company, <-chan error) {
	out := make(chan model.Company)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		if err := e.runCompanyDirectory(ctx, req, out); err != nil {
			errc <- err
		}
	}()

	return out, errc
}

func (e *Engine) runCompanyDirectory(ctx context.Context, req CompanyDirectoryRequest, out chan<- model.Company) error {
	proxyURL, err := e.proxies.Next(ctx)
	if err != nil {
		return eris.Wrap(err, "fetchengine: select proxy")
	}

	browserCtx, err := e.driver.LaunchContext(ctx, LaunchOptions{
		ProfileDir: req.ProfileDir,
		Cookies:    req.Cookies,
		ProxyURL:   proxyURLString(proxyURL),
	})
	if err != nil {
		return eris.Wrap(err, "fetchengine: launch browser context")
	}
	defer browserCtx.Close(ctx)

	page, err := browserCtx.NewPage(ctx)
	if err != nil {
		return eris.Wrap(err, "fetchengine: open page")
	}

	yielded := 0
	pageNum := 1
	for {
		if req.Limit > 0 && yielded >= req.Limit {
			return nil
		}

		pageURL, err := withPageParam(req.SearchURL, pageNum)
		if err != nil {
			return eris.Wrapf(err, "fetchengine: build page %d url", pageNum)
		}

		if _, err := e.governor.Await(ctx, req.Host); err != nil {
			return eris.Wrap(err, "fetchengine: await pacing permission")
		}
		if err := page.Goto(ctx, pageURL, GotoOptions{WaitFor: "domcontentloaded", TimeoutMs: 60000}); err != nil {
			e.governor.RecordError(req.Host)
			e.recordProxyFailure(proxyURL)
			return eris.Wrap(err, "fetchengine: navigate listing page")
		}

		body, err := page.Content()
		if err != nil {
			e.governor.RecordError(req.Host)
			return eris.Wrap(err, "fetchengine: read listing content")
		}
		if verdict := DetectVerdict(page.URL(), body); verdict != VerdictOK {
			return e.verdictErr(req.Host, verdict)
		}
		e.governor.RecordSuccess(req.Host)
		e.recordProxySuccess(proxyURL)

		elements, err := page.QuerySelectorAll(ctx, companyCardSelector)
		if err != nil {
			e.governor.RecordError(req.Host)
			return eris.Wrap(err, "fetchengine: query company cards")
		}
		if len(elements) == 0 {
			return nil // empty page: pagination done
		}

		for i := range elements {
			raw, err := page.Evaluate(ctx, fmt.Sprintf("__harvestCompanyCard(%d)", i))
			if err != nil {
				e.governor.RecordError(req.Host)
				continue
			}
			cc := decodeCompanyCardPayload(raw)
			if cc.linkedInURL == "" {
				continue
			}

			company := model.Company{
				LinkedInURL: cc.linkedInURL,
				Name:        cc.name,
			}

			if err := e.sleepFunc(ctx, e.randFunc(cardDelayMin, cardDelayMax)); err != nil {
				return err
			}

			if detail, err := e.visitCompanyAboutPage(ctx, page, req.Host, cc.linkedInURL); err == nil {
				company = mergeCompanyDetail(company, detail)
			}

			select {
			case out <- company:
			case <-ctx.Done():
				return ctx.Err()
			}

			yielded++
			if req.Limit > 0 && yielded >= req.Limit {
				return nil
			}
		}

		pageNum++
	}
}

// visitCompanyAboutPage navigates to a company's about page and extracts
// its detail fields via the same Page.Evaluate contract as card
// extraction.
func (e *Engine) visitCompanyAboutPage(ctx context.Context, page Page, host, companyURL string) (companyCard, error) {
	aboutURL := strings.TrimSuffix(companyURL, "/") + "/about/"
	if err := page.Goto(ctx, aboutURL, GotoOptions{WaitFor: "domcontentloaded", TimeoutMs: 60000}); err != nil {
		e.governor.RecordError(host)
		return companyCard{}, eris.Wrap(err, "fetchengine: navigate about page")
	}
	raw, err := page.Evaluate(ctx, "__harvestCompanyAbout()")
	if err != nil {
		return companyCard{}, eris.Wrap(err, "fetchengine: evaluate about page")
	}
	return decodeCompanyCardPayload(raw), nil
}

func mergeCompanyDetail(company model.Company, detail companyCard) model.Company {
	if detail.name != "" {
		company.Name = detail.name
	}
	company.Tagline = detail.tagline
	company.Industry = detail.industry
	company.CompanySize = detail.companySize
	company.Headquarters = detail.headquarters
	company.Founded = detail.founded
	company.Website = detail.website
	company.Specialties = detail.specialties
	company.FollowerCount = detail.followerCount
	company.Logo = detail.logo
	return company
}

// companyCard mirrors the JSON payload Page.Evaluate returns for a company
// card or about page.
type companyCard struct {
	linkedInURL   string
	name          string
	tagline       string
	industry      string
	companySize   string
	headquarters  string
	founded       string
	website       string
	specialties   []string
	followerCount int
	logo          string
}

func decodeCompanyCardPayload(raw any) companyCard {
	m, _ := raw.(map[string]any)
	return companyCard{
		linkedInURL:   str(m["linkedinUrl"]),
		name:          str(m["name"]),
		tagline:       str(m["tagline"]),
		industry:      str(m["industry"]),
		companySize:   str(m["companySize"]),
		headquarters:  str(m["headquarters"]),
		founded:       str(m["founded"]),
		website:       str(m["website"]),
		specialties:   strSlice(m["specialties"]),
		followerCount: intVal(m["followerCount"]),
		logo:          str(m["logo"]),
	}
}

func intVal(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// withPageParam sets (or replaces) the page query parameter on rawURL.
func withPageParam(rawURL string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
