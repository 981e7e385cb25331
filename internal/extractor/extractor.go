// Package extractor implements the Field Extractor (C4): it turns a raw
// DOM capture into structured Lead fields by calling an LLM with a strict
// JSON-response contract, and optionally enriches a captured company URL
// with its industry via a second browser visit.
package extractor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-engine/internal/fetchengine"
	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/resilience"
)

const extractionTemperature = 0.2

// llmService names this package's one circuit-broken capability within the
// Extractor's ServiceBreakers registry. Keyed by name (rather than holding
// a single *CircuitBreaker field) so a future second LLM-backed capability
// (e.g. a distinct enrichment provider) gets its own independent breaker
// from the same registry instead of sharing trip state with this one.
const llmService = "extractor.llm"

// CompleteOptions parameterizes one LLM.Complete call.
type CompleteOptions struct {
	Temperature float64
	JSONMode    bool
	TimeoutMs   int
}

// LLM is the single capability this package depends on. JSON mode is a
// hint; callers still tolerate raw text containing an embedded JSON
// object.
type LLM interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, error)
}

// Extractor calls an LLM capability to enrich raw captures.
type Extractor struct {
	llm      LLM
	timeout  time.Duration
	breakers *resilience.ServiceBreakers
}

// Option configures optional Extractor behavior.
type Option func(*Extractor)

// WithCircuitBreakerConfig overrides the default breaker policy applied to
// every service the registry creates. OnStateChange is always set to log
// the transition regardless of what the caller supplies.
func WithCircuitBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(x *Extractor) {
		cfg.OnStateChange = logCircuitTransition
		x.breakers = resilience.NewServiceBreakers(cfg)
	}
}

func logCircuitTransition(from, to resilience.CircuitState) {
	zap.L().Warn("extractor: llm circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
}

// NewExtractor constructs an Extractor bound to llm, bounding every call
// at timeout. A circuit breaker (held in a per-service registry, keyed by
// llmService) trips after repeated LLM failures so a struggling provider
// stops being hammered mid-campaign; callers see resilience.ErrCircuitOpen
// and persist the Lead as pending, same as any other Complete failure.
func NewExtractor(llm LLM, timeout time.Duration, opts ...Option) *Extractor {
	x := &Extractor{
		llm:     llm,
		timeout: timeout,
		breakers: resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    logCircuitTransition,
		}),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// extractedPayload mirrors fieldSchema's JSON shape for unmarshaling.
type extractedPayload struct {
	Company         string   `json:"company"`
	CompanyURL      string   `json:"companyUrl"`
	JobTitles       []string `json:"jobTitles"`
	Locations       []string `json:"locations"`
	Seniority       string   `json:"seniority"`
	Skills          []string `json:"skills"`
	SalaryRange     string   `json:"salaryRange"`
	WorkMode        string   `json:"workMode"`
	ApplicationLink string   `json:"applicationLink"`
}

// Extract turns raw into structured fields. On failure it returns a
// zero-value ExtractedFields, EnrichmentFailed, and the error — the caller
// persists the Lead anyway with enrichmentStatus=pending so it stays
// observable and re-extractable.
func (x *Extractor) Extract(ctx context.Context, raw model.RawRecord) (model.ExtractedFields, model.EnrichmentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	userPrompt := BuildUserPrompt(raw.AuthorName, raw.AuthorHeadline, raw.PostText, raw.PostURL)

	text, err := resilience.ExecuteVal(ctx, x.breakers.Get(llmService), func(ctx context.Context) (string, error) {
		return x.llm.Complete(ctx, extractorSystemPrompt, userPrompt, CompleteOptions{
			Temperature: extractionTemperature,
			JSONMode:    true,
			TimeoutMs:   int(x.timeout / time.Millisecond),
		})
	})
	if err != nil {
		zap.L().Warn("extractor: llm call failed", zap.String("provider_id", raw.ProviderID), zap.Error(err))
		return model.ExtractedFields{}, model.EnrichmentFailed, eris.Wrap(err, "extractor: complete")
	}

	obj, ok := FirstBalancedJSONObject(text)
	if !ok {
		return model.ExtractedFields{}, model.EnrichmentFailed, eris.New("extractor: no balanced JSON object in response")
	}

	var payload extractedPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return model.ExtractedFields{}, model.EnrichmentFailed, eris.Wrap(err, "extractor: unmarshal response")
	}

	fields := model.ExtractedFields{
		Company:         payload.Company,
		CompanyURL:      payload.CompanyURL,
		JobTitles:       payload.JobTitles,
		Locations:       payload.Locations,
		Seniority:       payload.Seniority,
		Skills:          payload.Skills,
		SalaryRange:     payload.SalaryRange,
		WorkMode:        model.WorkMode(payload.WorkMode),
		ApplicationLink: payload.ApplicationLink,
	}

	if raw.CompanyURLHint != "" && fields.CompanyURL == "" {
		fields.CompanyURL = raw.CompanyURLHint
	}

	return fields, model.EnrichmentEnriched, nil
}

// EnrichCompanyIndustry opens companyURL's "about" page in a fresh browser
// context and reads the first matching industry element, per the ranked
// selector list. Failure is always non-fatal to the caller: the Lead is
// still considered enriched even if this step fails.
func (x *Extractor) EnrichCompanyIndustry(ctx context.Context, driver fetchengine.BrowserDriver, cookies []fetchengine.SessionToken, companyURL string) (string, error) {
	browserCtx, err := driver.LaunchContext(ctx, fetchengine.LaunchOptions{Cookies: cookies})
	if err != nil {
		return "", eris.Wrap(err, "extractor: launch browser context")
	}
	defer browserCtx.Close(ctx)

	page, err := browserCtx.NewPage(ctx)
	if err != nil {
		return "", eris.Wrap(err, "extractor: open page")
	}

	aboutURL := companyURL
	if aboutURL != "" && aboutURL[len(aboutURL)-1] != '/' {
		aboutURL += "/"
	}
	aboutURL += "about/"

	if err := page.Goto(ctx, aboutURL, fetchengine.GotoOptions{WaitFor: "domcontentloaded", TimeoutMs: 60000}); err != nil {
		return "", eris.Wrap(err, "extractor: navigate to about page")
	}

	for _, selector := range industrySelectors {
		elements, err := page.QuerySelectorAll(ctx, selector)
		if err != nil || len(elements) == 0 {
			continue
		}
		text, err := elements[0].InnerText(ctx)
		if err != nil || text == "" {
			continue
		}
		return text, nil
	}

	return "", eris.New("extractor: no industry element matched")
}
