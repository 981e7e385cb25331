package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-engine/internal/fetchengine"
	"github.com/sells-group/leadgen-engine/internal/model"
	"github.com/sells-group/leadgen-engine/internal/resilience"
)

type fakeLLM struct {
	response string
	err      error
	lastOpts CompleteOptions
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, error) {
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestExtractor_Extract_ParsesWellFormedJSON(t *testing.T) {
	llm := &fakeLLM{response: `{"company":"Acme","companyUrl":"https://linkedin.com/company/acme","jobTitles":["Backend Engineer"],"locations":["Remote"],"seniority":"Senior","skills":["Go"],"salaryRange":"","workMode":"remote","applicationLink":""}`}
	x := NewExtractor(llm, 30*time.Second)

	fields, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "1", PostText: "we are hiring"})
	require.NoError(t, err)
	require.Equal(t, model.EnrichmentEnriched, status)
	require.Equal(t, "Acme", fields.Company)
	require.Equal(t, []string{"Backend Engineer"}, fields.JobTitles)
	require.Equal(t, model.WorkMode("remote"), fields.WorkMode)
	require.Equal(t, extractionTemperature, llm.lastOpts.Temperature)
}

func TestExtractor_Extract_ParsesJSONWithSurroundingProse(t *testing.T) {
	llm := &fakeLLM{response: "Here is the extraction:\n```json\n{\"company\":\"Acme\",\"jobTitles\":[]}\n```\nLet me know if you need anything else."}
	x := NewExtractor(llm, 30*time.Second)

	fields, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "2"})
	require.NoError(t, err)
	require.Equal(t, model.EnrichmentEnriched, status)
	require.Equal(t, "Acme", fields.Company)
}

func TestExtractor_Extract_UsesCompanyURLHintWhenLLMOmitsIt(t *testing.T) {
	llm := &fakeLLM{response: `{"company":"Acme"}`}
	x := NewExtractor(llm, 30*time.Second)

	fields, _, err := x.Extract(context.Background(), model.RawRecord{
		ProviderID:     "3",
		CompanyURLHint: "https://www.linkedin.com/company/acme",
	})
	require.NoError(t, err)
	require.Equal(t, "https://www.linkedin.com/company/acme", fields.CompanyURL)
}

func TestExtractor_Extract_FailedOnUnparseableResponse(t *testing.T) {
	llm := &fakeLLM{response: "not json at all"}
	x := NewExtractor(llm, 30*time.Second)

	fields, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "4"})
	require.Error(t, err)
	require.Equal(t, model.EnrichmentFailed, status)
	require.Equal(t, model.ExtractedFields{}, fields)
}

func TestExtractor_Extract_FailedOnLLMError(t *testing.T) {
	llm := &fakeLLM{err: eris.New("timeout")}
	x := NewExtractor(llm, 30*time.Second)

	_, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "5"})
	require.Error(t, err)
	require.Equal(t, model.EnrichmentFailed, status)
}

func TestExtractor_Extract_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	llm := &fakeLLM{err: eris.New("boom")}
	x := NewExtractor(llm, 30*time.Second, WithCircuitBreakerConfig(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	}))

	for i := 0; i < 2; i++ {
		_, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "open"})
		require.Error(t, err)
		require.Equal(t, model.EnrichmentFailed, status)
	}

	_, state := x.breakers.Get(llmService).Counters()
	require.Equal(t, resilience.CircuitOpen, state)
	require.Equal(t, resilience.CircuitOpen, x.breakers.States()[llmService])

	_, status, err := x.Extract(context.Background(), model.RawRecord{ProviderID: "open"})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	require.Equal(t, model.EnrichmentFailed, status)
}

func TestFirstBalancedJSONObject_IgnoresBracesInStrings(t *testing.T) {
	text := `prefix {"a": "value with { brace", "b": 2} suffix`
	obj, ok := FirstBalancedJSONObject(text)
	require.True(t, ok)
	require.Equal(t, `{"a": "value with { brace", "b": 2}`, obj)
}

func TestFirstBalancedJSONObject_NoObjectReturnsFalse(t *testing.T) {
	_, ok := FirstBalancedJSONObject("no braces here")
	require.False(t, ok)
}

// fake browser capability for EnrichCompanyIndustry, grounded on the same
// pattern as fetchengine's own fake driver.
type fakeEnrichDriver struct {
	industryText string
}

func (d *fakeEnrichDriver) LaunchContext(ctx context.Context, opts fetchengine.LaunchOptions) (fetchengine.BrowserContext, error) {
	return &fakeEnrichContext{industryText: d.industryText}, nil
}

type fakeEnrichContext struct{ industryText string }

func (c *fakeEnrichContext) NewPage(ctx context.Context) (fetchengine.Page, error) {
	return &fakeEnrichPage{industryText: c.industryText}, nil
}
func (c *fakeEnrichContext) Close(ctx context.Context) error { return nil }

type fakeEnrichPage struct{ industryText string }

func (p *fakeEnrichPage) Goto(ctx context.Context, url string, opts fetchengine.GotoOptions) error {
	return nil
}
func (p *fakeEnrichPage) URL() string                  { return "" }
func (p *fakeEnrichPage) Content() (string, error)     { return "", nil }
func (p *fakeEnrichPage) Title() (string, error)       { return "", nil }
func (p *fakeEnrichPage) Evaluate(ctx context.Context, script string) (any, error) {
	return nil, nil
}
func (p *fakeEnrichPage) QuerySelectorAll(ctx context.Context, selector string) ([]fetchengine.Element, error) {
	if p.industryText == "" {
		return nil, nil
	}
	return []fetchengine.Element{&fakeEnrichElement{text: p.industryText}}, nil
}
func (p *fakeEnrichPage) WheelDown(ctx context.Context, dx, dy int) error { return nil }
func (p *fakeEnrichPage) WaitForTimeout(ctx context.Context, d time.Duration) error {
	return nil
}

type fakeEnrichElement struct{ text string }

func (e *fakeEnrichElement) InnerText(ctx context.Context) (string, error) { return e.text, nil }
func (e *fakeEnrichElement) GetAttribute(ctx context.Context, name string) (string, error) {
	return "", nil
}
func (e *fakeEnrichElement) ScrollIntoViewIfNeeded(ctx context.Context) error { return nil }

func TestExtractor_EnrichCompanyIndustry_ReturnsFirstMatch(t *testing.T) {
	x := NewExtractor(&fakeLLM{}, time.Second)
	driver := &fakeEnrichDriver{industryText: "Software Development"}

	industry, err := x.EnrichCompanyIndustry(context.Background(), driver, nil, "https://www.linkedin.com/company/acme")
	require.NoError(t, err)
	require.Equal(t, "Software Development", industry)
}

func TestExtractor_EnrichCompanyIndustry_ErrorsWhenNoSelectorMatches(t *testing.T) {
	x := NewExtractor(&fakeLLM{}, time.Second)
	driver := &fakeEnrichDriver{}

	_, err := x.EnrichCompanyIndustry(context.Background(), driver, nil, "https://www.linkedin.com/company/acme")
	require.Error(t, err)
}
