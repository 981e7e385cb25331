package extractor

import "fmt"

// extractorSystemPrompt is the shared system instruction for every call:
// emit strict JSON only, following the schema in the user message.
const extractorSystemPrompt = `You are an expert at reading LinkedIn hiring-related posts and extracting structured recruitment data.

Rules:
- Answer ONLY based on the post text and author information provided
- Return valid JSON for every response, matching the schema exactly
- Use an empty string or empty array when a field cannot be determined, never omit a field
- Do not invent companies, titles, or locations not implied by the text
- Be precise: this data drives outbound recruiting outreach`

// fieldSchema documents the JSON contract embedded in every user prompt.
const fieldSchema = `{
  "company": "string",
  "companyUrl": "string",
  "jobTitles": ["string"],
  "locations": ["string"],
  "seniority": "string",
  "skills": ["string"],
  "salaryRange": "string",
  "workMode": "string",
  "applicationLink": "string"
}`

// BuildUserPrompt embeds the raw capture and the schema contract in one
// user message, following the teacher's pattern of a shared system
// preamble plus a strict-JSON-response contract in the user turn.
func BuildUserPrompt(authorName, authorHeadline, postText, postURL string) string {
	return fmt.Sprintf(`Extract structured hiring data from this LinkedIn post.

Author: %s
Author headline: %s
Post URL: %s

Post text:
%s

Respond with ONLY a JSON object matching this schema, no other text:
%s`, authorName, authorHeadline, postURL, postText, fieldSchema)
}

// industrySelectors is the ranked list of selectors tried, in order, when
// reading a company's industry from its "about" page.
var industrySelectors = []string{
	"[data-test-id='about-us__industry'] dd",
	".org-page-details__definition-text",
	"[data-test-id='about-us__industry']",
}
