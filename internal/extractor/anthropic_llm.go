package extractor

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-engine/pkg/anthropic"
)

// AnthropicLLM adapts pkg/anthropic.Client to the LLM capability this
// package depends on, reusing its MessageRequest/MessageResponse shape and
// temperature convention.
type AnthropicLLM struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
}

// Complete implements LLM.
func (a *AnthropicLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompleteOptions) (string, error) {
	temp := opts.Temperature
	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "extractor: anthropic create message")
	}

	resp.Usage.LogCost(a.Model, "field_extraction")

	var text string
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
