package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/pkg/anthropic"
)

// AnthropicCompleter sends prompts through the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a completer for model.
func NewAnthropicCompleter(client anthropic.Client, model string, maxTokens int64) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicCompleter{client: client, model: model, maxTokens: maxTokens}
}

func (a *AnthropicCompleter) Name() string { return "anthropic" }

func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temp := 0.0
	msg := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
	if req.System != "" {
		msg.System = anthropic.BuildCachedSystemBlocks(req.System)
	}

	resp, err := a.client.CreateMessage(ctx, msg)
	if err != nil {
		return "", err
	}
	resp.Usage.LogUsage(a.model, "complete")

	text := resp.Text()
	if text == "" {
		return "", eris.New("llm: empty response")
	}
	return text, nil
}
