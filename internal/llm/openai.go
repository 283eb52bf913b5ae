package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/formpilot/internal/fetcher"
	"github.com/sells-group/formpilot/internal/resilience"
)

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint
// through the fetch proxy. It requests a streamed reply; the proxy buffers
// and collapses the stream so both shapes decode the same way.
type OpenAICompleter struct {
	fetch     fetcher.Fetcher
	baseURL   string
	apiKey    string
	model     string
	maxTokens int64
}

// NewOpenAICompleter creates a completer. baseURL is the API root, e.g.
// https://api.openai.com/v1.
func NewOpenAICompleter(f fetcher.Fetcher, baseURL, apiKey, model string, maxTokens int64) *OpenAICompleter {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &OpenAICompleter{
		fetch:     f,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *OpenAICompleter) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := o.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: maxTokens,
		Stream:    true,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: encode chat request")
	}

	resp, err := o.fetch.Fetch(ctx, fetcher.Request{
		URL:    o.baseURL + "/chat/completions",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + o.apiKey,
		},
		Body: string(body),
	})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		err := eris.Errorf("llm: openai status %d", resp.Status)
		if resilience.IsTransientHTTPStatus(resp.Status) {
			return "", resilience.NewTransientError(err, resp.Status)
		}
		return "", err
	}

	content := gjson.Get(resp.Body, "choices.0.message.content").String()
	if content == "" {
		return "", eris.New("llm: empty response")
	}
	return content, nil
}
