package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/config"
	"github.com/sells-group/formpilot/internal/fetcher"
	"github.com/sells-group/formpilot/internal/store"
	"github.com/sells-group/formpilot/pkg/anthropic"
)

// Settings is the user's provider configuration. It is persisted only in
// the encrypted llmConfig document.
type Settings struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Redacted returns a copy safe to display.
func (s Settings) Redacted() Settings {
	if len(s.APIKey) > 8 {
		s.APIKey = s.APIKey[:4] + "…" + s.APIKey[len(s.APIKey)-4:]
	} else if s.APIKey != "" {
		s.APIKey = "…"
	}
	return s
}

// DocumentStore reads and writes (possibly sealed) documents.
type DocumentStore interface {
	GetJSON(ctx context.Context, name string, out any) (bool, error)
	PutJSON(ctx context.Context, name string, in any) error
}

// LoadSettings reads the llmConfig document. found is false when unset.
func LoadSettings(ctx context.Context, docs DocumentStore) (Settings, bool, error) {
	var s Settings
	found, err := docs.GetJSON(ctx, store.DocLLMConfig, &s)
	if err != nil {
		return Settings{}, false, eris.Wrap(err, "llm: load settings")
	}
	return s, found, nil
}

// SaveSettings writes the llmConfig document.
func SaveSettings(ctx context.Context, docs DocumentStore, s Settings) error {
	if s.APIKey == "" {
		return eris.New("llm: api key is required")
	}
	switch s.Provider {
	case "anthropic", "openai":
	default:
		return eris.Errorf("llm: unsupported provider %q", s.Provider)
	}
	return eris.Wrap(docs.PutJSON(ctx, store.DocLLMConfig, s), "llm: save settings")
}

// New builds a guarded completer from the stored settings and config.
// Returns ErrDisabled when no API key is configured.
func New(cfg config.LLMConfig, s Settings, f fetcher.Fetcher, timeout time.Duration) (*Guarded, error) {
	if s.APIKey == "" {
		return nil, ErrDisabled
	}
	provider := s.Provider
	if provider == "" {
		provider = cfg.Provider
	}
	model := s.Model
	if model == "" {
		model = cfg.Model
	}

	var inner Completer
	switch provider {
	case "anthropic":
		inner = NewAnthropicCompleter(anthropic.NewClient(s.APIKey, s.BaseURL), model, cfg.MaxTokens)
	case "openai":
		if f == nil {
			return nil, eris.New("llm: openai provider needs a fetcher")
		}
		base := s.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		inner = NewOpenAICompleter(f, base, s.APIKey, model, cfg.MaxTokens)
	default:
		return nil, eris.Errorf("llm: unsupported provider %q", provider)
	}

	return NewGuarded(inner, GuardOptions{
		RatePerSec:       cfg.RatePerSec,
		Burst:            cfg.Burst,
		Timeout:          timeout,
		BreakerFailures:  cfg.BreakerFailures,
		BreakerResetSecs: cfg.BreakerResetSecs,
	}), nil
}
