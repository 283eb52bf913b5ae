package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Fill     FillConfig     `yaml:"fill" mapstructure:"fill"`
	Crypto   CryptoConfig   `yaml:"crypto" mapstructure:"crypto"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the knowledge store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ClassifyConfig configures the field classification pipeline.
type ClassifyConfig struct {
	AcceptanceThreshold float64 `yaml:"acceptance_threshold" mapstructure:"acceptance_threshold"`
	RemoteEnabled       bool    `yaml:"remote_enabled" mapstructure:"remote_enabled"`
	RemoteTimeoutMs     int     `yaml:"remote_timeout_ms" mapstructure:"remote_timeout_ms"`
	MaxRemoteFields     int     `yaml:"max_remote_fields" mapstructure:"max_remote_fields"`
	MaxFieldChars       int     `yaml:"max_field_chars" mapstructure:"max_field_chars"`
	MergeStrategy       string  `yaml:"merge_strategy" mapstructure:"merge_strategy"`
	RulesPath           string  `yaml:"rules_path" mapstructure:"rules_path"`
}

// RemoteTimeout returns the remote call deadline.
func (c ClassifyConfig) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMs) * time.Millisecond
}

// LLMConfig configures the remote model. Credentials live in the encrypted
// llmConfig document, never here.
type LLMConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
	MaxTokens        int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// FillConfig configures the interaction executor.
type FillConfig struct {
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	OptionWaitMs  int     `yaml:"option_wait_ms" mapstructure:"option_wait_ms"`
	TypeDelayMs   int     `yaml:"type_delay_ms" mapstructure:"type_delay_ms"`
	MaxFanout     int     `yaml:"max_fanout" mapstructure:"max_fanout"`
}

// CryptoConfig configures at-rest encryption.
type CryptoConfig struct {
	InstallIDPath string `yaml:"install_id_path" mapstructure:"install_id_path"`
	PBKDF2Rounds  int    `yaml:"pbkdf2_rounds" mapstructure:"pbkdf2_rounds"`
}

// ServerConfig configures the bridge HTTP server.
type ServerConfig struct {
	Addr               string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// BrowserConfig configures the rod browser adapter.
type BrowserConfig struct {
	ControlURL            string `yaml:"control_url" mapstructure:"control_url"`
	Headless              bool   `yaml:"headless" mapstructure:"headless"`
	NavigationTimeoutSecs int    `yaml:"navigation_timeout_secs" mapstructure:"navigation_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from formpilot.yaml, FORMPILOT_* env vars and
// defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("formpilot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".formpilot"))
	}

	v.SetEnvPrefix("FORMPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	installID := "install_id"
	if home, err := os.UserHomeDir(); err == nil {
		installID = filepath.Join(home, ".formpilot", "install_id")
	}

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "formpilot.db")
	v.SetDefault("classify.acceptance_threshold", 0.5)
	v.SetDefault("classify.remote_enabled", true)
	v.SetDefault("classify.remote_timeout_ms", 8000)
	v.SetDefault("classify.max_remote_fields", 50)
	v.SetDefault("classify.max_field_chars", 200)
	v.SetDefault("classify.merge_strategy", "max")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.rate_per_sec", 1.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.breaker_failures", 3)
	v.SetDefault("llm.breaker_reset_secs", 60)
	v.SetDefault("fill.min_confidence", 0.8)
	v.SetDefault("fill.option_wait_ms", 1500)
	v.SetDefault("fill.type_delay_ms", 25)
	v.SetDefault("fill.max_fanout", 1)
	v.SetDefault("crypto.install_id_path", installID)
	v.SetDefault("crypto.pbkdf2_rounds", 100000)
	v.SetDefault("server.addr", "127.0.0.1:7417")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects values the components cannot work with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	switch c.Classify.MergeStrategy {
	case "max", "max_sum":
	default:
		return eris.Errorf("config: unsupported merge strategy %q", c.Classify.MergeStrategy)
	}
	if c.Classify.AcceptanceThreshold < 0 || c.Classify.AcceptanceThreshold > 1 {
		return eris.Errorf("config: acceptance_threshold %v out of [0,1]", c.Classify.AcceptanceThreshold)
	}
	if c.Classify.MaxRemoteFields < 1 || c.Classify.MaxRemoteFields > 50 {
		return eris.Errorf("config: max_remote_fields %d out of [1,50]", c.Classify.MaxRemoteFields)
	}
	if c.Classify.MaxFieldChars < 1 || c.Classify.MaxFieldChars > 200 {
		return eris.Errorf("config: max_field_chars %d out of [1,200]", c.Classify.MaxFieldChars)
	}
	if c.Fill.MaxFanout < 1 {
		c.Fill.MaxFanout = 1
	}
	return nil
}

// InitLogger configures the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
