package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"listing-wizard/internal/gateway"
)

// Config is the local CLI configuration. The Lambda builds ProviderConfig
// from its environment instead.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProviderConfig selects and tunes the text-generation providers.
type ProviderConfig struct {
	// Primary is tried first; the other provider is the fallback.
	Primary        string `mapstructure:"primary"`
	HistoryLimit   int    `mapstructure:"history_limit"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	OpenAIModel    string `mapstructure:"openai_model"`
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	GeminiModel    string `mapstructure:"gemini_model"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
}

type StoreConfig struct {
	// Path of the bbolt database file.
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Credentials are the provider API keys. A provider without a key is not
// registered with the gateway.
type Credentials struct {
	OpenAIKey string
	GeminiKey string
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.OpenAIKey) == "" && strings.TrimSpace(c.GeminiKey) == ""
}

func (p ProviderConfig) Credentials() Credentials {
	return Credentials{OpenAIKey: p.OpenAIAPIKey, GeminiKey: p.GeminiAPIKey}
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Gateway returns the gateway configuration for the configured primary.
func (p ProviderConfig) Gateway() gateway.Config {
	return gateway.Config{
		Policy:         gateway.FallbackPolicy(p.Primary),
		HistoryLimit:   p.HistoryLimit,
		AttemptTimeout: p.Timeout(),
	}
}

func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Primary:        gateway.ProviderOpenAI,
			HistoryLimit:   10,
			TimeoutSeconds: 30,
			OpenAIModel:    "gpt-4",
			GeminiModel:    "gemini-2.5-flash",
		},
		Store: StoreConfig{
			Path: "wizard.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every key with v so env overrides are picked up on
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider.primary", d.Provider.Primary)
	v.SetDefault("provider.history_limit", d.Provider.HistoryLimit)
	v.SetDefault("provider.timeout_seconds", d.Provider.TimeoutSeconds)
	v.SetDefault("provider.openai_model", d.Provider.OpenAIModel)
	v.SetDefault("provider.openai_base_url", d.Provider.OpenAIBaseURL)
	v.SetDefault("provider.openai_api_key", d.Provider.OpenAIAPIKey)
	v.SetDefault("provider.gemini_model", d.Provider.GeminiModel)
	v.SetDefault("provider.gemini_api_key", d.Provider.GeminiAPIKey)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("logging.level", d.Logging.Level)
}

// BindEnv makes every key overridable as WIZARD_<SECTION>_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("WIZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.Provider.Validate()...)
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, ValidationError{Field: "store.path", Value: c.Store.Path, Message: "must not be empty"})
	}
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	return errs
}

func (p ProviderConfig) Validate() ValidationErrors {
	var errs ValidationErrors
	if p.Primary != gateway.ProviderOpenAI && p.Primary != gateway.ProviderGemini {
		errs = append(errs, ValidationError{Field: "provider.primary", Value: p.Primary, Message: "must be openai or gemini"})
	}
	if p.HistoryLimit <= 0 {
		errs = append(errs, ValidationError{Field: "provider.history_limit", Value: p.HistoryLimit, Message: "must be positive"})
	}
	if p.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "provider.timeout_seconds", Value: p.TimeoutSeconds, Message: "must be positive"})
	}
	return errs
}

// SlogLevel maps the configured level to slog, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
