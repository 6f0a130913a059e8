// Package config provides configuration management for the chat widget.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Providers
const (
	ProviderGemini    = "gemini"
	ProviderGeminiSDK = "gemini-sdk"
	ProviderAnthropic = "anthropic"
)

// Storage backends
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Credential placement for the Gemini REST provider
const (
	AuthQuery  = "query"
	AuthBearer = "bearer"
)

const (
	DefaultGeminiEndpoint  = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultAnthropicModel  = "claude-sonnet-4-0"
	DefaultMaxOutputTokens = 4096
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "CHATWIDGET_CONFIG"

// Config holds the configuration for the widget
type Config struct {
	APIKey          string `yaml:"api_key"`
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	Endpoint        string `yaml:"endpoint"`
	AuthMode        string `yaml:"auth_mode"`
	SystemPrompt    string `yaml:"system_prompt"`
	MaxOutputTokens int64  `yaml:"max_output_tokens"`

	StateDir string `yaml:"state_dir"`
	Storage  string `yaml:"storage"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the built-in configuration
func Default() Config {
	stateDir := ".chatwidget"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".chatwidget")
	}
	return Config{
		Provider:        ProviderGemini,
		Endpoint:        DefaultGeminiEndpoint,
		AuthMode:        AuthQuery,
		MaxOutputTokens: DefaultMaxOutputTokens,
		StateDir:        stateDir,
		Storage:         StorageFile,
		Log: LogConfig{
			Level:  "warn",
			Pretty: true,
		},
	}
}

// Override adjusts the configuration after the file and environment are applied
type Override func(*Config)

// Load layers defaults, the YAML file at path (or $CHATWIDGET_CONFIG), the environment and overrides, later sources
// winning. The provider's fallback API key is resolved last, once the provider is final.
func Load(path string, overrides ...Override) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	cfg.ResolveAPIKey()
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Fields absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return nil
}

// ApplyEnv overlays CHATWIDGET_* environment variables
func (c *Config) ApplyEnv() error {
	loadOptionalFromEnv(&c.Provider, "CHATWIDGET_PROVIDER")
	loadOptionalFromEnv(&c.APIKey, "CHATWIDGET_API_KEY")
	loadOptionalFromEnv(&c.Model, "CHATWIDGET_MODEL")
	loadOptionalFromEnv(&c.Endpoint, "CHATWIDGET_ENDPOINT")
	loadOptionalFromEnv(&c.AuthMode, "CHATWIDGET_AUTH_MODE")
	loadOptionalFromEnv(&c.SystemPrompt, "CHATWIDGET_SYSTEM_PROMPT")
	loadOptionalFromEnv(&c.StateDir, "CHATWIDGET_STATE_DIR")
	loadOptionalFromEnv(&c.Storage, "CHATWIDGET_STORAGE")
	loadOptionalFromEnv(&c.Log.Level, "CHATWIDGET_LOG_LEVEL")
	loadOptionalFromEnv(&c.Telemetry.Endpoint, "CHATWIDGET_OTLP_ENDPOINT")

	errs := []error{
		parseOptionalFromEnv(&c.MaxOutputTokens, "CHATWIDGET_MAX_OUTPUT_TOKENS", func(v string) (int64, error) {
			return strconv.ParseInt(v, 10, 64)
		}),
		parseOptionalFromEnv(&c.Log.Pretty, "CHATWIDGET_LOG_PRETTY", strconv.ParseBool),
		parseOptionalFromEnv(&c.Telemetry.Enabled, "CHATWIDGET_TELEMETRY", strconv.ParseBool),
		parseOptionalFromEnv(&c.Telemetry.Insecure, "CHATWIDGET_OTLP_INSECURE", strconv.ParseBool),
	}
	return errors.Join(errs...)
}

// ResolveAPIKey falls back to the provider's conventional environment variable when no key is configured
func (c *Config) ResolveAPIKey() {
	if c.APIKey != "" {
		return
	}
	for _, key := range providerKeyVars(c.Provider) {
		if v := os.Getenv(key); v != "" {
			c.APIKey = v
			return
		}
	}
}

func providerKeyVars(provider string) []string {
	switch provider {
	case ProviderAnthropic:
		return []string{"ANTHROPIC_API_KEY"}
	default:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
}

// ResolvedModel returns the configured model or the provider's default
func (c Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultGeminiModel
}

// Configured reports whether a credential is present. A missing credential is not a validation error: the session
// reports it on every send instead.
func (c Config) Configured() bool {
	return c.APIKey != ""
}

// Validate checks that enumerated settings hold known values
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderGeminiSDK, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider '%s' (supported: %s, %s, %s)", c.Provider, ProviderGemini, ProviderGeminiSDK, ProviderAnthropic)
	}
	switch c.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown storage '%s' (supported: %s, %s, %s)", c.Storage, StorageFile, StorageSQLite, StorageMemory)
	}
	switch c.AuthMode {
	case AuthQuery, AuthBearer:
	default:
		return fmt.Errorf("unknown auth mode '%s' (supported: %s, %s)", c.AuthMode, AuthQuery, AuthBearer)
	}
	if c.Storage != StorageMemory && c.StateDir == "" {
		return fmt.Errorf("state directory is required for %s storage", c.Storage)
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", c.MaxOutputTokens)
	}
	return nil
}

func loadOptionalFromEnv(dest *string, key string) {
	_ = parseOptionalFromEnv(dest, key, func(v string) (string, error) { return v, nil })
}

func parseOptionalFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave current value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}
