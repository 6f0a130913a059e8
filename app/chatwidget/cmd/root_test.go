package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/chatwidget/internal/config"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvConfigPath, "CHATWIDGET_PROVIDER", "CHATWIDGET_API_KEY", "CHATWIDGET_MODEL", "CHATWIDGET_ENDPOINT",
		"CHATWIDGET_AUTH_MODE", "CHATWIDGET_SYSTEM_PROMPT", "CHATWIDGET_STATE_DIR", "CHATWIDGET_STORAGE",
		"CHATWIDGET_LOG_LEVEL", "CHATWIDGET_OTLP_ENDPOINT", "CHATWIDGET_MAX_OUTPUT_TOKENS", "CHATWIDGET_LOG_PRETTY",
		"CHATWIDGET_TELEMETRY", "CHATWIDGET_OTLP_INSECURE", "GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func executeRoot(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		// Flag state outlives Execute
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestRootConfig_ProviderFlagPicksProviderKey(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{
			name:    "anthropic key",
			env:     map[string]string{"ANTHROPIC_API_KEY": "anthropic-secret", "GEMINI_API_KEY": "gemini-secret"},
			wantKey: "anthropic-secret",
		},
		{
			name:    "gemini key only",
			env:     map[string]string{"GEMINI_API_KEY": "gemini-secret"},
			wantKey: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			out := executeRoot(t, "--provider", "anthropic", "--storage", "memory", "--log-level", "disabled", "theme")

			assert.Contains(t, out, "light")
			assert.Equal(t, config.ProviderAnthropic, cfg.Provider)
			assert.Equal(t, tt.wantKey, cfg.APIKey)
		})
	}
}

func TestRootConfig_ProviderFromEnvStillFallsBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CHATWIDGET_PROVIDER", config.ProviderGemini)
	t.Setenv("GOOGLE_API_KEY", "google-secret")

	executeRoot(t, "--storage", "memory", "--log-level", "disabled", "theme")

	assert.Equal(t, config.ProviderGemini, cfg.Provider)
	assert.Equal(t, "google-secret", cfg.APIKey)
}
