package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/promptchain/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("PROMPTCHAIN_API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "https://api.anthropic.com/v1", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "premium", cfg.Tiers.Premium.Name)
	assert.InDelta(t, 0.003, cfg.Tiers.Premium.InputPricePer1K, 1e-12)
	assert.InDelta(t, 0.015, cfg.Tiers.Premium.OutputPricePer1K, 1e-12)
	assert.Equal(t, "standard", cfg.Tiers.Standard.Name)
	assert.InDelta(t, 0.00025, cfg.Tiers.Standard.InputPricePer1K, 1e-12)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, config.Budgets{Blog: 2500, PRD: 3000, Research: 2000}, cfg.Budgets)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_AnthropicKeyAndPrefixedOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", " sk-test ")
	t.Setenv("PROMPTCHAIN_LOG_LEVEL", "debug")
	t.Setenv("PROMPTCHAIN_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("PROMPTCHAIN_REQUEST_TIMEOUT", "15s")
	t.Setenv("PROMPTCHAIN_TIERS_STANDARD_MODEL", "claude-custom")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "claude-custom", cfg.Tiers.Standard.Model)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "promptchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: from-file
requests_per_second: 2.5
tiers:
  premium:
    model: claude-opus
    input_price_per_1k: 0.015
retry:
  max_attempts: 4
  base_delay: 250ms
  markers: [busy, timeout]
budgets:
  blog: 1200
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.InDelta(t, 2.5, cfg.RequestsPerSecond, 1e-12)
	assert.Equal(t, "claude-opus", cfg.Tiers.Premium.Model)
	assert.Equal(t, "premium", cfg.Tiers.Premium.Name)
	assert.InDelta(t, 0.015, cfg.Tiers.Premium.InputPricePer1K, 1e-12)
	assert.Equal(t, 1200, cfg.Budgets.Blog)
	assert.Equal(t, 3000, cfg.Budgets.PRD)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, []string{"busy", "timeout"}, policy.Markers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPTCHAIN_RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("PROMPTCHAIN_LOG_LEVEL", "loud")

	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "retry")
	assert.Contains(t, err.Error(), "loud")
}

func TestValidate_Tiers(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		RequestTimeout: time.Second,
		LogLevel:       "info",
		Retry:          config.Retry{MaxAttempts: 1},
		Budgets:        config.Budgets{Blog: 1, PRD: 1, Research: 1},
	}
	cfg.Tiers.Premium.Name = "premium"
	cfg.Tiers.Premium.Model = "m"
	cfg.Tiers.Standard.Name = "standard"
	cfg.Tiers.Standard.Model = "m"
	require.NoError(t, cfg.Validate())

	cfg.Tiers.Standard.OutputPricePer1K = -1
	require.ErrorIs(t, cfg.Validate(), config.ErrInvalid)

	cfg.Tiers.Standard.OutputPricePer1K = 0
	cfg.Tiers.Premium.Model = ""
	require.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for input, want := range tests {
		got, err := config.ParseLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := config.ParseLogLevel("trace")
	require.ErrorIs(t, err, config.ErrInvalid)
}
