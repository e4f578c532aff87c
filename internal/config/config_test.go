package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 3, cfg.Runner.MaxConcurrency)
	assert.Equal(t, 2, cfg.Runner.MaxSlowConcurrency)
	assert.Equal(t, 6, cfg.Runner.QueueMaxWaitHours)
	assert.Equal(t, 15, cfg.Runner.StaleThresholdMins)

	assert.Equal(t, 3, cfg.Health.FailureThreshold)
	assert.Equal(t, 60, cfg.Health.ResetTimeoutSecs)

	assert.Equal(t, 20, cfg.Filter.MinStatementLength)
	assert.Equal(t, 30, cfg.Filter.MinExcerptLength)
	assert.Equal(t, 50, cfg.Filter.MinStatisticExcerptLength)

	assert.Equal(t, 3, cfg.Density.SourceCountThreshold)
	assert.InDelta(t, 20.0, cfg.Density.MinConfidenceBase, 1e-9)
	assert.InDelta(t, 45.0, cfg.Density.MinConfidenceMax, 1e-9)

	assert.InDelta(t, 0.5, cfg.Grounding.Threshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Grounding.Floor, 1e-9)
	assert.InDelta(t, 0.3, cfg.Grounding.ReductionFactor, 1e-9)

	assert.True(t, cfg.Calibration.Enabled)
	assert.InDelta(t, 0.5, cfg.Calibration.BandStrength, 1e-9)
	assert.InDelta(t, 20.0, cfg.Calibration.StrongThresholdDistance, 1e-9)
	assert.InDelta(t, 50.0, cfg.Calibration.MinConfidenceStrong, 1e-9)
	assert.InDelta(t, 25.0, cfg.Calibration.MinConfidenceNeutral, 1e-9)
	assert.InDelta(t, 25.0, cfg.Calibration.MaxConfidenceSpread, 1e-9)

	assert.InDelta(t, 20.0, cfg.Recency.MaxPenalty, 1e-9)
	assert.InDelta(t, 6.0, cfg.Recency.WindowMonths, 1e-9)

	assert.Equal(t, 2, cfg.Pipeline.MaxSchemaRetries)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VERIFY_RUNNER_MAX_CONCURRENCY", "5")
	t.Setenv("VERIFY_JOBSTORE_BASE_URL", "http://jobstore.internal:9000")
	t.Setenv("VERIFY_JOBSTORE_ADMIN_KEY", "test-admin-key")
	t.Setenv("VERIFY_CALIBRATION_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runner.MaxConcurrency)
	assert.Equal(t, "http://jobstore.internal:9000", cfg.JobStore.BaseURL)
	assert.Equal(t, "test-admin-key", cfg.JobStore.AdminKey)
	assert.False(t, cfg.Calibration.Enabled)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "verbose", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", Path: "verify.db"},
		Anthropic:  AnthropicConfig{Key: "sk-ant-test"},
		Perplexity: PerplexityConfig{Key: "pplx-test"},
	}
}

func TestValidate_Analyze(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate("analyze"))

	cfg.Anthropic.Key = ""
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFY_ANTHROPIC_KEY")
}

func TestValidate_Worker(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFY_JOBSTORE_BASE_URL")
	assert.Contains(t, err.Error(), "VERIFY_JOBSTORE_ADMIN_KEY")

	cfg.JobStore.BaseURL = "http://jobstore.internal:9000"
	cfg.JobStore.AdminKey = "key"
	require.NoError(t, cfg.Validate("worker"))
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERIFY_STORE_DATABASE_URL")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validConfig().Validate("enrich")
	require.Error(t, err)
}
