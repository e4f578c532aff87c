package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity  PerplexityConfig  `yaml:"perplexity" mapstructure:"perplexity"`
	JobStore    JobStoreConfig    `yaml:"jobstore" mapstructure:"jobstore"`
	Runner      RunnerConfig      `yaml:"runner" mapstructure:"runner"`
	Health      HealthConfig      `yaml:"health" mapstructure:"health"`
	Filter      FilterConfig      `yaml:"filter" mapstructure:"filter"`
	Density     DensityConfig     `yaml:"density" mapstructure:"density"`
	Grounding   GroundingConfig   `yaml:"grounding" mapstructure:"grounding"`
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	Recency     RecencyConfig     `yaml:"recency" mapstructure:"recency"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the local database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JobStoreConfig holds the external job store connection settings.
type JobStoreConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	AdminKey string `yaml:"admin_key" mapstructure:"admin_key"`
}

// RunnerConfig configures the job queue runner.
type RunnerConfig struct {
	MaxConcurrency     int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxSlowConcurrency int `yaml:"max_slow_concurrency" mapstructure:"max_slow_concurrency"`
	QueueMaxWaitHours  int `yaml:"queue_max_wait_hours" mapstructure:"queue_max_wait_hours"`
	StaleThresholdMins int `yaml:"stale_threshold_mins" mapstructure:"stale_threshold_mins"`
	WatchdogSecs       int `yaml:"watchdog_secs" mapstructure:"watchdog_secs"`
}

// HealthConfig configures provider circuit breakers and pause notification.
type HealthConfig struct {
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// FilterConfig configures the structural evidence filter.
type FilterConfig struct {
	MinStatementLength         int `yaml:"min_statement_length" mapstructure:"min_statement_length"`
	MinExcerptLength           int `yaml:"min_excerpt_length" mapstructure:"min_excerpt_length"`
	MinStatisticExcerptLength  int `yaml:"min_statistic_excerpt_length" mapstructure:"min_statistic_excerpt_length"`
}

// DensityConfig configures evidence density scoring.
type DensityConfig struct {
	SourceCountThreshold int     `yaml:"source_count_threshold" mapstructure:"source_count_threshold"`
	MinConfidenceBase    float64 `yaml:"min_confidence_base" mapstructure:"min_confidence_base"`
	MinConfidenceMax     float64 `yaml:"min_confidence_max" mapstructure:"min_confidence_max"`
}

// GroundingConfig configures grounding-ratio penalties.
type GroundingConfig struct {
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	Floor           float64 `yaml:"floor" mapstructure:"floor"`
	ReductionFactor float64 `yaml:"reduction_factor" mapstructure:"reduction_factor"`
}

// CalibrationConfig configures the confidence calibration engine.
type CalibrationConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	BandsFile               string  `yaml:"bands_file" mapstructure:"bands_file"`
	BandStrength            float64 `yaml:"band_strength" mapstructure:"band_strength"`
	StrongThresholdDistance float64 `yaml:"strong_threshold_distance" mapstructure:"strong_threshold_distance"`
	MinConfidenceStrong     float64 `yaml:"min_confidence_strong" mapstructure:"min_confidence_strong"`
	MinConfidenceNeutral    float64 `yaml:"min_confidence_neutral" mapstructure:"min_confidence_neutral"`
	MaxConfidenceSpread     float64 `yaml:"max_confidence_spread" mapstructure:"max_confidence_spread"`
	SpreadReductionFactor   float64 `yaml:"spread_reduction_factor" mapstructure:"spread_reduction_factor"`
}

// RecencyConfig configures the recency penalty calculator.
type RecencyConfig struct {
	MaxPenalty   float64 `yaml:"max_penalty" mapstructure:"max_penalty"`
	WindowMonths float64 `yaml:"window_months" mapstructure:"window_months"`
}

// PipelineConfig configures analysis execution.
type PipelineConfig struct {
	MaxSchemaRetries  int     `yaml:"max_schema_retries" mapstructure:"max_schema_retries"`
	SearchConcurrency int     `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	SearchRatePerSec  float64 `yaml:"search_rate_per_sec" mapstructure:"search_rate_per_sec"`
	MaxClaims         int     `yaml:"max_claims" mapstructure:"max_claims"`
	FetchSources      bool    `yaml:"fetch_sources" mapstructure:"fetch_sources"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets and URLs default empty so AutomaticEnv can bind
	// them during Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "verify.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("jobstore.base_url", "")
	v.SetDefault("jobstore.admin_key", "")
	v.SetDefault("health.webhook_url", "")
	v.SetDefault("calibration.bands_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("runner.max_concurrency", 3)
	v.SetDefault("runner.max_slow_concurrency", 2)
	v.SetDefault("runner.queue_max_wait_hours", 6)
	v.SetDefault("runner.stale_threshold_mins", 15)
	v.SetDefault("runner.watchdog_secs", 30)
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.reset_timeout_secs", 60)
	v.SetDefault("filter.min_statement_length", 20)
	v.SetDefault("filter.min_excerpt_length", 30)
	v.SetDefault("filter.min_statistic_excerpt_length", 50)
	v.SetDefault("density.source_count_threshold", 3)
	v.SetDefault("density.min_confidence_base", 20)
	v.SetDefault("density.min_confidence_max", 45)
	v.SetDefault("grounding.threshold", 0.5)
	v.SetDefault("grounding.floor", 0.1)
	v.SetDefault("grounding.reduction_factor", 0.3)
	v.SetDefault("calibration.enabled", true)
	v.SetDefault("calibration.band_strength", 0.5)
	v.SetDefault("calibration.strong_threshold_distance", 20)
	v.SetDefault("calibration.min_confidence_strong", 50)
	v.SetDefault("calibration.min_confidence_neutral", 25)
	v.SetDefault("calibration.max_confidence_spread", 25)
	v.SetDefault("calibration.spread_reduction_factor", 0.5)
	v.SetDefault("recency.max_penalty", 20)
	v.SetDefault("recency.window_months", 6)
	v.SetDefault("pipeline.max_schema_retries", 2)
	v.SetDefault("pipeline.search_concurrency", 4)
	v.SetDefault("pipeline.search_rate_per_sec", 2)
	v.SetDefault("pipeline.max_claims", 10)
	v.SetDefault("pipeline.fetch_sources", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys a command mode depends on are set. Modes:
// "analyze" runs the pipeline locally, "serve" adds the HTTP API, "worker"
// additionally talks to the external job store.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "analyze", "serve":
	case "worker":
		if c.JobStore.BaseURL == "" {
			missing = append(missing, "VERIFY_JOBSTORE_BASE_URL")
		}
		if c.JobStore.AdminKey == "" {
			missing = append(missing, "VERIFY_JOBSTORE_ADMIN_KEY")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Anthropic.Key == "" {
		missing = append(missing, "VERIFY_ANTHROPIC_KEY")
	}
	if c.Perplexity.Key == "" {
		missing = append(missing, "VERIFY_PERPLEXITY_KEY")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "VERIFY_STORE_DATABASE_URL")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
