package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" mapstructure:"artifacts"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model" validate:"required"`

	// Per-stage output budgets.
	KPIMaxTokens      int64 `yaml:"kpi_max_tokens" mapstructure:"kpi_max_tokens" validate:"min=256"`
	InsightsMaxTokens int64 `yaml:"insights_max_tokens" mapstructure:"insights_max_tokens" validate:"min=256"`
	SummaryMaxTokens  int64 `yaml:"summary_max_tokens" mapstructure:"summary_max_tokens" validate:"min=256"`

	Temperature float64 `yaml:"temperature" mapstructure:"temperature" validate:"min=0,max=1"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=0"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	// KPIMode is "combined" (one call for all sheets) or "per_sheet".
	KPIMode           string      `yaml:"kpi_mode" mapstructure:"kpi_mode" validate:"oneof=combined per_sheet"`
	Concurrency       int         `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=16"`
	RequestsPerSecond float64     `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
	Retry             RetryConfig `yaml:"retry" mapstructure:"retry"`

	// BreakerThreshold is the number of consecutive failed model calls after
	// which further calls are rejected for BreakerResetSecs. 0 disables it.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold" validate:"min=0"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs" validate:"min=0"`
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"min=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"min=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"min=0"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"min=0,max=1"`
}

// SheetsConfig configures sheet selection and CSV cleanup.
type SheetsConfig struct {
	SkipSummary   bool     `yaml:"skip_summary" mapstructure:"skip_summary"`
	StartRow      int      `yaml:"start_row" mapstructure:"start_row" validate:"min=1"`
	TrailingRows  int      `yaml:"trailing_rows" mapstructure:"trailing_rows" validate:"min=0"`
	FallbackRows  int      `yaml:"fallback_rows" mapstructure:"fallback_rows" validate:"min=1"`
	MaxEmptyRows  int      `yaml:"max_empty_rows" mapstructure:"max_empty_rows" validate:"min=0"`
	StripSuffixes []string `yaml:"strip_suffixes" mapstructure:"strip_suffixes"`
}

// CatalogConfig points at an optional KPI catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres memory"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"min=0"`
}

// ArtifactsConfig configures where JSON artifacts are archived.
type ArtifactsConfig struct {
	Driver string   `yaml:"driver" mapstructure:"driver" validate:"oneof=fs s3 none"`
	Dir    string   `yaml:"dir" mapstructure:"dir"`
	S3     S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config holds S3 (or S3-compatible) bucket settings.
type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port" validate:"min=0,max=65535"`
	MaxUploadMB        int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb" validate:"min=1"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs" validate:"min=0"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds token pricing for one model.
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"min=0"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"min=0"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"min=0,max=1"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd" validate:"min=0"`
	StalledAfterMins     int     `yaml:"stalled_after_mins" mapstructure:"stalled_after_mins" validate:"min=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.kpi_max_tokens", 8192)
	v.SetDefault("anthropic.insights_max_tokens", 2048)
	v.SetDefault("anthropic.summary_max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("pipeline.kpi_mode", "combined")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.requests_per_second", 2.0)
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.initial_backoff_ms", 2000)
	v.SetDefault("pipeline.retry.max_backoff_ms", 30000)
	v.SetDefault("pipeline.retry.multiplier", 2.0)
	v.SetDefault("pipeline.retry.jitter_fraction", 0.25)
	v.SetDefault("pipeline.breaker_threshold", 5)
	v.SetDefault("pipeline.breaker_reset_secs", 30)
	v.SetDefault("sheets.skip_summary", true)
	v.SetDefault("sheets.start_row", 6)
	v.SetDefault("sheets.trailing_rows", 3)
	v.SetDefault("sheets.fallback_rows", 10)
	v.SetDefault("sheets.max_empty_rows", 3)
	v.SetDefault("sheets.strip_suffixes", []string{"- Supplier Partner Performance Matrix"})
	v.SetDefault("catalog.path", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "results/runs.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("artifacts.driver", "fs")
	v.SetDefault("artifacts.dir", "results")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "kpi-insights")
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.access_key_id", "")
	v.SetDefault("artifacts.s3.secret_access_key", "")
	v.SetDefault("artifacts.s3.use_path_style", false)
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("server.request_timeout_secs", 600)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.stalled_after_mins", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return val
}

// Validate checks field bounds and the settings required by the given mode.
// Modes: "serve", "run", "runs".
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !eris.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	switch mode {
	case "serve", "run":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if mode == "serve" && c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
			problems = append(problems, "monitoring.webhook_url is required when monitoring is enabled")
		}
		if c.Artifacts.Driver == "s3" && c.Artifacts.S3.Bucket == "" {
			problems = append(problems, "artifacts.s3.bucket is required when artifacts.driver is s3")
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required when store.driver is postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	}
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
