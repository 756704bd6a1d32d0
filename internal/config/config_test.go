package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(8192), cfg.Anthropic.KPIMaxTokens)
	assert.Equal(t, int64(2048), cfg.Anthropic.InsightsMaxTokens)
	assert.Equal(t, int64(1024), cfg.Anthropic.SummaryMaxTokens)
	assert.Equal(t, "combined", cfg.Pipeline.KPIMode)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 3, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Pipeline.BreakerThreshold)
	assert.True(t, cfg.Sheets.SkipSummary)
	assert.Equal(t, 6, cfg.Sheets.StartRow)
	assert.Equal(t, 3, cfg.Sheets.TrailingRows)
	assert.Equal(t, 10, cfg.Sheets.FallbackRows)
	assert.Equal(t, []string{"- Supplier Partner Performance Matrix"}, cfg.Sheets.StripSuffixes)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "results/runs.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "fs", cfg.Artifacts.Driver)
	assert.Equal(t, "results", cfg.Artifacts.Dir)
	assert.Equal(t, 8001, cfg.Server.Port)
	assert.Equal(t, int64(25), cfg.Server.MaxUploadMB)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/kpi
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  kpi_mode: per_sheet
pricing:
  anthropic:
    claude-test:
      input: 1.5
      output: 7.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "per_sheet", cfg.Pipeline.KPIMode)
	require.Contains(t, cfg.Pricing.Anthropic, "claude-test")
	assert.InDelta(t, 7.5, cfg.Pricing.Anthropic["claude-test"].Output, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 6, cfg.Sheets.StartRow)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("KPI_STORE_DRIVER", "memory")
	t.Setenv("KPI_LOG_LEVEL", "warn")
	t.Setenv("KPI_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingKey(t *testing.T) {
	cfg := loadDefaults(t)

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateRuns_NoKeyNeeded(t *testing.T) {
	cfg := loadDefaults(t)
	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := loadDefaults(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateFieldBounds(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Pipeline.KPIMode = "streaming"
	cfg.Pipeline.Concurrency = 0
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.kpi_mode must be one of [combined per_sheet]")
	assert.Contains(t, err.Error(), "pipeline.concurrency failed min=1")
	assert.Contains(t, err.Error(), "store.driver must be one of [sqlite postgres memory]")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateS3NeedsBucket(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Artifacts.Driver = "s3"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifacts.s3.bucket is required")

	cfg.Artifacts.S3.Bucket = "kpi-archive"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateMonitoringNeedsWebhook(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Monitoring.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.webhook_url is required")

	cfg.Monitoring.WebhookURL = "https://hooks.example.com/kpi"
	assert.NoError(t, cfg.Validate("serve"))
}
