package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "appraise.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10, cfg.Pipeline.StepTimeoutSecs)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.StepTimeout())
	assert.Equal(t, 3, cfg.Pipeline.Retries)
	assert.Equal(t, 1000, cfg.Pipeline.InitialBackoffMs)
	assert.InDelta(t, 0.0, cfg.Pipeline.JitterFraction, 0.0001)
	assert.Equal(t, 4, cfg.Pipeline.ImageConcurrency)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 30, cfg.Circuit.ResetTimeoutSecs)
	assert.Equal(t, "USD", cfg.Valuation.Currency)
	assert.InDelta(t, 5.0, cfg.Provenance.GapYears, 0.0001)
	assert.False(t, cfg.Sandbox.Enabled)
	assert.Equal(t, 3, cfg.DLQ.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.DLQ.BaseDelay())
	assert.Equal(t, "appraise-cli/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, int64(2048), cfg.Anthropic.MaxTokens)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.0001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/appraise
log:
  level: debug
  format: console
server:
  port: 9090
valuation:
  currency: EUR
sandbox:
  enabled: true
  path: fixtures/sandbox.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/appraise", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "EUR", cfg.Valuation.Currency)
	assert.True(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "fixtures/sandbox.yaml", cfg.Sandbox.Path)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pipeline.Retries)
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

	t.Setenv("APPRAISE_STORE_DRIVER", "postgres")
	t.Setenv("APPRAISE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("APPRAISE_SERVER_PORT", "3000")
	t.Setenv("APPRAISE_PIPELINE_RETRIES", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pipeline.Retries)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)

	t.Setenv("APPRAISE_STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Pipeline.StepTimeoutSecs = 10
	cfg.Pipeline.Retries = 3
	cfg.Provenance.GapYears = 5
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults"},
		{name: "postgres driver", mutate: func(c *Config) { c.Store.Driver = "postgres" }},
		{name: "zero retries allowed", mutate: func(c *Config) { c.Pipeline.Retries = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.Pipeline.Retries = -1 }, wantErr: "pipeline.retries"},
		{name: "zero timeout", mutate: func(c *Config) { c.Pipeline.StepTimeoutSecs = 0 }, wantErr: "step_timeout_secs"},
		{name: "dlq disabled", mutate: func(c *Config) { c.DLQ.MaxRetries = 0 }},
		{name: "negative dlq retries", mutate: func(c *Config) { c.DLQ.MaxRetries = -2 }, wantErr: "dlq.max_retries"},
		{name: "zero gap years", mutate: func(c *Config) { c.Provenance.GapYears = 0 }, wantErr: "gap_years"},
		{name: "empty driver", mutate: func(c *Config) { c.Store.Driver = "" }, wantErr: "unsupported store driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
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
