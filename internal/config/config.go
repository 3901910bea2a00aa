package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Valuation  ValuationConfig  `yaml:"valuation" mapstructure:"valuation"`
	Provenance ProvenanceConfig `yaml:"provenance" mapstructure:"provenance"`
	Sandbox    SandboxConfig    `yaml:"sandbox" mapstructure:"sandbox"`
	DLQ        DLQConfig        `yaml:"dlq" mapstructure:"dlq"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the vision stage.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures step execution.
type PipelineConfig struct {
	StepTimeoutSecs  int     `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
	Retries          int     `yaml:"retries" mapstructure:"retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	ImageConcurrency int     `yaml:"image_concurrency" mapstructure:"image_concurrency"`
}

// StepTimeout returns the per-attempt deadline.
func (p PipelineConfig) StepTimeout() time.Duration {
	return time.Duration(p.StepTimeoutSecs) * time.Second
}

// CircuitConfig configures the per-operation circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ValuationConfig configures the valuation engine.
type ValuationConfig struct {
	Currency string `yaml:"currency" mapstructure:"currency"`
}

// ProvenanceConfig configures timeline analysis.
type ProvenanceConfig struct {
	GapYears float64 `yaml:"gap_years" mapstructure:"gap_years"`
}

// SandboxConfig configures canned results for demos and tests.
type SandboxConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// DLQConfig configures the dead letter queue. MaxRetries of 0 disables it.
type DLQConfig struct {
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelaySecs int `yaml:"base_delay_secs" mapstructure:"base_delay_secs"`
}

// BaseDelay returns the delay before the first retry.
func (d DLQConfig) BaseDelay() time.Duration {
	return time.Duration(d.BaseDelaySecs) * time.Second
}

// FetchConfig configures image downloads for content hashing.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBytes    int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures workflow health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("APPRAISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "appraise.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("pipeline.step_timeout_secs", 10)
	v.SetDefault("pipeline.retries", 3)
	v.SetDefault("pipeline.initial_backoff_ms", 1000)
	v.SetDefault("pipeline.max_backoff_ms", 30000)
	v.SetDefault("pipeline.jitter_fraction", 0.0)
	v.SetDefault("pipeline.image_concurrency", 4)
	v.SetDefault("circuit.failure_threshold", 3)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("valuation.currency", "USD")
	v.SetDefault("provenance.gap_years", 5.0)
	v.SetDefault("sandbox.enabled", false)
	v.SetDefault("sandbox.path", "sandbox.yaml")
	v.SetDefault("dlq.max_retries", 3)
	v.SetDefault("dlq.base_delay_secs", 300)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("fetch.user_agent", "appraise-cli/1.0")
	v.SetDefault("fetch.max_bytes", 20<<20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Pipeline.Retries < 0 {
		return eris.Errorf("config: pipeline.retries must be >= 0, got %d", c.Pipeline.Retries)
	}
	if c.Pipeline.StepTimeoutSecs <= 0 {
		return eris.Errorf("config: pipeline.step_timeout_secs must be > 0, got %d", c.Pipeline.StepTimeoutSecs)
	}
	if c.DLQ.MaxRetries < 0 {
		return eris.Errorf("config: dlq.max_retries must be >= 0, got %d", c.DLQ.MaxRetries)
	}
	if c.Provenance.GapYears <= 0 {
		return eris.Errorf("config: provenance.gap_years must be > 0, got %v", c.Provenance.GapYears)
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
