package config

import (
	"fmt"
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
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Loader     LoaderConfig     `yaml:"loader" mapstructure:"loader"`
	Mutate     MutateConfig     `yaml:"mutate" mapstructure:"mutate"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	LeadGen    LeadGenConfig    `yaml:"leadgen" mapstructure:"leadgen"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the history database and the session tiers.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	BadgerDir   string `yaml:"badger_dir" mapstructure:"badger_dir"`
	// LegacyPath is the old single-tier session store. Empty disables migration.
	LegacyPath string `yaml:"legacy_path" mapstructure:"legacy_path"`
}

// WorkflowConfig tunes the step machine.
type WorkflowConfig struct {
	PreviewSource      string `yaml:"preview_source" mapstructure:"preview_source"`
	DefaultLeads       int    `yaml:"default_leads" mapstructure:"default_leads"`
	MaxLeads           int    `yaml:"max_leads" mapstructure:"max_leads"`
	SettleDelayMS      int    `yaml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
	ProgressWindowSecs int    `yaml:"progress_window_secs" mapstructure:"progress_window_secs"`
	ProgressDays       int    `yaml:"progress_days" mapstructure:"progress_days"`
	FilterDays         int    `yaml:"filter_days" mapstructure:"filter_days"`
	PreferenceDays     int    `yaml:"preference_days" mapstructure:"preference_days"`
}

// SettleDelay returns the auto-recovery settle delay.
func (w WorkflowConfig) SettleDelay() time.Duration {
	return time.Duration(w.SettleDelayMS) * time.Millisecond
}

// ProgressWindow returns the forward-progression window.
func (w WorkflowConfig) ProgressWindow() time.Duration {
	return time.Duration(w.ProgressWindowSecs) * time.Second
}

// LoaderConfig holds per-category cache TTLs.
type LoaderConfig struct {
	PreviewTTLSecs    int `yaml:"preview_ttl_secs" mapstructure:"preview_ttl_secs"`
	EnrichmentTTLSecs int `yaml:"enrichment_ttl_secs" mapstructure:"enrichment_ttl_secs"`
	HistoryTTLSecs    int `yaml:"history_ttl_secs" mapstructure:"history_ttl_secs"`
	ErrorBackoffMS    int `yaml:"error_backoff_ms" mapstructure:"error_backoff_ms"`
}

// TTL converts a seconds setting.
func TTL(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// MutateConfig configures batch saves.
type MutateConfig struct {
	AnalysisEnabled     bool `yaml:"analysis_enabled" mapstructure:"analysis_enabled"`
	AnalysisTimeoutSecs int  `yaml:"analysis_timeout_secs" mapstructure:"analysis_timeout_secs"`
	RetainFailedMarks   bool `yaml:"retain_failed_marks" mapstructure:"retain_failed_marks"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID    string  `yaml:"client_id" mapstructure:"client_id"`
	Username    string  `yaml:"username" mapstructure:"username"`
	KeyPath     string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL    string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	IntentModel  string `yaml:"intent_model" mapstructure:"intent_model"`
	InsightModel string `yaml:"insight_model" mapstructure:"insight_model"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LeadGenConfig holds the lead-generation backend settings.
type LeadGenConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	Key           string `yaml:"key" mapstructure:"key"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("LEADWIZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "lead-wizard.db")
	v.SetDefault("store.badger_dir", "data/sessions")
	v.SetDefault("store.legacy_path", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("workflow.preview_source", "leadgen")
	v.SetDefault("workflow.default_leads", 25)
	v.SetDefault("workflow.max_leads", 100)
	v.SetDefault("workflow.settle_delay_ms", 1000)
	v.SetDefault("workflow.progress_window_secs", 30)
	v.SetDefault("workflow.progress_days", 7)
	v.SetDefault("workflow.filter_days", 30)
	v.SetDefault("workflow.preference_days", 365)
	v.SetDefault("loader.preview_ttl_secs", 600)
	v.SetDefault("loader.enrichment_ttl_secs", 3600)
	v.SetDefault("loader.history_ttl_secs", 0)
	v.SetDefault("loader.error_backoff_ms", 5000)
	v.SetDefault("mutate.analysis_enabled", true)
	v.SetDefault("mutate.analysis_timeout_secs", 120)
	v.SetDefault("mutate.retain_failed_marks", false)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("salesforce.concurrency", 4)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.intent_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.insight_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com")
	v.SetDefault("leadgen.base_url", "")
	v.SetDefault("leadgen.key", "")
	v.SetDefault("leadgen.timeout_secs", 60)
	v.SetDefault("leadgen.retry_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				add("store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver")
			}
		default:
			add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
		}
	}

	switch mode {
	case "serve":
		checkStore()
		if c.Store.BadgerDir == "" {
			add("store.badger_dir is required")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			add("salesforce.client_id, salesforce.username and salesforce.key_path are required")
		}
		switch c.Workflow.PreviewSource {
		case "leadgen":
			if c.LeadGen.BaseURL == "" {
				add("leadgen.base_url is required")
			}
		case "google":
			if c.Google.Key == "" {
				add("google.key is required for the google preview source")
			}
			if c.LeadGen.BaseURL == "" {
				add("leadgen.base_url is required for enrichment")
			}
		default:
			add("workflow.preview_source must be leadgen or google, got %q", c.Workflow.PreviewSource)
		}
		if c.Workflow.DefaultLeads < 1 || c.Workflow.DefaultLeads > c.Workflow.MaxLeads {
			add("workflow.default_leads must be between 1 and workflow.max_leads")
		}
		if c.Workflow.SettleDelayMS < 0 || c.Workflow.ProgressWindowSecs < 0 {
			add("workflow.settle_delay_ms and workflow.progress_window_secs must be >= 0")
		}
		if c.Salesforce.Concurrency < 1 || c.Salesforce.Concurrency > 20 {
			add("salesforce.concurrency must be between 1 and 20")
		}
	case "history", "migrate":
		checkStore()
	case "session":
		if c.Store.BadgerDir == "" {
			add("store.badger_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
