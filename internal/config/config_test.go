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
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lead-wizard.db", cfg.Store.SQLitePath)
	assert.Equal(t, "data/sessions", cfg.Store.BadgerDir)
	assert.Empty(t, cfg.Store.LegacyPath)
	assert.Equal(t, "leadgen", cfg.Workflow.PreviewSource)
	assert.Equal(t, 25, cfg.Workflow.DefaultLeads)
	assert.Equal(t, 100, cfg.Workflow.MaxLeads)
	assert.Equal(t, time.Second, cfg.Workflow.SettleDelay())
	assert.Equal(t, 30*time.Second, cfg.Workflow.ProgressWindow())
	assert.Equal(t, 7, cfg.Workflow.ProgressDays)
	assert.Equal(t, 30, cfg.Workflow.FilterDays)
	assert.Equal(t, 365, cfg.Workflow.PreferenceDays)
	assert.Equal(t, 600, cfg.Loader.PreviewTTLSecs)
	assert.Equal(t, 3600, cfg.Loader.EnrichmentTTLSecs)
	assert.Zero(t, cfg.Loader.HistoryTTLSecs)
	assert.Equal(t, 5000, cfg.Loader.ErrorBackoffMS)
	assert.True(t, cfg.Mutate.AnalysisEnabled)
	assert.Equal(t, 120, cfg.Mutate.AnalysisTimeoutSecs)
	assert.False(t, cfg.Mutate.RetainFailedMarks)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.InDelta(t, 5.0, cfg.Salesforce.RateLimit, 0.001)
	assert.Equal(t, 4, cfg.Salesforce.Concurrency)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.IntentModel)
	assert.Equal(t, "https://places.googleapis.com", cfg.Google.BaseURL)
	assert.Equal(t, 3, cfg.LeadGen.RetryAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
workflow:
  settle_delay_ms: 250
  max_leads: 40
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.SettleDelay())
	assert.Equal(t, 40, cfg.Workflow.MaxLeads)
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Workflow.DefaultLeads)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("LEADWIZARD_STORE_DRIVER", "postgres")
	t.Setenv("LEADWIZARD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADWIZARD_SERVER_PORT", "3000")
	t.Setenv("LEADWIZARD_SALESFORCE_USERNAME", "ops@example.com")
	t.Setenv("LEADWIZARD_MUTATE_RETAIN_FAILED_MARKS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "ops@example.com", cfg.Salesforce.Username)
	assert.True(t, cfg.Mutate.RetainFailedMarks)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

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

// validServe returns a Config that passes Validate("serve").
func validServe() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "history.db"
	cfg.Store.BadgerDir = "sessions"
	cfg.Server.Port = 8080
	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.Username = "ops@example.com"
	cfg.Salesforce.KeyPath = "server.key"
	cfg.Salesforce.Concurrency = 4
	cfg.Workflow.PreviewSource = "leadgen"
	cfg.Workflow.DefaultLeads = 25
	cfg.Workflow.MaxLeads = 100
	cfg.LeadGen.BaseURL = "https://leads.example.com"
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validServe().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.badger_dir is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "salesforce.client_id")
	assert.Contains(t, err.Error(), "workflow.preview_source")
}

func TestValidateServe_PostgresNeedsURL(t *testing.T) {
	cfg := validServe()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/leads"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_GooglePreview(t *testing.T) {
	cfg := validServe()
	cfg.Workflow.PreviewSource = "google"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google.key is required")

	cfg.Google.Key = "places-key"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_LeadBounds(t *testing.T) {
	cfg := validServe()
	cfg.Workflow.DefaultLeads = 101
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow.default_leads")

	cfg.Workflow.DefaultLeads = 25
	cfg.Salesforce.Concurrency = 0
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.concurrency must be between 1 and 20")
}

func TestValidateHistory(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "history.db"
	assert.NoError(t, cfg.Validate("history"))
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateSession(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate("session"))
	cfg.Store.BadgerDir = "sessions"
	assert.NoError(t, cfg.Validate("session"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validServe().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
