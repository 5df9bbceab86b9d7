package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-wizard/internal/config"
	"github.com/sells-group/lead-wizard/internal/loader"
	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/persist"
	"github.com/sells-group/lead-wizard/internal/source"
)

type stubPreview struct{}

func (stubPreview) Preview(_ context.Context, req source.PreviewRequest) ([]model.PreviewRecord, error) {
	return []model.PreviewRecord{{ID: "p1", Name: "Acme Hoist"}}, nil
}

type stubEnrich struct{}

func (stubEnrich) Enrich(context.Context, source.EnrichRequest) ([]model.EnrichmentSourceRecord, error) {
	return []model.EnrichmentSourceRecord{{CompanyName: "Acme Hoist", ContactEmail: "ops@acmehoist.com"}}, nil
}

type stubLeads struct {
	mu      sync.Mutex
	created []model.Lead
}

func (s *stubLeads) Create(_ context.Context, l model.Lead) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, l)
	return "001", nil
}

func (s *stubLeads) FindByCompanyName(context.Context, string) ([]model.ExistingLead, error) {
	return nil, nil
}

func (s *stubLeads) AttachContact(context.Context, string, model.Contact) error { return nil }

func (s *stubLeads) BatchCheckExists(_ context.Context, names []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "history.db"),
			BadgerDir:  filepath.Join(t.TempDir(), "sessions"),
		},
		Workflow: config.WorkflowConfig{
			DefaultLeads:       10,
			MaxLeads:           50,
			SettleDelayMS:      10,
			ProgressWindowSecs: 30,
		},
		Loader: config.LoaderConfig{PreviewTTLSecs: 60, EnrichmentTTLSecs: 60},
		Log:    config.LogConfig{Level: "error"},
	}
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestTabFactory_RunsWorkflow(t *testing.T) {
	c := testConfig(t)
	withConfig(t, c)

	hs, err := initHistoryStore(context.Background())
	require.NoError(t, err)
	defer hs.Close() //nolint:errcheck
	require.NoError(t, hs.Migrate(context.Background()))

	sessions := persist.NewMemory()
	ls := &stubLeads{}
	factory := newTabFactory(c, tabDeps{
		Intent:   source.KeywordIntentParser{},
		Preview:  stubPreview{},
		Enrich:   stubEnrich{},
		Leads:    ls,
		History:  hs,
		Sessions: sessions,
		Metrics:  loader.NewMetrics(prometheus.NewRegistry()),
	})

	ctx := context.Background()
	tab, err := factory(ctx, "rep-1", "tab-1")
	require.NoError(t, err)
	defer tab.Close()

	assert.Equal(t, 10, tab.Workflow.DefaultLeads())

	_, err = tab.Workflow.Define(ctx, "overhead crane dealers in Texas")
	require.NoError(t, err)
	_, err = tab.Workflow.Refine(ctx, 5)
	require.NoError(t, err)
	_, err = tab.Workflow.Refine(ctx, 500)
	require.Error(t, err, "lead count above the configured max is rejected")
	s, err := tab.Workflow.Choose(ctx, []string{"p1"})
	require.NoError(t, err)
	require.Len(t, s.EnrichedResults, 1)

	view, err := tab.History.List(ctx, 0, false)
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	assert.Equal(t, "Acme Hoist", view.Records[0].CompanyName)

	res, err := tab.Workflow.Finish(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, res.Saved)
	assert.Len(t, ls.created, 1)

	// A second tab of the same user restores progress from the shared
	// durable tier.
	other, err := factory(ctx, "rep-1", "tab-2")
	require.NoError(t, err)
	defer other.Close()
	restored := other.Workflow.Restore(ctx)
	assert.Equal(t, "overhead crane dealers in Texas", restored.Query)
	assert.True(t, restored.CompletedOnce)

	// Another user sees nothing.
	stranger, err := factory(ctx, "rep-2", "tab-1")
	require.NoError(t, err)
	defer stranger.Close()
	assert.Empty(t, stranger.Workflow.Restore(ctx).Query)
}

func TestInitSessionTier_MigratesLegacy(t *testing.T) {
	c := testConfig(t)
	c.Store.LegacyPath = filepath.Join(t.TempDir(), "legacy.db")
	withConfig(t, c)

	legacy, err := persist.OpenSQLite(c.Store.LegacyPath)
	require.NoError(t, err)
	step, _ := json.Marshal(model.StepRefine)
	require.NoError(t, legacy.Put("rep-1:"+persist.KeyStep, step, 0))
	require.NoError(t, legacy.Close())

	tier, err := initSessionTier()
	require.NoError(t, err)
	defer tier.Close() //nolint:errcheck

	ctrl := openSession(tier, "rep-1")
	defer ctrl.Close()
	s := ctrl.Restore(context.Background())
	assert.Equal(t, model.StepRefine, s.Step)

	// Migrated into badger.
	data, err := tier.Get("rep-1:" + persist.KeyStep)
	require.NoError(t, err)
	assert.JSONEq(t, string(step), string(data))
}

func TestSessionReset_ClearsProgress(t *testing.T) {
	c := testConfig(t)
	withConfig(t, c)

	tier, err := initSessionTier()
	require.NoError(t, err)
	defer tier.Close() //nolint:errcheck

	store := persist.NewStore(persist.NewMemory(), persist.Prefixed(tier, "rep-1"), sessionLayout())
	require.NoError(t, store.Durable.Write(persist.KeyQuery, "forklifts"))
	require.NoError(t, store.Durable.Write(persist.KeyStep, model.StepRefine))

	ctrl := openSession(tier, "rep-1")
	assert.Equal(t, "forklifts", ctrl.Restore(context.Background()).Query)
	s := ctrl.Reset()
	ctrl.Close()
	assert.Equal(t, model.StepDefine, s.Step)

	again := openSession(tier, "rep-1")
	defer again.Close()
	restored := again.Restore(context.Background())
	assert.Empty(t, restored.Query)
	assert.Equal(t, model.StepDefine, restored.Step)
}
