package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/api"
	"github.com/sells-group/lead-wizard/internal/config"
	"github.com/sells-group/lead-wizard/internal/history"
	"github.com/sells-group/lead-wizard/internal/insight"
	"github.com/sells-group/lead-wizard/internal/leads"
	"github.com/sells-group/lead-wizard/internal/loader"
	"github.com/sells-group/lead-wizard/internal/mutate"
	"github.com/sells-group/lead-wizard/internal/persist"
	"github.com/sells-group/lead-wizard/internal/resilience"
	"github.com/sells-group/lead-wizard/internal/source"
	"github.com/sells-group/lead-wizard/internal/workflow"
	anthropicpkg "github.com/sells-group/lead-wizard/pkg/anthropic"
	"github.com/sells-group/lead-wizard/pkg/google"
	"github.com/sells-group/lead-wizard/pkg/leadgen"
)

// tabDeps are the process-wide collaborators shared by every tab.
type tabDeps struct {
	Intent   source.IntentParser
	Preview  source.PreviewSource
	Enrich   source.EnrichmentSource
	Leads    leads.Store
	History  history.Store
	Sessions persist.Tier
	Analysis mutate.AnalysisFunc
	Metrics  *loader.Metrics
}

// newTabFactory builds per-tab state: a private ephemeral tier, the user's
// slice of the durable tier, and a controller plus history view over them.
func newTabFactory(c *config.Config, d tabDeps) api.TabFactory {
	layout := persist.LayoutFromDays(c.Workflow.ProgressDays, c.Workflow.FilterDays, c.Workflow.PreferenceDays)

	var lopts []loader.Option
	if c.Loader.ErrorBackoffMS > 0 {
		lopts = append(lopts, loader.WithErrorBackoff(time.Duration(c.Loader.ErrorBackoffMS)*time.Millisecond))
	}
	if d.Metrics != nil {
		lopts = append(lopts, loader.WithMetrics(d.Metrics))
	}

	mopts := []mutate.Option{mutate.WithRetainFailedMarks(c.Mutate.RetainFailedMarks)}
	if d.Analysis != nil {
		mopts = append(mopts, mutate.WithAnalysis(d.Analysis, config.TTL(c.Mutate.AnalysisTimeoutSecs)))
	}

	return func(_ context.Context, userID, tabID string) (*api.Tab, error) {
		store := persist.NewStore(persist.NewMemory(), persist.Prefixed(d.Sessions, userID), layout)

		hist := history.NewService(d.History, d.Leads,
			history.WithTTL(config.TTL(c.Loader.HistoryTTLSecs)),
			history.WithLoaderOptions(lopts...),
			history.WithMutatorOptions(mopts...),
			history.WithPreferences(store),
		)

		ctrl := workflow.New(tabID, workflow.Deps{
			Intent:  d.Intent,
			Preview: d.Preview,
			Enrich:  d.Enrich,
			Mutator: mutate.New(d.Leads, mopts...),
			Store:   store,
			History: hist,
		},
			workflow.WithRecoveryPolicy(workflow.RecoveryPolicy{
				SettleDelay:    c.Workflow.SettleDelay(),
				ProgressWindow: c.Workflow.ProgressWindow(),
			}),
			workflow.WithLeadLimits(c.Workflow.DefaultLeads, c.Workflow.MaxLeads),
			workflow.WithLoaderTTL(config.TTL(c.Loader.PreviewTTLSecs), config.TTL(c.Loader.EnrichmentTTLSecs)),
			workflow.WithLoaderOptions(lopts...),
		)
		return &api.Tab{Workflow: ctrl, History: hist}, nil
	}
}

// appEnv holds everything the serve command needs. Callers should defer
// env.Close().
type appEnv struct {
	History  history.Store
	Sessions *sessionTier
	Factory  api.TabFactory
}

// Close releases the stores.
func (e *appEnv) Close() {
	if e.Sessions != nil {
		if err := e.Sessions.Close(); err != nil {
			zap.L().Warn("close session store", zap.Error(err))
		}
	}
	if e.History != nil {
		_ = e.History.Close()
	}
}

// initApp validates config, opens the stores and builds every client.
func initApp(ctx context.Context, reg prometheus.Registerer) (*appEnv, error) {
	if err := cfg.Validate("serve"); err != nil {
		return nil, err
	}

	hs, err := initHistoryStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := hs.Migrate(ctx); err != nil {
		_ = hs.Close()
		return nil, eris.Wrap(err, "migrate history store")
	}
	env := &appEnv{History: hs}

	sessions, err := initSessionTier()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Sessions = sessions

	sfClient, err := initSalesforce()
	if err != nil {
		env.Close()
		return nil, err
	}
	leadStore := leads.NewSalesforceStore(sfClient, leads.WithConcurrency(cfg.Salesforce.Concurrency))

	retry := resilience.DefaultRetryConfig()
	if cfg.LeadGen.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.LeadGen.RetryAttempts
	}
	leadGenClient := leadgen.NewClient(cfg.LeadGen.BaseURL, cfg.LeadGen.Key,
		leadgen.WithHTTPClient(&http.Client{Timeout: config.TTL(cfg.LeadGen.TimeoutSecs)}),
		leadgen.WithRetry(retry),
	)

	deps := tabDeps{
		Intent:   source.KeywordIntentParser{},
		Enrich:   source.NewLeadGenEnrichment(leadGenClient),
		Leads:    leadStore,
		History:  hs,
		Sessions: sessions,
		Metrics:  loader.NewMetrics(reg),
	}

	if cfg.Anthropic.Key != "" {
		ai := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
		deps.Intent = source.FallbackParser{
			Primary:  source.NewLLMIntentParser(ai, cfg.Anthropic.IntentModel),
			Fallback: source.KeywordIntentParser{},
		}
		if cfg.Mutate.AnalysisEnabled {
			deps.Analysis = insight.NewAnalyzer(ai, sfClient, cfg.Anthropic.InsightModel).Func()
			zap.L().Info("lead insight analysis enabled")
		}
	} else {
		zap.L().Warn("LEADWIZARD_ANTHROPIC_KEY not set, using keyword intent parsing")
	}

	switch cfg.Workflow.PreviewSource {
	case "google":
		g := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
		deps.Preview = source.NewPlacesPreview(g, retry)
		zap.L().Info("previews served by google places")
	default:
		deps.Preview = source.NewLeadGenPreview(leadGenClient)
	}

	env.Factory = newTabFactory(cfg, deps)
	return env, nil
}
