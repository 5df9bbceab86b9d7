package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/db"
	"github.com/sells-group/lead-wizard/internal/history"
	"github.com/sells-group/lead-wizard/internal/persist"
	sfpkg "github.com/sells-group/lead-wizard/pkg/salesforce"
)

func initHistoryStore(ctx context.Context) (history.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return history.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return history.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func sessionLayout() persist.Layout {
	return persist.LayoutFromDays(cfg.Workflow.ProgressDays, cfg.Workflow.FilterDays, cfg.Workflow.PreferenceDays)
}

// sessionTier is the durable tier shared by every user, plus its closer.
type sessionTier struct {
	persist.Tier
	closers []func() error
}

func (s *sessionTier) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// initSessionTier opens the badger tier and, when a legacy path is set,
// layers migrate-on-read from the old SQLite session store on top.
func initSessionTier() (*sessionTier, error) {
	current, err := persist.OpenBadger(cfg.Store.BadgerDir)
	if err != nil {
		return nil, err
	}
	st := &sessionTier{Tier: current, closers: []func() error{current.Close}}

	if cfg.Store.LegacyPath == "" {
		return st, nil
	}
	legacy, err := persist.OpenSQLite(cfg.Store.LegacyPath)
	if err != nil {
		_ = current.Close()
		return nil, eris.Wrap(err, "open legacy session store")
	}
	st.Tier = persist.NewVersioned(current, legacy, sessionLayout().Expiry)
	st.closers = append(st.closers, legacy.Close)
	zap.L().Info("legacy session store enabled", zap.String("path", cfg.Store.LegacyPath))
	return st, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (LEADWIZARD_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}
