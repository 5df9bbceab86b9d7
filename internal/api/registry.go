package api

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/history"
	"github.com/sells-group/lead-wizard/internal/workflow"
)

// Tab is the server-side state of one browser tab.
type Tab struct {
	Workflow *workflow.Controller
	History  *history.Service
}

// Close stops the tab's timers and waits for its background analysis.
func (t *Tab) Close() {
	t.Workflow.Close()
	t.Workflow.Mutator().Wait()
	t.History.Mutator().Wait()
}

// TabFactory builds the state for a new tab of a user.
type TabFactory func(ctx context.Context, userID, tabID string) (*Tab, error)

// Registry hands out one Tab per (user, tab) pair, creating and restoring
// it on first use.
type Registry struct {
	factory TabFactory
	idle    time.Duration
	now     func() time.Time

	mu   sync.Mutex
	tabs map[string]*entry
}

type entry struct {
	tab      *Tab
	lastUsed time.Time
}

// NewRegistry creates a Registry. Tabs unused for idle are dropped by Sweep;
// zero keeps them forever.
func NewRegistry(factory TabFactory, idle time.Duration) *Registry {
	return &Registry{
		factory: factory,
		idle:    idle,
		now:     time.Now,
		tabs:    make(map[string]*entry),
	}
}

func tabKey(userID, tabID string) string {
	return userID + "\x00" + tabID
}

// Get returns the tab, creating and restoring it when needed.
func (r *Registry) Get(ctx context.Context, userID, tabID string) (*Tab, error) {
	key := tabKey(userID, tabID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tabs[key]; ok {
		e.lastUsed = r.now()
		return e.tab, nil
	}

	tab, err := r.factory(ctx, userID, tabID)
	if err != nil {
		return nil, eris.Wrapf(err, "api: create tab %s", tabID)
	}
	s := tab.Workflow.Restore(ctx)
	zap.L().Debug("api: tab restored",
		zap.String("user", userID),
		zap.String("tab", tabID),
		zap.Stringer("step", s.Step),
	)
	r.tabs[key] = &entry{tab: tab, lastUsed: r.now()}
	return tab, nil
}

// Sweep closes tabs idle for longer than the idle timeout and returns how
// many were dropped.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	r.mu.Lock()
	var stale []*Tab
	for k, e := range r.tabs {
		if r.now().Sub(e.lastUsed) > r.idle {
			stale = append(stale, e.tab)
			delete(r.tabs, k)
		}
	}
	r.mu.Unlock()

	for _, t := range stale {
		t.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				zap.L().Info("api: idle tabs dropped", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// Close closes every tab.
func (r *Registry) Close() {
	r.mu.Lock()
	tabs := r.tabs
	r.tabs = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range tabs {
		e.tab.Close()
	}
}
