// Package mutate saves leads optimistically: records are marked saved before
// the CRM confirms, writes run one at a time, and the marks are rolled back
// only when the whole batch fails.
package mutate

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/leads"
	"github.com/sells-group/lead-wizard/internal/model"
)

// DefaultAnalysisTimeout bounds one detached analysis task.
const DefaultAnalysisTimeout = 2 * time.Minute

// Item is one record to save. Key identifies it in the selection and saved
// sets (a preview ID or a history ID).
type Item struct {
	Key  string
	Lead model.Lead
}

// Saved describes a record the CRM accepted.
type Saved struct {
	Key    string
	LeadID string
	// Attached is true when the contact went onto an existing lead.
	Attached bool
	Lead     model.Lead
}

// Result is the outcome of a Save.
type Result struct {
	Saved  []Saved
	Failed []string
}

// AnalysisFunc derives follow-up analysis for a saved lead. It runs detached
// from the request that saved the lead.
type AnalysisFunc func(ctx context.Context, saved Saved) error

// Option configures a Mutator.
type Option func(*Mutator)

// WithAnalysis runs fn once per saved record, bounded by timeout.
func WithAnalysis(fn AnalysisFunc, timeout time.Duration) Option {
	return func(m *Mutator) {
		m.analyze = fn
		if timeout > 0 {
			m.analysisTimeout = timeout
		}
	}
}

// WithRetainFailedMarks keeps the optimistic mark on failed records of a
// partially successful batch instead of reverting them.
func WithRetainFailedMarks(retain bool) Option {
	return func(m *Mutator) {
		m.retainFailedMarks = retain
	}
}

// Mutator owns the selection and saved sets of one view.
type Mutator struct {
	store             leads.Store
	analyze           AnalysisFunc
	analysisTimeout   time.Duration
	retainFailedMarks bool

	mu       sync.Mutex
	saved    map[string]bool
	selected map[string]bool

	tasks sync.WaitGroup
}

// New creates a Mutator writing to store.
func New(store leads.Store, opts ...Option) *Mutator {
	m := &Mutator{
		store:           store,
		analysisTimeout: DefaultAnalysisTimeout,
		saved:           make(map[string]bool),
		selected:        make(map[string]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Select adds keys to the selection.
func (m *Mutator) Select(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			m.selected[k] = true
		}
	}
}

// Deselect removes keys from the selection.
func (m *Mutator) Deselect(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.selected, k)
	}
}

// Selected returns the selection, sorted.
func (m *Mutator) Selected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.selected)
}

// Saved returns the keys marked saved, sorted.
func (m *Mutator) Saved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.saved)
}

// IsSaved reports whether key is marked saved.
func (m *Mutator) IsSaved(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[key]
}

// MarkSaved marks keys saved without writing, e.g. records the CRM already has.
func (m *Mutator) MarkSaved(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			m.saved[k] = true
		}
	}
}

// Wait blocks until every detached analysis task has finished.
func (m *Mutator) Wait() {
	m.tasks.Wait()
}

// Save writes items to the lead store.
//
// All items are marked saved and the selection is cleared before the first
// write. Writes run sequentially so each duplicate check sees the writes
// before it. A duplicate lead falls back to attaching the contact to the
// first existing match; a duplicate contact there counts as saved.
//
// When nothing succeeds the batch's own marks are rolled back and a
// *TotalBatchError is returned. When some writes fail a *PartialBatchError
// is returned alongside the result. Analysis tasks for saved records are
// started afterwards and never awaited.
func (m *Mutator) Save(ctx context.Context, items []Item) (Result, error) {
	if len(items) == 0 {
		return Result{}, nil
	}

	m.mu.Lock()
	before := make(map[string]bool, len(m.saved))
	for k := range m.saved {
		before[k] = true
	}
	for _, it := range items {
		m.saved[it.Key] = true
	}
	m.selected = make(map[string]bool)
	m.mu.Unlock()

	var res Result
	var lastErr error
	for _, it := range items {
		saved, err := m.write(ctx, it)
		if err != nil {
			lastErr = err
			res.Failed = append(res.Failed, it.Key)
			zap.L().Warn("mutate: save failed",
				zap.String("key", it.Key),
				zap.String("company", it.Lead.CompanyName),
				zap.Error(err),
			)
			continue
		}
		res.Saved = append(res.Saved, saved)
	}

	if len(res.Saved) == 0 {
		m.unmark(res.Failed, before)
		return res, &TotalBatchError{Failed: len(res.Failed), Last: lastErr}
	}

	if len(res.Failed) > 0 && !m.retainFailedMarks {
		m.unmark(res.Failed, before)
	}

	for _, s := range res.Saved {
		m.spawnAnalysis(ctx, s)
	}

	zap.L().Info("mutate: batch saved",
		zap.Int("saved", len(res.Saved)),
		zap.Int("failed", len(res.Failed)),
	)

	if len(res.Failed) > 0 {
		return res, &PartialBatchError{
			Saved:      len(res.Saved),
			Failed:     len(res.Failed),
			FailedKeys: res.Failed,
		}
	}
	return res, nil
}

// unmark drops the optimistic marks of keys that were not saved before the
// batch. Marks set by other batches in the meantime are left alone.
func (m *Mutator) unmark(keys []string, before map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if !before[k] {
			delete(m.saved, k)
		}
	}
}

// write creates one lead, taking the attach-to-existing path on duplicates.
func (m *Mutator) write(ctx context.Context, it Item) (Saved, error) {
	id, err := m.store.Create(ctx, it.Lead)
	if err == nil {
		return Saved{Key: it.Key, LeadID: id, Lead: it.Lead}, nil
	}
	if !leads.IsDuplicate(err) {
		return Saved{}, err
	}

	existing, ferr := m.store.FindByCompanyName(ctx, it.Lead.CompanyName)
	if ferr != nil {
		return Saved{}, eris.Wrap(ferr, "mutate: find existing lead")
	}
	if len(existing) == 0 {
		return Saved{}, eris.Wrapf(err, "mutate: duplicate %q with no existing match", it.Lead.CompanyName)
	}

	target := existing[0]
	if aerr := m.store.AttachContact(ctx, target.ID, it.Lead.Contact); aerr != nil && !leads.IsDuplicate(aerr) {
		return Saved{}, eris.Wrap(aerr, "mutate: attach contact")
	}
	return Saved{Key: it.Key, LeadID: target.ID, Attached: true, Lead: it.Lead}, nil
}

// spawnAnalysis starts a single-attempt analysis task that outlives the
// request. Errors and panics are logged and swallowed.
func (m *Mutator) spawnAnalysis(ctx context.Context, s Saved) {
	if m.analyze == nil {
		return
	}
	detached := context.WithoutCancel(ctx)

	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("mutate: analysis panicked",
					zap.String("lead_id", s.LeadID),
					zap.String("panic", fmt.Sprint(r)),
				)
			}
		}()

		tctx, cancel := context.WithTimeout(detached, m.analysisTimeout)
		defer cancel()

		if err := m.analyze(tctx, s); err != nil {
			zap.L().Warn("mutate: analysis failed",
				zap.String("lead_id", s.LeadID),
				zap.String("company", s.Lead.CompanyName),
				zap.Error(err),
			)
		}
	}()
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
