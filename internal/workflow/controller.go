// Package workflow drives the four-step lead pipeline: define a search,
// refine it, choose companies from a preview and enrich and save them.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/history"
	"github.com/sells-group/lead-wizard/internal/loader"
	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/mutate"
	"github.com/sells-group/lead-wizard/internal/persist"
	"github.com/sells-group/lead-wizard/internal/reconcile"
	"github.com/sells-group/lead-wizard/internal/source"
)

// Loader categories.
const (
	CategoryPreviews   = "previews"
	CategoryEnrichment = "enrichment"
)

// HistoryLog receives the successful records of every enrichment run.
type HistoryLog interface {
	Append(ctx context.Context, records []model.HistoryRecord) error
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Intent  source.IntentParser
	Preview source.PreviewSource
	Enrich  source.EnrichmentSource
	Mutator *mutate.Mutator
	Store   *persist.Store
	History HistoryLog
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecoveryPolicy overrides DefaultRecoveryPolicy.
func WithRecoveryPolicy(p RecoveryPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithLeadLimits sets the default and maximum number of leads per search.
func WithLeadLimits(defaultLeads, maxLeads int) Option {
	return func(c *Controller) {
		if defaultLeads > 0 {
			c.defaultLeads = defaultLeads
		}
		if maxLeads > 0 {
			c.maxLeads = maxLeads
		}
	}
}

// WithLoaderTTL sets how long preview and enrichment results are reused.
func WithLoaderTTL(previews, enrichment time.Duration) Option {
	return func(c *Controller) {
		c.previewTTL = previews
		c.enrichTTL = enrichment
	}
}

// WithLoaderOptions passes options to both loaders.
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(c *Controller) { c.loaderOpts = append(c.loaderOpts, opts...) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns one tab's workflow session. Operations are serialized;
// Snapshot may run concurrently with them.
type Controller struct {
	id   string
	deps Deps

	policy       RecoveryPolicy
	defaultLeads int
	maxLeads     int
	previewTTL   time.Duration
	enrichTTL    time.Duration
	loaderOpts   []loader.Option
	now          func() time.Time

	previews   *loader.Loader[[]model.PreviewRecord]
	enrichment *loader.Loader[[]model.EnrichmentSourceRecord]
	requests   sync.Map

	op sync.Mutex

	mu          sync.Mutex
	session     model.Session
	generation  uint64
	lastForward time.Time
	recovery    *time.Timer
	closed      bool
}

// New creates a Controller for the tab id with an empty session.
func New(id string, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		id:           id,
		deps:         deps,
		policy:       DefaultRecoveryPolicy(),
		defaultLeads: 25,
		maxLeads:     100,
		previewTTL:   10 * time.Minute,
		enrichTTL:    time.Hour,
		now:          time.Now,
		session:      model.NewSession(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Mutator == nil {
		c.deps.Mutator = mutate.New(nil)
	}
	lopts := append([]loader.Option{loader.WithClock(c.now)}, c.loaderOpts...)
	c.previews = loader.New(CategoryPreviews, c.previewTTL, c.fetchPreviews, lopts...)
	c.enrichment = loader.New(CategoryEnrichment, c.enrichTTL, c.fetchEnrichment, lopts...)
	return c
}

// ID returns the tab id.
func (c *Controller) ID() string { return c.id }

// Mutator returns the mutator used by Finish.
func (c *Controller) Mutator() *mutate.Mutator { return c.deps.Mutator }

// DefaultLeads is the number of leads proposed when the session has none.
func (c *Controller) DefaultLeads() int { return c.defaultLeads }

// Snapshot returns a deep copy of the session.
func (c *Controller) Snapshot() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Close stops the recovery timer. The session stays persisted.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.recovery != nil {
		c.recovery.Stop()
	}
}

// Restore loads the session from both tiers and arms the recovery check
// when the restored step needs upstream data.
func (c *Controller) Restore(_ context.Context) model.Session {
	c.op.Lock()
	defer c.op.Unlock()

	st := c.deps.Store
	s := model.NewSession()
	if st != nil {
		s.Step = persist.Read(st.Durable, persist.KeyStep, model.FirstStep)
		s.Query = persist.Read(st.Durable, persist.KeyQuery, "")
		s.Intent = persist.Read[*model.Intent](st.Durable, persist.KeyIntent, nil)
		s.NumberOfLeads = persist.Read(st.Durable, persist.KeyNumberOfLeads, 0)
		s.CompletedOnce = persist.Read(st.Durable, persist.KeyCompletedOnce, false)
		s.PreviewResults = persist.Read[[]model.PreviewRecord](st.Ephemeral, persist.KeyPreviewResults, nil)
		s.SelectedCompanies = persist.Read[[]string](st.Ephemeral, persist.KeySelectedCompanies, nil)
		s.EnrichedResults = persist.Read[[]model.EnrichedRecord](st.Ephemeral, persist.KeyEnrichedResults, nil)
	}
	if !s.Step.Valid() {
		s.Step = model.FirstStep
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.session = s
	c.lastForward = time.Time{}
	c.scheduleRecovery()
	return c.session.Clone()
}

// Define completes step 1: it parses the query into an intent.
func (c *Controller) Define(ctx context.Context, query string) (model.Session, error) {
	c.op.Lock()
	defer c.op.Unlock()

	req := DefineRequest{Query: strings.TrimSpace(query)}
	if err := req.Validate(); err != nil {
		return c.Snapshot(), &InputError{Op: "define", Err: err}
	}
	gen, _, err := c.begin(model.StepDefine)
	if err != nil {
		return c.Snapshot(), err
	}

	intent, err := c.deps.Intent.Parse(ctx, req.Query)
	if err != nil {
		return c.Snapshot(), eris.Wrap(err, "workflow: define")
	}

	return c.complete(gen, model.StepDefine, func(s *model.Session) {
		s.Query = req.Query
		s.Intent = &intent
	})
}

// Refine completes step 2: it records the lead count and loads previews.
func (c *Controller) Refine(ctx context.Context, numberOfLeads int) (model.Session, error) {
	c.op.Lock()
	defer c.op.Unlock()

	req := RefineRequest{NumberOfLeads: numberOfLeads}
	if err := req.Validate(c.maxLeads); err != nil {
		return c.Snapshot(), &InputError{Op: "refine", Err: err}
	}
	gen, s, err := c.begin(model.StepRefine)
	if err != nil {
		return c.Snapshot(), err
	}
	if s.Intent.IsZero() {
		return c.Snapshot(), eris.Wrap(ErrNoData, "workflow: refine without intent")
	}

	previews, err := c.loadPreviews(ctx, source.RequestFromIntent(*s.Intent, req.NumberOfLeads), false)
	if err != nil {
		return c.Snapshot(), err
	}

	return c.complete(gen, model.StepRefine, func(s *model.Session) {
		s.NumberOfLeads = req.NumberOfLeads
		s.PreviewResults = previews
	})
}

// Choose completes step 3: it records the selection, enriches it and
// reconciles the results. Successful records are appended to history.
func (c *Controller) Choose(ctx context.Context, ids []string) (model.Session, error) {
	c.op.Lock()
	defer c.op.Unlock()

	req := ChooseRequest{CompanyIDs: ids}
	if err := req.Validate(); err != nil {
		return c.Snapshot(), &InputError{Op: "choose", Err: err}
	}
	gen, s, err := c.begin(model.StepChoose)
	if err != nil {
		return c.Snapshot(), err
	}
	if len(s.PreviewResults) == 0 {
		return c.Snapshot(), eris.Wrap(ErrNoData, "workflow: choose without previews")
	}

	s.SelectedCompanies = knownIDs(s.PreviewResults, req.CompanyIDs)
	if len(s.SelectedCompanies) == 0 {
		return c.Snapshot(), &InputError{Op: "choose", Err: eris.New("no selected id matches a preview record")}
	}
	chosen := s.SelectedPreviews()

	enriched, err := c.enrich(ctx, chosen, false)
	if err != nil {
		return c.Snapshot(), err
	}

	out, err := c.complete(gen, model.StepChoose, func(sess *model.Session) {
		sess.SelectedCompanies = s.SelectedCompanies
		sess.EnrichedResults = enriched
	})
	if err != nil {
		return out, err
	}
	c.appendHistory(ctx, enriched)
	return out, nil
}

// FinishResult is the outcome of saving enriched records.
type FinishResult struct {
	Session model.Session `json:"session"`
	Saved   []string      `json:"saved"`
	Failed  []string      `json:"failed"`
}

// Finish saves the chosen successful enriched records through the mutator.
// A *mutate.PartialBatchError is returned alongside a populated result.
func (c *Controller) Finish(ctx context.Context, ids []string) (FinishResult, error) {
	c.op.Lock()
	defer c.op.Unlock()

	req := FinishRequest{RecordIDs: ids}
	if err := req.Validate(); err != nil {
		return FinishResult{Session: c.Snapshot()}, &InputError{Op: "finish", Err: err}
	}
	gen, s, err := c.begin(model.StepEnrich)
	if err != nil {
		return FinishResult{Session: c.Snapshot()}, err
	}

	want := make(map[string]bool, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		want[id] = true
	}
	var items []mutate.Item
	for _, r := range s.EnrichedResults {
		if want[r.ID] && r.Status == model.StatusSuccess && !c.deps.Mutator.IsSaved(r.ID) {
			items = append(items, mutate.Item{Key: r.ID, Lead: model.LeadFromEnriched(r)})
		}
	}
	if len(items) == 0 {
		return FinishResult{Session: c.Snapshot()}, &InputError{
			Op:  "finish",
			Err: eris.New("no unsaved successful record among the given ids"),
		}
	}

	res, saveErr := c.deps.Mutator.Save(ctx, items)
	var total *mutate.TotalBatchError
	if !errors.As(saveErr, &total) {
		c.mu.Lock()
		if gen == c.generation {
			c.session.CompletedOnce = true
			c.persistLocked()
		}
		c.mu.Unlock()
	}

	out := FinishResult{Session: c.Snapshot(), Failed: res.Failed}
	for _, sv := range res.Saved {
		out.Saved = append(out.Saved, sv.Key)
	}
	return out, saveErr
}

// SaveLead writes a single lead outside the step flow. It waits for any
// running step operation, including Finish.
func (c *Controller) SaveLead(ctx context.Context, lead model.Lead) (mutate.Result, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if lead.CompanyName == "" {
		return mutate.Result{}, &InputError{Op: "save", Err: eris.New("company name is required")}
	}
	key := "manual:" + reconcile.Canonicalize(lead.CompanyName)
	return c.deps.Mutator.Save(ctx, []mutate.Item{{Key: key, Lead: lead}})
}

// Refresh reloads the current step's external data bypassing caches and
// the in-flight guard. Step 1 and 2 have nothing to refresh.
func (c *Controller) Refresh(ctx context.Context) (model.Session, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	gen, s := c.generation, c.session.Clone()
	c.mu.Unlock()

	switch s.Step {
	case model.StepChoose:
		if s.Intent.IsZero() {
			return s, eris.Wrap(ErrNoData, "workflow: refresh without intent")
		}
		n := s.NumberOfLeads
		if n <= 0 {
			n = c.defaultLeads
		}
		previews, err := c.loadPreviews(ctx, source.RequestFromIntent(*s.Intent, n), true)
		if err != nil {
			return c.Snapshot(), err
		}
		return c.replace(gen, func(sess *model.Session) {
			sess.PreviewResults = previews
			sess.SelectedCompanies = knownIDs(previews, sess.SelectedCompanies)
			sess.EnrichedResults = nil
		})
	case model.StepEnrich:
		chosen := s.SelectedPreviews()
		if len(chosen) == 0 {
			return s, eris.Wrap(ErrNoData, "workflow: refresh without selection")
		}
		enriched, err := c.enrich(ctx, chosen, true)
		if err != nil {
			return c.Snapshot(), err
		}
		return c.replace(gen, func(sess *model.Session) {
			sess.EnrichedResults = enriched
		})
	default:
		return s, nil
	}
}

// Back moves to the previous step without clearing anything.
func (c *Controller) Back() model.Session {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Step > model.FirstStep {
		c.session.Step--
		c.persistLocked()
		c.scheduleRecovery()
	}
	return c.session.Clone()
}

// Reset returns to step 1 and clears the session, CompletedOnce and the
// loader caches.
func (c *Controller) Reset() model.Session {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return c.session.Clone()
}

func (c *Controller) resetLocked() {
	c.generation++
	c.session = model.NewSession()
	c.lastForward = time.Time{}
	if c.recovery != nil {
		c.recovery.Stop()
	}
	c.previews.Purge()
	c.enrichment.Purge()
	c.deps.Mutator.Deselect(c.deps.Mutator.Selected()...)
	c.persistLocked()
}

// begin checks that the session is on step n and returns the generation and
// a copy of the session. Going back to an earlier step takes Back first.
func (c *Controller) begin(n model.Step) (uint64, model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Step != n {
		return 0, model.Session{}, eris.Wrapf(ErrStepOrder, "workflow: complete %s from %s", n, c.session.Step)
	}
	return c.generation, c.session.Clone(), nil
}

// complete applies the payload for step n, clears everything downstream of
// n and advances to n+1.
func (c *Controller) complete(gen uint64, n model.Step, apply func(*model.Session)) (model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return c.session.Clone(), eris.Wrap(ErrStepOrder, "workflow: session was reset")
	}

	for s := n + 1; s <= model.LastStep; s++ {
		clearStep(&c.session, s)
	}
	apply(&c.session)
	if n < model.LastStep {
		c.session.Step = n + 1
	}
	c.lastForward = c.now()
	c.persistLocked()
	c.scheduleRecovery()

	zap.L().Debug("workflow: step completed",
		zap.String("tab", c.id),
		zap.Stringer("completed", n),
		zap.Stringer("step", c.session.Step),
	)
	return c.session.Clone(), nil
}

// replace swaps data without changing the step.
func (c *Controller) replace(gen uint64, apply func(*model.Session)) (model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return c.session.Clone(), eris.Wrap(ErrStepOrder, "workflow: session was reset")
	}
	apply(&c.session)
	c.persistLocked()
	return c.session.Clone(), nil
}

// clearStep drops the data owned by step s.
func clearStep(s *model.Session, step model.Step) {
	switch step {
	case model.StepDefine:
		s.Query = ""
		s.Intent = nil
	case model.StepRefine:
		// numberOfLeads is a form setting and survives as the default.
	case model.StepChoose:
		s.PreviewResults = nil
		s.SelectedCompanies = nil
	case model.StepEnrich:
		s.EnrichedResults = nil
	}
}

// persistLocked writes the session to both tiers. Failures are logged;
// the tiers are caches and the in-memory session stays authoritative.
func (c *Controller) persistLocked() {
	st := c.deps.Store
	if st == nil {
		return
	}
	s := c.session
	writeKey(st.Durable, persist.KeyStep, s.Step)
	writeKey(st.Durable, persist.KeyQuery, s.Query)
	writeKey(st.Durable, persist.KeyIntent, s.Intent)
	writeKey(st.Durable, persist.KeyNumberOfLeads, s.NumberOfLeads)
	writeKey(st.Durable, persist.KeyCompletedOnce, s.CompletedOnce)
	writeKey(st.Ephemeral, persist.KeyPreviewResults, s.PreviewResults)
	writeKey(st.Ephemeral, persist.KeySelectedCompanies, s.SelectedCompanies)
	writeKey(st.Ephemeral, persist.KeyEnrichedResults, s.EnrichedResults)
}

func writeKey(b *persist.Bucket, key string, v any) {
	if err := b.Write(key, v); err != nil {
		zap.L().Warn("workflow: persist failed", zap.String("key", key), zap.Error(err))
	}
}

// loadPreviews runs the preview loader. A skipped in-flight load falls back
// to the previous value when there is one.
func (c *Controller) loadPreviews(ctx context.Context, req source.PreviewRequest, force bool) ([]model.PreviewRecord, error) {
	key, err := requestKey(req)
	if err != nil {
		return nil, err
	}
	c.requests.Store(key, req)
	res, err := c.previews.Load(ctx, key, force)
	if err != nil && !(errors.Is(err, loader.ErrInFlight) && res.HasValue) {
		return nil, eris.Wrap(err, "workflow: load previews")
	}
	return slices.Clone(res.Value), nil
}

func (c *Controller) fetchPreviews(ctx context.Context, key string) ([]model.PreviewRecord, error) {
	v, ok := c.requests.Load(key)
	if !ok {
		return nil, eris.Errorf("workflow: unknown preview request %s", key)
	}
	return c.deps.Preview.Preview(ctx, v.(source.PreviewRequest))
}

// enrich loads enrichment for the chosen previews and reconciles it.
func (c *Controller) enrich(ctx context.Context, chosen []model.PreviewRecord, force bool) ([]model.EnrichedRecord, error) {
	req := source.EnrichRequest{Companies: chosen}
	for _, p := range chosen {
		req.CompanyIDs = append(req.CompanyIDs, p.ID)
	}
	key, err := requestKey(req)
	if err != nil {
		return nil, err
	}
	c.requests.Store(key, req)
	res, err := c.enrichment.Load(ctx, key, force)
	if err != nil && !(errors.Is(err, loader.ErrInFlight) && res.HasValue) {
		return nil, eris.Wrap(err, "workflow: load enrichment")
	}

	enriched := reconcile.Reconcile(chosen, res.Value)
	sum := reconcile.Summarize(enriched)
	zap.L().Info("workflow: enrichment reconciled",
		zap.String("tab", c.id),
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	return enriched, nil
}

func (c *Controller) fetchEnrichment(ctx context.Context, key string) ([]model.EnrichmentSourceRecord, error) {
	v, ok := c.requests.Load(key)
	if !ok {
		return nil, eris.Errorf("workflow: unknown enrichment request %s", key)
	}
	return c.deps.Enrich.Enrich(ctx, v.(source.EnrichRequest))
}

func (c *Controller) appendHistory(ctx context.Context, enriched []model.EnrichedRecord) {
	if c.deps.History == nil {
		return
	}
	recs := history.FromEnriched(enriched)
	if len(recs) == 0 {
		return
	}
	if err := c.deps.History.Append(ctx, recs); err != nil {
		zap.L().Warn("workflow: history append failed", zap.String("tab", c.id), zap.Error(err))
	}
}

// requestKey hashes a request so equal requests share a cache entry.
func requestKey(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "workflow: encode request key")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:12]), nil
}

// knownIDs keeps the ids present in previews, normalized.
func knownIDs(previews []model.PreviewRecord, ids []string) []string {
	known := make(map[string]bool, len(previews))
	for _, p := range previews {
		known[p.ID] = true
	}
	var out []string
	for _, id := range model.NormalizeSelection(ids) {
		if known[id] {
			out = append(out, id)
		}
	}
	return out
}
