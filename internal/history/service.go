package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-wizard/internal/leads"
	"github.com/sells-group/lead-wizard/internal/loader"
	"github.com/sells-group/lead-wizard/internal/model"
	"github.com/sells-group/lead-wizard/internal/mutate"
	"github.com/sells-group/lead-wizard/internal/persist"
)

// Category is the loader category for history pages.
const Category = "history"

// View is one page of the history log as shown to a client.
type View struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Records  []model.HistoryRecord `json:"records"`
	HasMore  bool                  `json:"has_more"`
	Selected []string              `json:"selected"`
	Stale    bool                  `json:"stale,omitempty"`
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	ttl        time.Duration
	loaderOpts []loader.Option
	mutateOpts []mutate.Option
	prefs      *persist.Store
}

// WithTTL sets how long a loaded page is reused before the next List refetches.
func WithTTL(d time.Duration) ServiceOption {
	return func(o *serviceOptions) { o.ttl = d }
}

// WithLoaderOptions passes options to the page loader.
func WithLoaderOptions(opts ...loader.Option) ServiceOption {
	return func(o *serviceOptions) { o.loaderOpts = append(o.loaderOpts, opts...) }
}

// WithMutatorOptions passes options to the save mutator.
func WithMutatorOptions(opts ...mutate.Option) ServiceOption {
	return func(o *serviceOptions) { o.mutateOpts = append(o.mutateOpts, opts...) }
}

// WithPreferences reads page size and date range from a client's persisted store.
func WithPreferences(s *persist.Store) ServiceOption {
	return func(o *serviceOptions) { o.prefs = s }
}

// Service is one client's view of the history log.
type Service struct {
	store   Store
	leads   leads.Store
	prefs   *persist.Store
	pages   *loader.Loader[Page]
	mutator *mutate.Mutator

	// saving serializes SaveSelected.
	saving sync.Mutex

	mu    sync.Mutex
	known map[string]model.HistoryRecord
}

// NewService builds a Service over a history store and a lead store.
func NewService(store Store, leadStore leads.Store, opts ...ServiceOption) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{
		store:   store,
		leads:   leadStore,
		prefs:   o.prefs,
		mutator: mutate.New(leadStore, o.mutateOpts...),
		known:   make(map[string]model.HistoryRecord),
	}
	s.pages = loader.New(Category, o.ttl, s.fetch, o.loaderOpts...)
	return s
}

// Mutator exposes the service's save mutator.
func (s *Service) Mutator() *mutate.Mutator { return s.mutator }

// PageSize returns the persisted page size, or DefaultPageSize.
func (s *Service) PageSize() int {
	if s.prefs == nil {
		return DefaultPageSize
	}
	p := persist.Read(s.prefs.Durable, persist.KeyPreferences, persist.Preferences{})
	return clampLimit(p.HistoryPageSize)
}

// SetPageSize persists the page size preference.
func (s *Service) SetPageSize(n int) error {
	if s.prefs == nil {
		return nil
	}
	p := persist.Read(s.prefs.Durable, persist.KeyPreferences, persist.Preferences{})
	p.HistoryPageSize = clampLimit(n)
	return s.prefs.Durable.Write(persist.KeyPreferences, p)
}

// DateRange returns the persisted history filter.
func (s *Service) DateRange() persist.DateRange {
	if s.prefs == nil {
		return persist.DateRange{}
	}
	return persist.Read(s.prefs.Durable, persist.KeyHistoryDateRange, persist.DateRange{})
}

// SetDateRange persists the history filter.
func (s *Service) SetDateRange(r persist.DateRange) error {
	if s.prefs == nil {
		return nil
	}
	return s.prefs.Durable.Write(persist.KeyHistoryDateRange, r)
}

// List loads a zero-based page. When another load of the same page is in
// flight the previous value is returned with Stale set.
func (s *Service) List(ctx context.Context, page int, force bool) (View, error) {
	page = max(page, 0)
	size := s.PageSize()

	res, err := s.pages.Load(ctx, pageKey(size, page*size), force)
	stale := false
	if err != nil {
		if !errors.Is(err, loader.ErrInFlight) && !res.HasValue {
			return View{}, eris.Wrap(err, "history: list")
		}
		if !errors.Is(err, loader.ErrInFlight) {
			zap.L().Warn("history: serving stale page", zap.Int("page", page), zap.Error(err))
		}
		stale = true
	}

	rng := s.DateRange()
	var recs []model.HistoryRecord
	for _, r := range res.Value.Records {
		if !rng.Contains(r.CreatedAt) {
			continue
		}
		r.AlreadySaved = r.AlreadySaved || s.mutator.IsSaved(r.ID)
		recs = append(recs, r)
	}

	return View{
		Page:     page,
		PageSize: size,
		Records:  recs,
		HasMore:  res.Value.HasMore,
		Selected: s.mutator.Selected(),
		Stale:    stale,
	}, nil
}

// fetch reads one page and derives AlreadySaved from the lead store.
func (s *Service) fetch(ctx context.Context, key string) (Page, error) {
	limit, offset, err := parsePageKey(key)
	if err != nil {
		return Page{}, err
	}
	p, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return Page{}, err
	}
	if len(p.Records) == 0 {
		return p, nil
	}

	names := make([]string, len(p.Records))
	for i, r := range p.Records {
		names[i] = r.CompanyName
	}
	exists, err := s.leads.BatchCheckExists(ctx, names)
	if err != nil {
		return Page{}, eris.Wrap(err, "history: check existing leads")
	}

	var saved []string
	s.mu.Lock()
	for i := range p.Records {
		p.Records[i].AlreadySaved = exists[p.Records[i].CompanyName]
		if p.Records[i].AlreadySaved {
			saved = append(saved, p.Records[i].ID)
		}
		s.known[p.Records[i].ID] = p.Records[i]
	}
	s.mu.Unlock()
	s.mutator.MarkSaved(saved...)
	return p, nil
}

// Select marks history rows for saving. Unknown or already saved rows are ignored.
func (s *Service) Select(ids ...string) {
	s.mu.Lock()
	var ok []string
	for _, id := range ids {
		if _, known := s.known[id]; known && !s.mutator.IsSaved(id) {
			ok = append(ok, id)
		}
	}
	s.mu.Unlock()
	s.mutator.Select(ok...)
}

// Deselect unmarks history rows.
func (s *Service) Deselect(ids ...string) {
	s.mutator.Deselect(ids...)
}

// SaveSelected writes the selected rows to the lead store. Cached pages are
// dropped so the next List recomputes AlreadySaved. Concurrent calls run
// one batch at a time.
func (s *Service) SaveSelected(ctx context.Context) (mutate.Result, error) {
	s.saving.Lock()
	defer s.saving.Unlock()

	selected := s.mutator.Selected()
	if len(selected) == 0 {
		return mutate.Result{}, nil
	}

	s.mu.Lock()
	items := make([]mutate.Item, 0, len(selected))
	for _, id := range selected {
		if r, ok := s.known[id]; ok {
			items = append(items, mutate.Item{Key: id, Lead: model.LeadFromHistory(r)})
		}
	}
	s.mu.Unlock()

	res, err := s.mutator.Save(ctx, items)
	s.pages.Purge()
	return res, err
}

// Append adds records to the log and drops cached pages.
func (s *Service) Append(ctx context.Context, records []model.HistoryRecord) error {
	if err := s.store.Append(ctx, records); err != nil {
		return eris.Wrap(err, "history: append")
	}
	s.pages.Purge()
	return nil
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("%d:%d", limit, offset)
}

func parsePageKey(key string) (int, int, error) {
	l, o, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, eris.Errorf("history: bad page key %q", key)
	}
	limit, err := strconv.Atoi(l)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "history: bad page key %q", key)
	}
	offset, err := strconv.Atoi(o)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "history: bad page key %q", key)
	}
	return limit, offset, nil
}
