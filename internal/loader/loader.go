// Package loader wraps external fetches with an in-flight guard, a per
// category time-to-live and a short error backoff.
package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrInFlight is returned when a non-forced load finds a call outstanding.
var ErrInFlight = eris.New("loader: load already in flight")

// DefaultErrorBackoff suppresses silent retries after a failure.
const DefaultErrorBackoff = 5 * time.Second

// FetchFunc performs the real network call for key.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Result is what a Load observed.
type Result[T any] struct {
	Value     T
	HasValue  bool
	FetchedAt time.Time
	// Cached is true when no fetch was made for this call.
	Cached bool
}

type entry[T any] struct {
	mu        sync.Mutex
	value     T
	hasValue  bool
	fetchedAt time.Time
	err       error
	erredAt   time.Time
}

func (e *entry[T]) result(cached bool) Result[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Result[T]{Value: e.value, HasValue: e.hasValue, FetchedAt: e.fetchedAt, Cached: cached}
}

// Loader guards one data category. Values are cached per key, but at most
// one non-forced fetch runs for the whole category at a time.
type Loader[T any] struct {
	inFlight atomic.Int32

	category     string
	ttl          time.Duration
	errorBackoff time.Duration
	fetch        FetchFunc[T]
	metrics      *Metrics
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[T]
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	errorBackoff time.Duration
	metrics      *Metrics
	now          func() time.Time
}

// WithErrorBackoff overrides DefaultErrorBackoff.
func WithErrorBackoff(d time.Duration) Option {
	return func(o *options) { o.errorBackoff = d }
}

// WithMetrics records fetches and skips.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Loader for category. A ttl of zero disables the cache check,
// so every non-forced load that is not in flight or backing off fetches.
func New[T any](category string, ttl time.Duration, fetch FetchFunc[T], opts ...Option) *Loader[T] {
	o := options{errorBackoff: DefaultErrorBackoff, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{
		category:     category,
		ttl:          ttl,
		errorBackoff: o.errorBackoff,
		fetch:        fetch,
		metrics:      o.metrics,
		now:          o.now,
		entries:      make(map[string]*entry[T]),
	}
}

// Category returns the data category name.
func (l *Loader[T]) Category() string { return l.category }

func (l *Loader[T]) lookup(key string) (*entry[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return e, ok
}

// entry returns the live entry for key, creating it. Callers hold the
// category guard so Invalidate cannot drop the entry from under them.
func (l *Loader[T]) entry(key string) *entry[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry[T]{}
		l.entries[key] = e
	}
	return e
}

// Load returns the value for key, fetching it unless a call is in flight for
// the category, the cached value is younger than the TTL, or the last failure
// is younger than the error backoff. forceRefresh bypasses all three checks;
// concurrent forced loads both land and the last write wins.
//
// On failure the previous value stays cached and is returned next to the error.
func (l *Loader[T]) Load(ctx context.Context, key string, forceRefresh bool) (Result[T], error) {
	log := zap.L().With(zap.String("category", l.category), zap.String("key", key))

	if forceRefresh {
		l.inFlight.Add(1)
	} else if !l.inFlight.CompareAndSwap(0, 1) {
		l.metrics.skip(l.category, "in_flight")
		log.Debug("loader: skipped, in flight")
		var res Result[T]
		if e, ok := l.lookup(key); ok {
			res = e.result(true)
		}
		res.Cached = true
		return res, ErrInFlight
	}
	defer l.inFlight.Add(-1)

	e := l.entry(key)
	if !forceRefresh {
		if res, skipped, err := l.checkCached(e); skipped {
			return res, err
		}
	}

	start := l.now()
	value, err := l.fetch(ctx, key)

	e.mu.Lock()
	if err != nil {
		e.err = err
		e.erredAt = l.now()
		e.mu.Unlock()
		l.metrics.fetch(l.category, "error", l.now().Sub(start))
		log.Warn("loader: fetch failed", zap.Error(err))
		return e.result(false), eris.Wrapf(err, "loader: %s %s", l.category, key)
	}
	e.value = value
	e.hasValue = true
	e.fetchedAt = l.now()
	e.err = nil
	e.erredAt = time.Time{}
	e.mu.Unlock()

	l.metrics.fetch(l.category, "success", l.now().Sub(start))
	return e.result(false), nil
}

func (l *Loader[T]) checkCached(e *entry[T]) (Result[T], bool, error) {
	now := l.now()
	e.mu.Lock()
	fresh := e.hasValue && l.ttl > 0 && now.Sub(e.fetchedAt) < l.ttl
	backoff := e.err != nil && now.Sub(e.erredAt) < l.errorBackoff
	lastErr := e.err
	e.mu.Unlock()

	switch {
	case fresh:
		l.metrics.skip(l.category, "fresh")
		return e.result(true), true, nil
	case backoff:
		l.metrics.skip(l.category, "backoff")
		return e.result(true), true, eris.Wrapf(lastErr, "loader: %s backing off", l.category)
	}
	return Result[T]{}, false, nil
}

// Peek returns the cached value for key without fetching.
func (l *Loader[T]) Peek(key string) (Result[T], bool) {
	e, ok := l.lookup(key)
	if !ok {
		return Result[T]{}, false
	}
	res := e.result(true)
	return res, res.HasValue
}

// InFlight reports whether a call for the category is outstanding.
func (l *Loader[T]) InFlight() bool {
	return l.inFlight.Load() > 0
}

// Invalidate forgets the cached value and error for key. While a call is
// outstanding the entry is cleared in place, so that call still caches
// its result.
func (l *Loader[T]) Invalidate(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	if l.inFlight.Load() == 0 {
		delete(l.entries, key)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	e.mu.Lock()
	var zero T
	e.value, e.hasValue, e.fetchedAt, e.err, e.erredAt = zero, false, time.Time{}, nil, time.Time{}
	e.mu.Unlock()
}

// Purge invalidates every key.
func (l *Loader[T]) Purge() {
	l.mu.Lock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	l.mu.Unlock()
	for _, k := range keys {
		l.Invalidate(k)
	}
}
