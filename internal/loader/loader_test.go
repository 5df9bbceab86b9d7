package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingFetch(calls *atomic.Int32, value string) FetchFunc[string] {
	return func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		return value + ":" + key, nil
	}
}

func TestLoad_FetchesThenServesFromCache(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	l := New("metrics", time.Hour, countingFetch(&calls, "v"), WithClock(clock.Now))

	res, err := l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.Equal(t, "v:k", res.Value)
	assert.False(t, res.Cached)

	clock.Advance(59 * time.Minute)
	res, err = l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Minute)
	res, err = l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoad_ForceRefreshBypassesCache(t *testing.T) {
	var calls atomic.Int32
	l := New("preview", time.Hour, countingFetch(&calls, "v"))

	_, err := l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "k", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoad_ZeroTTLAlwaysFetches(t *testing.T) {
	var calls atomic.Int32
	l := New("preview", 0, countingFetch(&calls, "v"))

	for range 3 {
		_, err := l.Load(context.Background(), "k", false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_InFlightGuard(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	l := New("enrichment", time.Hour, func(_ context.Context, _ string) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "done", nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.Load(context.Background(), "k", false)
		assert.NoError(t, err)
	}()
	<-started
	assert.True(t, l.InFlight())

	var skipped atomic.Int32
	var inner sync.WaitGroup
	for range 10 {
		inner.Add(1)
		go func() {
			defer inner.Done()
			if _, err := l.Load(context.Background(), "k", false); errors.Is(err, ErrInFlight) {
				skipped.Add(1)
			}
		}()
	}
	inner.Wait()

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(10), skipped.Load())
	assert.False(t, l.InFlight())
}

func TestLoad_InFlightGuardCoversCategory(t *testing.T) {
	release := make(chan struct{})
	var calls, active, peak atomic.Int32
	l := New("history", time.Hour, func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if key == "slow" {
			<-release
		}
		return key, nil
	})

	_, err := l.Load(context.Background(), "cached", false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Load(context.Background(), "slow", false)
	}()
	require.Eventually(t, l.InFlight, time.Second, time.Millisecond)

	res, err := l.Load(context.Background(), "fast", false)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.False(t, res.HasValue)

	res, err = l.Load(context.Background(), "cached", false)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.True(t, res.HasValue)
	assert.Equal(t, "cached", res.Value)

	close(release)
	<-done
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), peak.Load())

	res, err = l.Load(context.Background(), "fast", false)
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Value)
}

func TestLoad_ForceIgnoresInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	l := New("preview", time.Hour, func(_ context.Context, _ string) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			<-release
			return "first", nil
		}
		return "second", nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Load(context.Background(), "k", false)
	}()
	require.Eventually(t, func() bool { return l.InFlight() }, time.Second, time.Millisecond)

	res, err := l.Load(context.Background(), "k", true)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Value)

	close(release)
	<-done

	// Last write wins.
	cached, ok := l.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "first", cached.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoad_FailureKeepsStaleValue(t *testing.T) {
	clock := newFakeClock()
	fail := false
	l := New("metrics", time.Minute, func(_ context.Context, _ string) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return "good", nil
	}, WithClock(clock.Now))

	_, err := l.Load(context.Background(), "k", false)
	require.NoError(t, err)

	fail = true
	clock.Advance(2 * time.Minute)
	res, err := l.Load(context.Background(), "k", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, res.HasValue)
	assert.Equal(t, "good", res.Value)
}

func TestLoad_ErrorBackoff(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	l := New("metrics", time.Hour, func(_ context.Context, _ string) (string, error) {
		calls.Add(1)
		return "", errors.New("down")
	}, WithClock(clock.Now))

	_, err := l.Load(context.Background(), "k", false)
	require.Error(t, err)

	clock.Advance(4 * time.Second)
	_, err = l.Load(context.Background(), "k", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backing off")
	assert.Equal(t, int32(1), calls.Load())

	// Explicit refresh is still allowed during backoff.
	_, err = l.Load(context.Background(), "k", true)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	clock.Advance(5 * time.Second)
	_, err = l.Load(context.Background(), "k", false)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_SuccessClearsError(t *testing.T) {
	clock := newFakeClock()
	fail := true
	l := New("metrics", time.Hour, func(_ context.Context, _ string) (string, error) {
		if fail {
			return "", errors.New("down")
		}
		return "ok", nil
	}, WithClock(clock.Now), WithErrorBackoff(time.Second))

	_, err := l.Load(context.Background(), "k", false)
	require.Error(t, err)

	fail = false
	clock.Advance(2 * time.Second)
	res, err := l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)

	res, err = l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestInvalidateAndPurge(t *testing.T) {
	var calls atomic.Int32
	l := New("preview", time.Hour, countingFetch(&calls, "v"))

	_, _ = l.Load(context.Background(), "a", false)
	_, _ = l.Load(context.Background(), "b", false)

	l.Invalidate("a")
	_, ok := l.Peek("a")
	assert.False(t, ok)
	_, ok = l.Peek("b")
	assert.True(t, ok)

	l.Purge()
	_, ok = l.Peek("b")
	assert.False(t, ok)

	_, _ = l.Load(context.Background(), "a", false)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvalidate_DuringFetchKeepsEntryLive(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	l := New("preview", time.Hour, func(_ context.Context, _ string) (string, error) {
		if calls.Add(1) == 2 {
			close(started)
			<-release
			return "second", nil
		}
		return "first", nil
	})

	_, err := l.Load(context.Background(), "k", false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Load(context.Background(), "k", true)
	}()
	<-started
	l.Invalidate("k")
	_, ok := l.Peek("k")
	assert.False(t, ok)

	close(release)
	<-done

	res, ok := l.Peek("k")
	require.True(t, ok)
	assert.Equal(t, "second", res.Value)

	res, err = l.Load(context.Background(), "k", false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	var calls atomic.Int32
	l := New("metrics", time.Hour, countingFetch(&calls, "v"), WithMetrics(m))

	_, _ = l.Load(context.Background(), "k", false)
	_, _ = l.Load(context.Background(), "k", false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.fetches.WithLabelValues("metrics", "success")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skips.WithLabelValues("metrics", "fresh")), 0.001)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.fetch("c", "success", time.Second)
		m.skip("c", "fresh")
	})
}
