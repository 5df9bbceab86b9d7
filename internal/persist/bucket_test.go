package persist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTier struct {
	*MemoryTier
	ttls map[string]time.Duration
}

func newRecordingTier() *recordingTier {
	return &recordingTier{MemoryTier: NewMemory(), ttls: make(map[string]time.Duration)}
}

func (r *recordingTier) Put(key string, value []byte, ttl time.Duration) error {
	r.ttls[key] = ttl
	return r.MemoryTier.Put(key, value, ttl)
}

func TestBucket_RoundTrip(t *testing.T) {
	b := NewBucket("test", NewMemory(), nil)

	require.NoError(t, b.Write("ids", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, Read(b, "ids", []string(nil)))
}

func TestBucket_MissingReturnsDefault(t *testing.T) {
	b := NewBucket("test", NewMemory(), nil)
	assert.Equal(t, 1, Read(b, KeyStep, 1))
	assert.Equal(t, "", Read(b, KeyQuery, ""))
}

func TestBucket_CorruptReturnsDefaultAndClears(t *testing.T) {
	tier := NewMemory()
	require.NoError(t, tier.Put(KeyStep, []byte("{not json"), 0))
	b := NewBucket("test", tier, nil)

	assert.Equal(t, 1, Read(b, KeyStep, 1))
	_, err := tier.Get(KeyStep)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBucket_WrongShapeReturnsDefault(t *testing.T) {
	tier := NewMemory()
	require.NoError(t, tier.Put(KeyNumberOfLeads, []byte(`"twenty"`), 0))
	b := NewBucket("test", tier, nil)

	assert.Equal(t, 25, Read(b, KeyNumberOfLeads, 25))
}

func TestBucket_Clear(t *testing.T) {
	b := NewBucket("test", NewMemory(), nil)
	require.NoError(t, b.Write("k", true))
	require.NoError(t, b.Clear("k"))
	assert.False(t, Read(b, "k", false))
}

func TestStore_DurableUsesLayoutExpiry(t *testing.T) {
	durable := newRecordingTier()
	ephemeral := newRecordingTier()
	s := NewStore(ephemeral, durable, DefaultLayout())

	require.NoError(t, s.Durable.Write(KeyStep, 2))
	require.NoError(t, s.Durable.Write(KeyPreferences, Preferences{HistoryPageSize: 50}))
	require.NoError(t, s.Durable.Write(KeyHistoryDateRange, DateRange{}))
	require.NoError(t, s.Ephemeral.Write(KeyPreviewResults, []string{}))

	assert.Equal(t, 7*24*time.Hour, durable.ttls[KeyStep])
	assert.Equal(t, 365*24*time.Hour, durable.ttls[KeyPreferences])
	assert.Equal(t, 30*24*time.Hour, durable.ttls[KeyHistoryDateRange])
	assert.Equal(t, time.Duration(0), ephemeral.ttls[KeyPreviewResults])
}

func TestLayoutExpiry_IgnoresUserPrefix(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, l.Preferences, l.Expiry("rep-7:"+KeyPreferences))
	assert.Equal(t, l.Filters, l.Expiry("rep-7:"+KeyHistoryDateRange))
	assert.Equal(t, l.Progress, l.Expiry("rep-7:"+KeyStep))
}

func TestLayoutFromDays(t *testing.T) {
	l := LayoutFromDays(3, 0, -1)
	assert.Equal(t, 3*24*time.Hour, l.Progress)
	assert.Equal(t, 30*24*time.Hour, l.Filters)
	assert.Equal(t, 365*24*time.Hour, l.Preferences)
}

func TestDateRangeContains(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r := DateRange{From: base, To: base.Add(48 * time.Hour)}

	assert.True(t, r.Contains(base.Add(time.Hour)))
	assert.False(t, r.Contains(base.Add(-time.Hour)))
	assert.False(t, r.Contains(base.Add(72*time.Hour)))
	assert.True(t, DateRange{}.Contains(base))
}
