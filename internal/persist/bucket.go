package persist

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Bucket stores JSON values in a tier with a per-key expiry.
type Bucket struct {
	name   string
	tier   Tier
	expiry func(key string) time.Duration
}

// NewBucket creates a bucket over tier. A nil expiry stores without TTL.
func NewBucket(name string, tier Tier, expiry func(key string) time.Duration) *Bucket {
	return &Bucket{name: name, tier: tier, expiry: expiry}
}

// Write serializes v and stores it under key.
func (b *Bucket) Write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "persist: marshal %s", key)
	}
	var ttl time.Duration
	if b.expiry != nil {
		ttl = b.expiry(key)
	}
	return b.tier.Put(key, data, ttl)
}

// Clear removes key immediately.
func (b *Bucket) Clear(key string) error {
	return b.tier.Delete(key)
}

// Read decodes the value stored under key into a T. Missing, expired,
// unreadable or corrupt entries all yield def; corrupt entries are removed.
func Read[T any](b *Bucket, key string, def T) T {
	data, err := b.tier.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.L().Warn("persist: read failed, using default",
				zap.String("bucket", b.name), zap.String("key", key), zap.Error(err))
		}
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		zap.L().Warn("persist: corrupt value, using default",
			zap.String("bucket", b.name), zap.String("key", key), zap.Error(err))
		if cerr := b.tier.Delete(key); cerr != nil {
			zap.L().Debug("persist: clear corrupt value", zap.String("key", key), zap.Error(cerr))
		}
		return def
	}
	return v
}

// Store groups the ephemeral and durable buckets of one client.
type Store struct {
	Ephemeral *Bucket
	Durable   *Bucket
}

// NewStore builds a Store. Ephemeral entries never expire on their own; they
// go away with the tab.
func NewStore(ephemeral, durable Tier, layout Layout) *Store {
	return &Store{
		Ephemeral: NewBucket("ephemeral", ephemeral, nil),
		Durable:   NewBucket("durable", durable, layout.Expiry),
	}
}

// Preferences are UI settings kept for a year.
type Preferences struct {
	HistoryPageSize int `json:"history_page_size"`
}

// DateRange is a persisted history filter.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range. Zero bounds are open.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
