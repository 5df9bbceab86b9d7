package persist

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// Versioned reads through to a legacy tier on a miss and moves whatever it
// finds into the current tier. Writes only go to the current tier. Drop the
// legacy tier from the wiring once no clients carry old entries.
type Versioned struct {
	current Tier
	legacy  Tier
	expiry  func(key string) time.Duration
}

// NewVersioned wraps current with a migrate-on-read path from legacy.
// expiry decides the TTL a migrated value gets in the current tier.
func NewVersioned(current, legacy Tier, expiry func(key string) time.Duration) *Versioned {
	return &Versioned{current: current, legacy: legacy, expiry: expiry}
}

func (v *Versioned) Put(key string, value []byte, ttl time.Duration) error {
	return v.current.Put(key, value, ttl)
}

func (v *Versioned) Get(key string) ([]byte, error) {
	data, err := v.current.Get(key)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return data, err
	}

	data, err = v.legacy.Get(key)
	if err != nil {
		return nil, err
	}

	var ttl time.Duration
	if v.expiry != nil {
		ttl = v.expiry(key)
	}
	if err := v.current.Put(key, data, ttl); err != nil {
		// Serve the legacy value anyway; migration is retried on the next read.
		zap.L().Warn("persist: migrate legacy key", zap.String("key", key), zap.Error(err))
		return data, nil
	}
	if err := v.legacy.Delete(key); err != nil {
		zap.L().Warn("persist: delete migrated legacy key", zap.String("key", key), zap.Error(err))
	}
	zap.L().Debug("persist: migrated legacy key", zap.String("key", key))
	return data, nil
}

// Delete removes the key from both tiers so a cleared value cannot be
// resurrected from the legacy store.
func (v *Versioned) Delete(key string) error {
	if err := v.current.Delete(key); err != nil {
		return err
	}
	return v.legacy.Delete(key)
}
