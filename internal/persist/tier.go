// Package persist implements the two-tier key/value persistence used by the
// lead workflow: an ephemeral per-tab tier and a durable cross-session tier
// with per-key expiry.
package persist

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Tier.Get when a key is missing or expired.
var ErrNotFound = eris.New("persist: key not found")

// Tier is a synchronous key/value store. A ttl of zero means no expiry.
type Tier interface {
	Put(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

type prefixed struct {
	tier   Tier
	prefix string
}

// Prefixed namespaces every key of tier under prefix. It is used to give each
// user a private slice of a shared durable tier.
func Prefixed(tier Tier, prefix string) Tier {
	return &prefixed{tier: tier, prefix: prefix + ":"}
}

func (p *prefixed) Put(key string, value []byte, ttl time.Duration) error {
	return p.tier.Put(p.prefix+key, value, ttl)
}

func (p *prefixed) Get(key string) ([]byte, error) {
	return p.tier.Get(p.prefix + key)
}

func (p *prefixed) Delete(key string) error {
	return p.tier.Delete(p.prefix + key)
}
