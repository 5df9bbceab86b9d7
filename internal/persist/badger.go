package persist

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"
)

// BadgerTier is the durable tier. Expiry is delegated to badger's per-entry TTL.
type BadgerTier struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database in dir. An empty dir opens
// an in-memory database, which is only useful for tests.
func OpenBadger(dir string) (*BadgerTier, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrapf(err, "badger: open %s", dir)
	}
	return &BadgerTier{db: db}, nil
}

func (b *BadgerTier) Put(key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	return eris.Wrapf(err, "badger: put %s", key)
}

func (b *BadgerTier) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "badger: get %s", key)
	}
	return out, nil
}

func (b *BadgerTier) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return eris.Wrapf(err, "badger: delete %s", key)
}

// Close flushes and closes the database.
func (b *BadgerTier) Close() error {
	return b.db.Close()
}
