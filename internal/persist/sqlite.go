package persist

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteTier is the legacy single-tier store that predates the badger
// durable tier. New code only reads from it through Versioned.
type SQLiteTier struct {
	db  *sql.DB
	now func() time.Time
}

const sqliteKVMigration = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_kv_store_expires_at ON kv_store(expires_at);
`

// OpenSQLite opens the legacy key/value database at dsn and creates its table.
func OpenSQLite(dsn string) (*SQLiteTier, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteKVMigration,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: init kv store")
		}
	}
	return &SQLiteTier{db: db, now: time.Now}, nil
}

func (s *SQLiteTier) Put(key string, value []byte, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = s.now().UTC().Add(ttl)
	}
	_, err := s.db.Exec(
		`INSERT INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	return eris.Wrapf(err, "sqlite: put %s", key)
}

func (s *SQLiteTier) Get(key string) ([]byte, error) {
	var (
		value   []byte
		expires sql.NullTime
	)
	err := s.db.QueryRow(`SELECT value, expires_at FROM kv_store WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", key)
	}
	if expires.Valid && !s.now().UTC().Before(expires.Time) {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteTier) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete %s", key)
}

// Close closes the database.
func (s *SQLiteTier) Close() error {
	return s.db.Close()
}
