package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-wizard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "history sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "history sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_history (
	id            TEXT PRIMARY KEY,
	company_name  TEXT NOT NULL,
	contact_name  TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	score         REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_history_created_at ON enrichment_history(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "history sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) (Page, error) {
	limit = clampLimit(limit)
	offset = max(offset, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_name, contact_name, contact_email, contact_phone, website, location, score, created_at
		 FROM enrichment_history ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit+1, offset,
	)
	if err != nil {
		return Page{}, eris.Wrap(err, "history sqlite: list")
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.HistoryRecord
	for rows.Next() {
		var r model.HistoryRecord
		if err := rows.Scan(&r.ID, &r.CompanyName, &r.ContactName, &r.ContactEmail,
			&r.ContactPhone, &r.Website, &r.Location, &r.Score, &r.CreatedAt); err != nil {
			return Page{}, eris.Wrap(err, "history sqlite: scan")
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, eris.Wrap(err, "history sqlite: rows")
	}
	return pageOf(recs, limit), nil
}

func (s *SQLiteStore) Append(ctx context.Context, records []model.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "history sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO enrichment_history (id, company_name, contact_name, contact_email, contact_phone, website, location, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "history sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range withDefaults(records, time.Now().UTC()) {
		if _, err := stmt.ExecContext(ctx, r.ID, r.CompanyName, r.ContactName, r.ContactEmail,
			r.ContactPhone, r.Website, r.Location, r.Score, r.CreatedAt); err != nil {
			return eris.Wrapf(err, "history sqlite: insert %s", r.CompanyName)
		}
	}
	return eris.Wrap(tx.Commit(), "history sqlite: commit")
}

// withDefaults assigns ids and timestamps to records that lack them.
func withDefaults(records []model.HistoryRecord, now time.Time) []model.HistoryRecord {
	out := make([]model.HistoryRecord, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.AlreadySaved = false
		out[i] = r
	}
	return out
}

// pageOf trims a limit+1 result set to limit and reports whether more exist.
func pageOf(recs []model.HistoryRecord, limit int) Page {
	if len(recs) > limit {
		return Page{Records: recs[:limit], HasMore: true}
	}
	return Page{Records: recs}
}
