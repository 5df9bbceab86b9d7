package history

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-wizard/internal/db"
	"github.com/sells-group/lead-wizard/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "history postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_history (
	id            TEXT PRIMARY KEY,
	company_name  TEXT NOT NULL,
	contact_name  TEXT NOT NULL DEFAULT '',
	contact_email TEXT NOT NULL DEFAULT '',
	contact_phone TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_enrichment_history_created_at ON enrichment_history(created_at DESC);
`

var historyColumns = []string{
	"id", "company_name", "contact_name", "contact_email", "contact_phone",
	"website", "location", "score", "created_at",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "history postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) (Page, error) {
	limit = clampLimit(limit)
	offset = max(offset, 0)

	rows, err := s.pool.Query(ctx,
		`SELECT id, company_name, contact_name, contact_email, contact_phone, website, location, score, created_at
		 FROM enrichment_history ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit+1, offset,
	)
	if err != nil {
		return Page{}, eris.Wrap(err, "history postgres: list")
	}
	defer rows.Close()

	var recs []model.HistoryRecord
	for rows.Next() {
		var r model.HistoryRecord
		if err := rows.Scan(&r.ID, &r.CompanyName, &r.ContactName, &r.ContactEmail,
			&r.ContactPhone, &r.Website, &r.Location, &r.Score, &r.CreatedAt); err != nil {
			return Page{}, eris.Wrap(err, "history postgres: scan")
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, eris.Wrap(err, "history postgres: rows")
	}
	return pageOf(recs, limit), nil
}

func (s *PostgresStore) Append(ctx context.Context, records []model.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(records))
	for _, r := range withDefaults(records, time.Now().UTC()) {
		rows = append(rows, []any{
			r.ID, r.CompanyName, r.ContactName, r.ContactEmail, r.ContactPhone,
			r.Website, r.Location, r.Score, r.CreatedAt,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "enrichment_history", historyColumns, rows); err != nil {
		return eris.Wrap(err, "history postgres: append")
	}
	return nil
}
