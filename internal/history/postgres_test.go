package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-wizard/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS enrichment_history").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(historyColumns).
		AddRow("h2", "Globex", "Hank", "hank@globex.com", "", "globex.com", "Springfield", 70.0, now).
		AddRow("h1", "Acme", "", "", "", "", "", 55.0, now.Add(-time.Hour)).
		AddRow("h0", "Initech", "", "", "", "", "", 40.0, now.Add(-2*time.Hour))
	mock.ExpectQuery("SELECT id, company_name .* FROM enrichment_history").
		WithArgs(3, 0).
		WillReturnRows(rows)

	p, err := s.List(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, p.Records, 2)
	assert.True(t, p.HasMore)
	assert.Equal(t, "Globex", p.Records[0].CompanyName)
	assert.Equal(t, "hank@globex.com", p.Records[0].ContactEmail)
	assert.Equal(t, "h1", p.Records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery("SELECT id").WithArgs(26, 0).WillReturnError(errors.New("conn refused"))

	_, err := s.List(context.Background(), 0, -5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history postgres: list")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Append(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"enrichment_history"}, historyColumns).WillReturnResult(2)

	err := s.Append(context.Background(), []model.HistoryRecord{
		{CompanyName: "Acme"},
		{CompanyName: "Globex", Score: 61},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"enrichment_history"}, historyColumns).
		WillReturnError(errors.New("disk full"))

	err := s.Append(context.Background(), []model.HistoryRecord{{CompanyName: "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history postgres: append")
}

func TestPostgresStore_AppendEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.Append(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
