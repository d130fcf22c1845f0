package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSite_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT content FROM site_cache`).
		WithArgs("https://unknown.example").
		WillReturnError(pgx.ErrNoRows)

	site, err := s.GetSite(context.Background(), "https://unknown.example")
	require.NoError(t, err)
	assert.Nil(t, site)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSite_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "https://lakeside.example", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutSite(context.Background(), "https://lakeside.example", &model.SiteContent{URL: "https://lakeside.example"}, 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSyncState_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT external_id, remote_id, payload_hash, synced_at FROM sync_state`).
		WithArgs("p-missing").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetSyncState(context.Background(), "p-missing")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSyncState_RoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	syncedAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"external_id", "remote_id", "payload_hash", "synced_at"}).
		AddRow("p1", "page-1", "18446744073709551615", syncedAt)

	mock.ExpectQuery(`SELECT external_id, remote_id, payload_hash, synced_at FROM sync_state`).
		WithArgs("p1").
		WillReturnRows(rows)

	st, err := s.GetSyncState(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint64(18446744073709551615), st.PayloadHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSyncState_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("p1", "page-1", "42", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutSyncState(context.Background(), model.SyncState{
		ExternalID:  "p1",
		RemoteID:    "page-1",
		PayloadHash: 42,
		SyncedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLeads_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.SaveLeads(context.Background(), "r1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
