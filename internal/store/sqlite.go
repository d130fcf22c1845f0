package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	place_id   TEXT NOT NULL,
	tier       TEXT NOT NULL,
	score      REAL NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, place_id)
);

CREATE TABLE IF NOT EXISTS site_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	content    TEXT NOT NULL,
	crawled_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	external_id  TEXT PRIMARY KEY,
	remote_id    TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	synced_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_site_cache_url ON site_cache(url);
CREATE INDEX IF NOT EXISTS idx_site_cache_expires_at ON site_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, query string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, query, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     query,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveLeads(ctx context.Context, runID string, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save leads")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal lead")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO leads (run_id, place_id, tier, score, data, created_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, place_id) DO UPDATE SET tier = excluded.tier, score = excluded.score, data = excluded.data`,
			runID, lead.Record.Listing.PlaceID, string(lead.Score.Tier), lead.Score.Final, string(data), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save lead %s", lead.Record.Listing.PlaceID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save leads")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM leads WHERE run_id = ? ORDER BY score DESC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		var lead model.Lead
		if err := json.Unmarshal([]byte(data), &lead); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) GetSite(ctx context.Context, url string) (*model.SiteContent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content FROM site_cache
		 WHERE url = ? AND expires_at > datetime('now')
		 ORDER BY crawled_at DESC LIMIT 1`,
		url,
	)

	var content string
	err := row.Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached site")
	}

	var site model.SiteContent
	if err := json.Unmarshal([]byte(content), &site); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached site")
	}
	return &site, nil
}

func (s *SQLiteStore) PutSite(ctx context.Context, url string, site *model.SiteContent, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	content, err := json.Marshal(site)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal site")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO site_cache (id, url, content, crawled_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, url, string(content), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: put cached site")
}

func (s *SQLiteStore) DeleteExpiredSites(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM site_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired sites")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetSyncState(ctx context.Context, externalID string) (*model.SyncState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT external_id, remote_id, payload_hash, synced_at FROM sync_state WHERE external_id = ?`,
		externalID,
	)

	var st model.SyncState
	var hash string
	err := row.Scan(&st.ExternalID, &st.RemoteID, &hash, &st.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get sync state")
	}

	st.PayloadHash, err = strconv.ParseUint(hash, 10, 64)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse payload hash")
	}
	return &st, nil
}

func (s *SQLiteStore) PutSyncState(ctx context.Context, state model.SyncState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (external_id, remote_id, payload_hash, synced_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET remote_id = excluded.remote_id, payload_hash = excluded.payload_hash, synced_at = excluded.synced_at`,
		state.ExternalID, state.RemoteID, strconv.FormatUint(state.PayloadHash, 10), state.SyncedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: put sync state")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Query, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
