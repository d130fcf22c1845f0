package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"complete_run":      `UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
	"get_site":          `SELECT content FROM site_cache WHERE url = $1 AND expires_at > now() ORDER BY crawled_at DESC LIMIT 1`,
	"put_site":          `INSERT INTO site_cache (id, url, content, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (url) DO UPDATE SET content = EXCLUDED.content, crawled_at = EXCLUDED.crawled_at, expires_at = EXCLUDED.expires_at`,
	"get_sync_state":    `SELECT external_id, remote_id, payload_hash, synced_at FROM sync_state WHERE external_id = $1`,
	"put_sync_state":    `INSERT INTO sync_state (external_id, remote_id, payload_hash, synced_at) VALUES ($1, $2, $3, $4) ON CONFLICT (external_id) DO UPDATE SET remote_id = EXCLUDED.remote_id, payload_hash = EXCLUDED.payload_hash, synced_at = EXCLUDED.synced_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	place_id   TEXT NOT NULL,
	tier       TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, place_id)
);

CREATE TABLE IF NOT EXISTS site_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url        TEXT NOT NULL UNIQUE,
	content    JSONB NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	external_id  TEXT PRIMARY KEY,
	remote_id    TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	synced_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_leads_run_id ON leads(run_id);
CREATE INDEX IF NOT EXISTS idx_site_cache_url ON site_cache(url);
CREATE INDEX IF NOT EXISTS idx_site_cache_expires_at ON site_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, query string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, query, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     query,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Query, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if len(summaryJSON) > 0 {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, status, summary, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, argIdx)
		args = append(args, filter.Query)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryJSON []byte

		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(summaryJSON) > 0 {
			r.Summary = &model.Summary{}
			if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal summary")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveLeads bulk-upserts lead snapshots keyed by (run_id, place_id).
func (s *PostgresStore) SaveLeads(ctx context.Context, runID string, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for _, lead := range leads {
		data, err := json.Marshal(lead)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal lead")
		}
		rows = append(rows, []any{
			runID, lead.Record.Listing.PlaceID, string(lead.Score.Tier), lead.Score.Final, data, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      []string{"run_id", "place_id", "tier", "score", "data", "created_at"},
		ConflictKeys: []string{"run_id", "place_id"},
		UpdateCols:   []string{"tier", "score", "data"},
	}, rows)
	return eris.Wrap(err, "postgres: save leads")
}

func (s *PostgresStore) ListLeads(ctx context.Context, runID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM leads WHERE run_id = $1 ORDER BY score DESC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		var lead model.Lead
		if err := json.Unmarshal(data, &lead); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal lead")
		}
		leads = append(leads, lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) GetSite(ctx context.Context, url string) (*model.SiteContent, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM site_cache WHERE url = $1 AND expires_at > now() ORDER BY crawled_at DESC LIMIT 1`,
		url,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached site")
	}

	var site model.SiteContent
	if err := json.Unmarshal(content, &site); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached site")
	}
	return &site, nil
}

func (s *PostgresStore) PutSite(ctx context.Context, url string, site *model.SiteContent, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()

	content, err := json.Marshal(site)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal site")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO site_cache (id, url, content, crawled_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET content = EXCLUDED.content, crawled_at = EXCLUDED.crawled_at, expires_at = EXCLUDED.expires_at`,
		id, url, content, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: put cached site")
}

func (s *PostgresStore) DeleteExpiredSites(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM site_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired sites")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetSyncState(ctx context.Context, externalID string) (*model.SyncState, error) {
	var st model.SyncState
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT external_id, remote_id, payload_hash, synced_at FROM sync_state WHERE external_id = $1`,
		externalID,
	).Scan(&st.ExternalID, &st.RemoteID, &hash, &st.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get sync state")
	}

	st.PayloadHash, err = strconv.ParseUint(hash, 10, 64)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse payload hash")
	}
	return &st, nil
}

func (s *PostgresStore) PutSyncState(ctx context.Context, state model.SyncState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_state (external_id, remote_id, payload_hash, synced_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_id) DO UPDATE SET remote_id = EXCLUDED.remote_id, payload_hash = EXCLUDED.payload_hash, synced_at = EXCLUDED.synced_at`,
		state.ExternalID, state.RemoteID, strconv.FormatUint(state.PayloadHash, 10), state.SyncedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: put sync state")
}
