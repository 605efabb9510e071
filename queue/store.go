package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a job lookup misses.
var ErrNotFound = errors.New("queue: job not found")

// schemaSQL creates the watch_jobs table if absent. Applied once at
// PostgresStore construction rather than through golang-migrate, since the
// queue has exactly one table (DESIGN.md).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS watch_jobs (
	id           BIGSERIAL PRIMARY KEY,
	tenant       TEXT NOT NULL,
	workspace    TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	external_id  TEXT NOT NULL,
	url          TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'queued',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant, workspace, source_type, external_id)
);
CREATE INDEX IF NOT EXISTS watch_jobs_status_idx ON watch_jobs (status, priority DESC, created_at);
`

// PostgresStore is the reference durable implementation of the watch queue,
// backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, applies the table schema, and returns a
// ready store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queue: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an already-connected, already-migrated
// pool without running NewPostgresStore's schema step.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Enqueue inserts a new job, deduplicated on (tenant, workspace,
// source_type, external_id). A duplicate key is not an error: the existing
// row's id is returned along with inserted=false so callers can tell apart
// a fresh enqueue from a no-op re-submission (spec.md §3 "Deduplicated on
// insert").
func (s *PostgresStore) Enqueue(ctx context.Context, key DedupKey, url string, priority int) (id int64, inserted bool, err error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO watch_jobs (tenant, workspace, source_type, external_id, url, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant, workspace, source_type, external_id) DO NOTHING
		RETURNING id
	`, key.Tenant, key.Workspace, key.SourceType, key.ExternalID, url, priority)

	if err := row.Scan(&id); err == nil {
		return id, true, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("queue: enqueue: %w", err)
	}

	existing := s.pool.QueryRow(ctx, `
		SELECT id FROM watch_jobs
		WHERE tenant = $1 AND workspace = $2 AND source_type = $3 AND external_id = $4
	`, key.Tenant, key.Workspace, key.SourceType, key.ExternalID)
	if err := existing.Scan(&id); err != nil {
		return 0, false, fmt.Errorf("queue: lookup existing: %w", err)
	}
	return id, false, nil
}

// Dequeue claims the highest-priority queued job, atomically transitioning
// it to running so concurrent workers never claim the same row (FOR UPDATE
// SKIP LOCKED).
func (s *PostgresStore) Dequeue(ctx context.Context) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE watch_jobs SET status = 'running', updated_at = now()
		WHERE id = (
			SELECT id FROM watch_jobs
			WHERE status = 'queued'
			ORDER BY priority DESC, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, tenant, workspace, source_type, external_id, url, priority, status, error, created_at, updated_at
	`)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	return job, nil
}

// MarkDone transitions job id to done.
func (s *PostgresStore) MarkDone(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusDone, "")
}

// MarkFailed transitions job id to failed, recording msg.
func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, msg string) error {
	return s.setStatus(ctx, id, StatusFailed, msg)
}

func (s *PostgresStore) setStatus(ctx context.Context, id int64, status Status, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE watch_jobs SET status = $1, error = $2, updated_at = now() WHERE id = $3
	`, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("queue: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns jobs matching status, most recent first; pass "" for every
// status.
func (s *PostgresStore) List(ctx context.Context, status Status, limit int) ([]Job, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, tenant, workspace, source_type, external_id, url, priority, status, error, created_at, updated_at
			FROM watch_jobs ORDER BY created_at DESC LIMIT $1
		`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, tenant, workspace, source_type, external_id, url, priority, status, error, created_at, updated_at
			FROM watch_jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2
		`, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status string
	if err := row.Scan(&j.ID, &j.Tenant, &j.Workspace, &j.SourceType, &j.ExternalID, &j.URL,
		&j.Priority, &status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	return &j, nil
}
