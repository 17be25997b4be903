package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/socialpilot/api/schemas"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS browser_sessions (
    platform   TEXT PRIMARY KEY,
    blob       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS workflow_steps (
    run_id      TEXT NOT NULL,
    step_index  INTEGER NOT NULL,
    step_type   TEXT NOT NULL,
    status      TEXT NOT NULL,
    input       JSONB,
    output      JSONB,
    error       TEXT,
    duration_ms BIGINT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, step_index)
);`

const (
	sqlSelectSession = `SELECT blob FROM browser_sessions WHERE platform = $1`
	sqlUpsertSession = `
        INSERT INTO browser_sessions (platform, blob, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (platform) DO UPDATE SET
            blob = EXCLUDED.blob,
            updated_at = EXCLUDED.updated_at`
	sqlDeleteSession = `DELETE FROM browser_sessions WHERE platform = $1`
	sqlInsertStep    = `
        INSERT INTO workflow_steps (run_id, step_index, step_type, status, input, output, error, duration_ms, created_at)
        SELECT $1, COALESCE(MAX(step_index), -1) + 1, $2, $3, $4, $5, $6, $7, $8
        FROM workflow_steps WHERE run_id = $1
        RETURNING step_index`
)

// Store is the PostgreSQL persistence for encrypted session blobs and the workflow step ledger.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables the store writes to if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LoadSessionBlob returns the sealed session for a platform, or ErrNotFound.
func (s *Store) LoadSessionBlob(ctx context.Context, platform string) ([]byte, error) {
	rows, err := s.pool.Query(ctx, sqlSelectSession, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		return nil, ErrNotFound
	}
	var blob []byte
	if err := rows.Scan(&blob); err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return blob, nil
}

// SaveSessionBlob inserts or replaces the sealed session for a platform.
func (s *Store) SaveSessionBlob(ctx context.Context, platform string, blob []byte) error {
	if _, err := s.pool.Exec(ctx, sqlUpsertSession, platform, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSessionBlob removes the sealed session for a platform. Deleting a missing row is not an error.
func (s *Store) DeleteSessionBlob(ctx context.Context, platform string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteSession, platform)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.log.Debug("Deleted session row.", zap.String("platform", platform), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

// InsertStep appends a step to its run and returns the index it was assigned. Indexes are
// allocated in the same statement as the insert so concurrent writers cannot collide silently.
func (s *Store) InsertStep(ctx context.Context, rec schemas.StepRecord) (int, error) {
	rows, err := s.pool.Query(ctx, sqlInsertStep,
		rec.RunID,
		rec.StepType,
		string(rec.Status),
		nullableJSON(rec.Input),
		nullableJSON(rec.Output),
		rec.Error,
		rec.DurationMs,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert step: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("failed to insert step: %w", err)
		}
		return 0, fmt.Errorf("failed to insert step: no index returned")
	}
	var index int
	if err := rows.Scan(&index); err != nil {
		return 0, fmt.Errorf("failed to scan step index: %w", err)
	}
	return index, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
