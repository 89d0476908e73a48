// Package postgres provides Postgres-backed persistence for runs and steps.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Config controls the Postgres connection pool used for run metadata.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore persists run and step metadata in Postgres.
type RunStore struct {
	pool querier
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool querier) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run pipeline.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO runs (
	id,
	trigger,
	status,
	submitted_at,
	started_at,
	finished_at,
	error_text,
	object_uri,
	counters
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID,
		string(run.Trigger),
		string(run.Status),
		run.Submitted,
		run.Started,
		run.Finished,
		run.ErrorText,
		run.ObjectURI,
		countersJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus transitions a run, stamping start and finish times in the
// database to keep a single clock authoritative.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID string, status pipeline.RunStatus, errText string, counters pipeline.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE runs SET
	status = $2,
	error_text = $3,
	counters = $4,
	started_at = CASE WHEN $2 = 'running' THEN now() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('succeeded','failed','canceled') THEN now() ELSE finished_at END
WHERE id = $1`,
		runID,
		string(status),
		errText,
		countersJSON,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
	}
	return nil
}

// SetObjectURI records the published artifact location for a run.
func (s *RunStore) SetObjectURI(ctx context.Context, runID string, uri string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET object_uri = $2 WHERE id = $1`, runID, uri)
	if err != nil {
		return fmt.Errorf("set object uri: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
	}
	return nil
}

// RecordStep inserts a step result row.
func (s *RunStore) RecordStep(ctx context.Context, result pipeline.StepResult) error {
	if result.RunID == "" {
		return fmt.Errorf("step result run id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO run_steps (
	run_id,
	step,
	started_at,
	finished_at,
	duration_ms,
	row_count,
	error_text
) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		result.RunID,
		string(result.Step),
		result.StartedAt,
		result.FinishedAt,
		result.DurationMs,
		result.Rows,
		result.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("insert step result: %w", err)
	}
	return nil
}

const runColumns = `id, trigger, status, submitted_at, started_at, finished_at, error_text, object_uri, counters`

// GetRun returns a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (pipeline.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.Run{}, fmt.Errorf("run %q: %w", runID, pipeline.ErrRunNotFound)
		}
		return pipeline.Run{}, fmt.Errorf("select run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest-first, capped at limit when limit > 0.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY submitted_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (pipeline.Run, error) {
	var (
		run          pipeline.Run
		trigger      string
		status       string
		countersJSON []byte
	)
	err := row.Scan(
		&run.ID,
		&trigger,
		&status,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&run.ObjectURI,
		&countersJSON,
	)
	if err != nil {
		return pipeline.Run{}, err
	}
	run.Trigger = pipeline.TriggerKind(trigger)
	run.Status = pipeline.RunStatus(status)
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &run.Counters); err != nil {
			return pipeline.Run{}, fmt.Errorf("unmarshal counters: %w", err)
		}
	}
	return run, nil
}
