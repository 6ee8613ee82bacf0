package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS reel_jobs (
		id           TEXT PRIMARY KEY,
		request_id   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		progress     INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		error_code   TEXT NOT NULL DEFAULT '',
		slide_count  INTEGER NOT NULL DEFAULT 0,
		width        INTEGER NOT NULL DEFAULT 0,
		height       INTEGER NOT NULL DEFAULT 0,
		video_url    TEXT NOT NULL DEFAULT '',
		duration     DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_reel_jobs_created_at ON reel_jobs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_reel_jobs_completed_at ON reel_jobs(completed_at);
`

const selectColumns = `id, request_id, status, progress, error, error_code, slide_count,
	width, height, video_url, duration, created_at, updated_at, started_at, completed_at`

// terminalStatuses is the SQL list matching Status.IsTerminal.
const terminalStatuses = `('COMPLETED', 'FAILED', 'CANCELLED', 'TIMED_OUT')`

// PostgresRepository persists jobs in a reel_jobs table so status survives
// restarts and can be shared by several API replicas.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens dsn, verifies the connection and creates the
// schema when missing.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create reel_jobs table: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Save upserts job by ID.
func (r *PostgresRepository) Save(ctx context.Context, job *Job) error {
	j := job.Clone()
	query := `
		INSERT INTO reel_jobs (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			error_code = EXCLUDED.error_code,
			video_url = EXCLUDED.video_url,
			duration = EXCLUDED.duration,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`
	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.RequestID, string(j.Status), j.Progress, j.Error, j.ErrorCode, j.SlideCount,
		j.Width, j.Height, j.VideoURL, j.Duration, j.CreatedAt, j.UpdatedAt,
		nullTime(j.StartedAt), nullTime(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// FindByID loads one job.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM reel_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return job, nil
}

// List returns every job, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM reel_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reel_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// DeleteFinishedBefore removes terminal jobs completed before cutoff.
func (r *PostgresRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reel_jobs WHERE status IN `+terminalStatuses+` AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete finished jobs: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		j         Job
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := s.Scan(&j.ID, &j.RequestID, &status, &j.Progress, &j.Error, &j.ErrorCode, &j.SlideCount,
		&j.Width, &j.Height, &j.VideoURL, &j.Duration, &j.CreatedAt, &j.UpdatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.StartedAt = started.Time
	j.CompletedAt = completed.Time
	return &j, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
