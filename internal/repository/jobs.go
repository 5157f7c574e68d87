// Package repository persists job records in a local sqlite database so
// status survives a process restart.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
)

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = errors.New("job not found")

// ErrAlreadyTerminal is returned by updates against a COMPLETED or FAILED
// job. Terminal records are immutable, so a cancel landing concurrently with
// a finishing worker cannot be overwritten from either side.
var ErrAlreadyTerminal = errors.New("job already in a terminal state")

type JobStore struct {
	db *sql.DB
}

// OpenJobStore opens (or creates) the database at path and applies the
// schema. Updates come from a single orchestrator goroutine per job, while
// status reads arrive from any request handler, so the pool is left at its
// defaults and sqlite's own locking arbitrates.
func OpenJobStore(path string) (*JobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.PersistenceError(fmt.Sprintf("opening job db %s", path), err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		status      TEXT NOT NULL,
		progress    INTEGER NOT NULL DEFAULT 0,
		input_path  TEXT NOT NULL,
		output_path TEXT DEFAULT '',
		error       TEXT DEFAULT '',
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, common.PersistenceError("applying job schema", err)
	}
	return &JobStore{db: db}, nil
}

func (s *JobStore) Close() error { return s.db.Close() }

// Create registers a new job in PENDING state and returns it.
func (s *JobStore) Create(ctx context.Context, inputPath string) (*entity.Job, error) {
	now := time.Now().UTC()
	job := &entity.Job{
		ID:        uuid.New(),
		Status:    constants.JobStatusPending,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, progress, input_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID.String(), string(job.Status), job.Progress, job.InputPath, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, common.PersistenceError("inserting job", err)
	}
	return job, nil
}

// Get returns the job record or ErrNotFound.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, progress, input_path, output_path, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id.String())

	var job entity.Job
	var rawID, status string
	err := row.Scan(&rawID, &status, &job.Progress, &job.InputPath,
		&job.OutputPath, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, common.PersistenceError("reading job", err)
	}
	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, common.PersistenceError("corrupt job id", err)
	}
	job.Status = constants.JobStatus(status)
	return &job, nil
}

// SetStatus moves the job to a new state, optionally snapping progress to the
// state's entry point.
func (s *JobStore) SetStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, progress int) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, progress = ?, updated_at = ?`,
		string(status), progress, time.Now().UTC())
}

// SetProgress updates progress without a state change.
func (s *JobStore) SetProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return s.update(ctx, id,
		`UPDATE jobs SET progress = ?, updated_at = ?`,
		progress, time.Now().UTC())
}

// Complete marks the job COMPLETED with its output path and full progress.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, outputPath string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, progress = 100, output_path = ?, updated_at = ?`,
		string(constants.JobStatusCompleted), outputPath, time.Now().UTC())
}

// Fail marks the job FAILED with a human-readable reason.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return s.update(ctx, id,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ?`,
		string(constants.JobStatusFailed), reason, time.Now().UTC())
}

// update applies set (an UPDATE ... SET fragment) against the job, guarded so
// a terminal record is never modified. Zero affected rows means either the id
// is unknown or the job already finished; the follow-up read tells them
// apart.
func (s *JobStore) update(ctx context.Context, id uuid.UUID, set string, args ...any) error {
	query := set + ` WHERE id = ? AND status NOT IN (?, ?)`
	args = append(args, id.String(),
		string(constants.JobStatusCompleted), string(constants.JobStatusFailed))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return common.PersistenceError("updating job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.PersistenceError("updating job", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrAlreadyTerminal
}
