// Package job drives a processing job through its state machine:
// PENDING → READING → SPLITTING → EXPANDING → CLASSIFYING → WRITING →
// COMPLETED, with FAILED reachable from any non-terminal state.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/catindex"
	"github.com/avelichko/defect-classifier/internal/classify"
	"github.com/avelichko/defect-classifier/internal/entity"
	"github.com/avelichko/defect-classifier/internal/expand"
	"github.com/avelichko/defect-classifier/internal/repository"
	"github.com/avelichko/defect-classifier/internal/split"
	"github.com/avelichko/defect-classifier/internal/xlsx"
)

// Progress band boundaries per state. Within SPLITTING and CLASSIFYING the
// band is interpolated by completed batches.
const (
	progressReading     = 0
	progressSplitting   = 5
	progressExpanding   = 45
	progressClassifying = 50
	progressWriting     = 90
)

type Config struct {
	ResultsDir    string
	CommentColumn string
}

type Orchestrator struct {
	store      *repository.JobStore
	index      *catindex.Index
	splitter   *split.Service
	classifier *classify.Service
	cfg        Config
	logger     *slog.Logger
}

func NewOrchestrator(store *repository.JobStore, index *catindex.Index, splitter *split.Service, classifier *classify.Service, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		index:      index,
		splitter:   splitter,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process runs the job to a terminal state. ctx cancellation between stages
// fails the job with "job cancelled"; batches already dispatched to the model
// run to completion and land in the cache.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) {
	// Status writes must land even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	job, err := o.store.Get(persistCtx, id)
	if err != nil {
		o.logger.Error("job.load_failed", "job_id", id, "error", err)
		return
	}
	// Cancelled while still queued.
	if job.Status.Terminal() {
		o.logger.Info("job.skip_terminal", "job_id", id, "status", job.Status)
		return
	}

	outputPath, err := o.run(ctx, persistCtx, job)
	if err != nil {
		// A concurrent cancel already put the record in FAILED; leave it.
		if errors.Is(err, repository.ErrAlreadyTerminal) {
			o.logger.Info("job.stopped_terminal", "job_id", id)
			return
		}
		o.logger.Error("job.failed", "job_id", id, "error", err)
		if ferr := o.store.Fail(persistCtx, id, failureMessage(ctx, err)); ferr != nil &&
			!errors.Is(ferr, repository.ErrAlreadyTerminal) {
			o.logger.Error("job.fail_persist", "job_id", id, "error", ferr)
		}
		return
	}

	if err := o.store.Complete(persistCtx, id, outputPath); err != nil {
		if errors.Is(err, repository.ErrAlreadyTerminal) {
			o.logger.Info("job.stopped_terminal", "job_id", id)
			return
		}
		o.logger.Error("job.complete_persist", "job_id", id, "error", err)
		return
	}
	o.logger.Info("job.completed", "job_id", id, "output", outputPath)
}

func (o *Orchestrator) run(ctx, persistCtx context.Context, job *entity.Job) (string, error) {
	id := job.ID

	// READING
	if err := o.transition(persistCtx, id, constants.JobStatusReading, progressReading); err != nil {
		return "", err
	}
	if _, err := o.index.RefreshIfStale(); err != nil {
		// The previous snapshot stays live; the job proceeds against it.
		o.logger.Warn("job.index_refresh_failed", "job_id", id, "error", err)
	}
	table, err := xlsx.ReadTable(job.InputPath, o.cfg.CommentColumn)
	if err != nil {
		return "", err
	}
	o.logger.Info("job.read", "job_id", id, "rows", len(table.Rows))
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}

	// SPLITTING
	if err := o.transition(persistCtx, id, constants.JobStatusSplitting, progressSplitting); err != nil {
		return "", err
	}
	comments := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		comments[i] = table.Comment(row)
	}
	defectsPerRow := o.splitter.SplitAll(ctx, comments, func(done, total int) {
		o.reportProgress(persistCtx, id, progressSplitting, progressExpanding, done, total)
	})
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}

	// EXPANDING
	if err := o.transition(persistCtx, id, constants.JobStatusExpanding, progressExpanding); err != nil {
		return "", err
	}
	rows := expand.Table(table, defectsPerRow)
	o.logger.Info("job.expanded", "job_id", id, "source_rows", len(table.Rows), "output_rows", len(rows))

	// CLASSIFYING
	if err := o.transition(persistCtx, id, constants.JobStatusClassifying, progressClassifying); err != nil {
		return "", err
	}
	defects := make([]entity.DefectText, len(rows))
	for i, r := range rows {
		defects[i] = r.Defect
	}
	classified := o.classifier.ClassifyAll(ctx, defects, func(done, total int) {
		o.reportProgress(persistCtx, id, progressClassifying, progressWriting, done, total)
	})
	for i := range rows {
		rows[i].Category = classified[i].Category
	}
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}

	// WRITING
	if err := o.transition(persistCtx, id, constants.JobStatusWriting, progressWriting); err != nil {
		return "", err
	}
	outputPath := filepath.Join(o.cfg.ResultsDir, fmt.Sprintf("%s_processed.xlsx", id))
	if err := xlsx.WriteResult(outputPath, table.Headers, rows); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (o *Orchestrator) transition(ctx context.Context, id uuid.UUID, status constants.JobStatus, progress int) error {
	o.logger.Info("job.status", "job_id", id, "status", status, "progress", progress)
	return o.store.SetStatus(ctx, id, status, progress)
}

// reportProgress interpolates completed batches into the state's band.
func (o *Orchestrator) reportProgress(ctx context.Context, id uuid.UUID, lo, hi, done, total int) {
	if total <= 0 {
		return
	}
	p := lo + (hi-lo)*done/total
	if err := o.store.SetProgress(ctx, id, p); err != nil &&
		!errors.Is(err, repository.ErrAlreadyTerminal) {
		o.logger.Warn("job.progress_persist", "job_id", id, "error", err)
	}
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "job cancelled"
	}
	return err.Error()
}
