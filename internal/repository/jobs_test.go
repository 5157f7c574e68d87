package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/defect-classifier/constants"
)

func newStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := OpenJobStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJobStore_CreateAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "/uploads/in.xlsx")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, job.Status)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "/uploads/in.xlsx", got.InputPath)
	assert.Equal(t, 0, got.Progress)
}

func TestJobStore_StatusLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "in.xlsx")
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, job.ID, constants.JobStatusSplitting, 5))
	require.NoError(t, store.SetProgress(ctx, job.ID, 25))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusSplitting, got.Status)
	assert.Equal(t, 25, got.Progress)

	require.NoError(t, store.Complete(ctx, job.ID, "results/out.xlsx"))
	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "results/out.xlsx", got.OutputPath)
	assert.True(t, got.Status.Terminal())
}

func TestJobStore_Fail(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "in.xlsx")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, "job cancelled"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "job cancelled", got.Error)
}

func TestJobStore_TerminalStateIsImmutable(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "in.xlsx")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, "job cancelled"))

	// A worker finishing concurrently must not overwrite the cancel.
	err = store.Complete(ctx, job.ID, "results/out.xlsx")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	assert.ErrorIs(t, store.SetStatus(ctx, job.ID, constants.JobStatusWriting, 90), ErrAlreadyTerminal)
	assert.ErrorIs(t, store.SetProgress(ctx, job.ID, 99), ErrAlreadyTerminal)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "job cancelled", got.Error)
	assert.Empty(t, got.OutputPath)

	// The other direction holds too: a completed job cannot be failed.
	done, err := store.Create(ctx, "in2.xlsx")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, done.ID, "results/out2.xlsx"))
	assert.ErrorIs(t, store.Fail(ctx, done.ID, "job cancelled"), ErrAlreadyTerminal)
}

func TestJobStore_NotFound(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetProgress(ctx, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrNotFound)
}
