package job

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/catindex"
	"github.com/avelichko/defect-classifier/internal/classify"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/llm"
	"github.com/avelichko/defect-classifier/internal/repository"
	"github.com/avelichko/defect-classifier/internal/split"
)

// fakeModel splits comments on ";" and always picks the first candidate.
// onSplit, when set, runs at the start of every split call.
type fakeModel struct {
	splitErr    error
	classifyErr error
	onSplit     func()
}

func (f *fakeModel) Split(ctx context.Context, comments []string) ([]llm.SplitResult, error) {
	if f.onSplit != nil {
		f.onSplit()
	}
	if f.splitErr != nil {
		return nil, f.splitErr
	}
	out := make([]llm.SplitResult, len(comments))
	for i, c := range comments {
		for _, part := range strings.Split(c, ";") {
			if part = strings.TrimSpace(part); part != "" {
				out[i].Defects = append(out[i].Defects, llm.DefectItem{Text: part})
			}
		}
	}
	return out, nil
}

func (f *fakeModel) Classify(ctx context.Context, items []llm.ClassifyItem) ([]llm.ClassifyResult, error) {
	if f.classifyErr != nil {
		return nil, f.classifyErr
	}
	out := make([]llm.ClassifyResult, len(items))
	for i, it := range items {
		out[i] = llm.ClassifyResult{Chosen: it.Candidates[0]}
	}
	return out, nil
}

func writeInput(t *testing.T, dir string, comments []string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Объект", "valueText"}))
	for i, c := range comments {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &[]interface{}{"Корпус 1", c}))
	}
	path := filepath.Join(dir, "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func newHarness(t *testing.T, model llm.Client) (*Orchestrator, *repository.JobStore, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := repository.OpenJobStore(filepath.Join(dir, "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ix, err := catindex.New(&catindex.StaticSource{
		Names:   []string{"Трещина в стене", "Провисание дверного полотна"},
		Version: "v1",
	}, slog.Default())
	require.NoError(t, err)

	splitter := split.NewService(model, split.Config{MaxRetries: 1, BaseBackoff: time.Millisecond}, slog.Default())
	classifier := classify.NewService(model, ix, classify.Config{MaxRetries: 1, BaseBackoff: time.Millisecond}, slog.Default())

	orc := NewOrchestrator(store, ix, splitter, classifier,
		Config{ResultsDir: dir, CommentColumn: "valueText"}, slog.Default())
	return orc, store, dir
}

func readOutputRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	return rows
}

func TestProcess_ExpandsAndClassifies(t *testing.T) {
	orc, store, dir := newHarness(t, &fakeModel{})
	ctx := context.Background()

	input := writeInput(t, dir, []string{
		"трещина в стене; провисла дверь",
		"Нет замечаний",
		"   ",
	})
	job, err := store.Create(ctx, input)
	require.NoError(t, err)

	orc.Process(ctx, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, filepath.Join(dir, job.ID.String()+"_processed.xlsx"), got.OutputPath)

	rows := readOutputRows(t, got.OutputPath)
	require.Len(t, rows, 3) // header + two defects; sentinel and empty rows dropped
	assert.Equal(t, []string{"Объект", "valueText", constants.CategoryColumnName}, rows[0])
	assert.Equal(t, "трещина в стене", rows[1][1])
	assert.Equal(t, "Трещина в стене", rows[1][2])
	assert.Equal(t, "провисла дверь", rows[2][1])
}

func TestProcess_ModelOutageDegradesToUndetermined(t *testing.T) {
	model := &fakeModel{classifyErr: common.ExternalServiceError("model unavailable", nil)}
	orc, store, dir := newHarness(t, model)
	ctx := context.Background()

	input := writeInput(t, dir, []string{"трещина в стене"})
	job, err := store.Create(ctx, input)
	require.NoError(t, err)

	orc.Process(ctx, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rows := readOutputRows(t, got.OutputPath)
	require.Len(t, rows, 2)
	assert.Equal(t, constants.CategoryUndetermined, rows[1][2])
}

func TestProcess_MissingCommentColumnFails(t *testing.T) {
	orc, store, dir := newHarness(t, &fakeModel{})
	ctx := context.Background()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Объект", "Дата"}))
	input := filepath.Join(dir, "bad.xlsx")
	require.NoError(t, f.SaveAs(input))
	f.Close()

	job, err := store.Create(ctx, input)
	require.NoError(t, err)

	orc.Process(ctx, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "valueText")
}

func TestProcess_CancelledContextFailsJob(t *testing.T) {
	orc, store, dir := newHarness(t, &fakeModel{})

	input := writeInput(t, dir, []string{"трещина в стене"})
	job, err := store.Create(context.Background(), input)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orc.Process(ctx, job.ID)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "job cancelled", got.Error)
}

func TestProcess_CancelDuringRunIsNotOverwritten(t *testing.T) {
	model := &fakeModel{}
	orc, store, dir := newHarness(t, model)
	ctx := context.Background()

	input := writeInput(t, dir, []string{"трещина в стене"})
	job, err := store.Create(ctx, input)
	require.NoError(t, err)

	// The cancel lands while the job is mid-split; the run must stop at the
	// next transition and leave the FAILED record alone.
	model.onSplit = func() {
		require.NoError(t, store.Fail(ctx, job.ID, "job cancelled"))
	}

	orc.Process(ctx, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Equal(t, "job cancelled", got.Error)
	assert.Empty(t, got.OutputPath)
}

func TestProcess_AllRowsSentinelProducesEmptyOutput(t *testing.T) {
	orc, store, dir := newHarness(t, &fakeModel{})
	ctx := context.Background()

	input := writeInput(t, dir, []string{"Без замечаний", "замечания отсутствуют"})
	job, err := store.Create(ctx, input)
	require.NoError(t, err)

	orc.Process(ctx, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rows := readOutputRows(t, got.OutputPath)
	require.Len(t, rows, 1) // header only
}
