package xlsx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadTable(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Объект", "valueText", "Дата"},
		{"Корпус 1", "Трещина в стене", "2025-01-10"},
		{"", "", ""},
		{"Корпус 2", "Нет замечаний"},
	})

	table, err := ReadTable(path, "valuetext")
	require.NoError(t, err)
	assert.Equal(t, []string{"Объект", "valueText", "Дата"}, table.Headers)
	assert.Equal(t, 1, table.CommentIdx)
	require.Len(t, table.Rows, 2) // empty row skipped
	assert.Equal(t, "Трещина в стене", table.Comment(table.Rows[0]))

	// short row padded to header width
	assert.Len(t, table.Rows[1].Cells, 3)
	assert.Equal(t, "", table.Rows[1].Cells[2])
}

func TestReadTable_MissingCommentColumn(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Объект", "Дата"},
		{"Корпус 1", "2025-01-10"},
	})

	_, err := ReadTable(path, "valueText")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestReadTable_UnreadableFile(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.xlsx"), "valueText")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrParse)
}

func TestWriteResult_AppendsCategoryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	headers := []string{"Объект", "valueText"}
	rows := []entity.ExpandedRow{
		{Cells: []string{"Корпус 1", "Трещина в стене"}, Category: "Трещина в стене"},
		{Cells: []string{"Корпус 1", "Провисла дверь"}, Category: constants.CategoryUndetermined},
	}
	require.NoError(t, WriteResult(path, headers, rows))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Объект", "valueText", constants.CategoryColumnName}, got[0])
	assert.Equal(t, []string{"Корпус 1", "Трещина в стене", "Трещина в стене"}, got[1])
	assert.Equal(t, constants.CategoryUndetermined, got[2][2])
}

func TestWriteResult_RoundTripsThroughReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	headers := []string{"Объект", "valueText"}
	rows := []entity.ExpandedRow{
		{Cells: []string{"Корпус 1", "Скол плитки"}, Category: "Скол керамической плитки"},
	}
	require.NoError(t, WriteResult(path, headers, rows))

	table, err := ReadTable(path, "valueText")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Скол плитки", table.Comment(table.Rows[0]))
}
