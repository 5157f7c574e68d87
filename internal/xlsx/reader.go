// Package xlsx reads source workbooks into tables and writes processed
// tables back out. Only the first sheet of a workbook is considered.
package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
)

// ReadTable parses the first sheet: row 1 is the header, rows 2+ are data.
// Fully empty rows are skipped; short rows are padded so every row's cells
// stay parallel to the header. The comment column is matched
// case-insensitively and its absence is a configuration problem, not a
// parse problem.
func ReadTable(path, commentColumn string) (*entity.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, common.ParseError(fmt.Sprintf("cannot open workbook %s", path), err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, common.ParseError(fmt.Sprintf("cannot read sheet %s", sheet), err)
	}
	if len(rows) == 0 {
		return nil, common.ParseError("workbook has no header row", nil)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	commentIdx := -1
	for i, h := range headers {
		if strings.EqualFold(h, commentColumn) {
			commentIdx = i
			break
		}
	}
	if commentIdx < 0 {
		return nil, common.ConfigurationError(
			fmt.Sprintf("comment column %q not found in header", commentColumn), nil)
	}

	table := &entity.Table{Headers: headers, CommentIdx: commentIdx}
	for _, raw := range rows[1:] {
		if isEmptyRow(raw) {
			continue
		}
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(raw) {
				cells[i] = raw[i]
			}
		}
		table.Rows = append(table.Rows, entity.SourceRow{Index: len(table.Rows), Cells: cells})
	}
	return table, nil
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
