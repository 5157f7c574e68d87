// Package expand multiplies source rows by their extracted defects.
package expand

import (
	"github.com/avelichko/defect-classifier/internal/entity"
)

// Row produces one output row per defect: a copy of the source cells with
// the comment cell replaced by the defect text. Zero defects yields zero
// rows — the source row is dropped from the output, not kept blank. Column
// count and order are untouched.
func Row(commentIdx int, row entity.SourceRow, defects []entity.DefectText) []entity.ExpandedRow {
	if len(defects) == 0 {
		return nil
	}
	out := make([]entity.ExpandedRow, 0, len(defects))
	for _, d := range defects {
		cells := make([]string, len(row.Cells))
		copy(cells, row.Cells)
		if commentIdx >= 0 && commentIdx < len(cells) {
			cells[commentIdx] = d.Text
		}
		out = append(out, entity.ExpandedRow{Cells: cells, Defect: d})
	}
	return out
}

// Table applies Row to every source row in order. defectsPerRow is parallel
// to table.Rows.
func Table(table *entity.Table, defectsPerRow [][]entity.DefectText) []entity.ExpandedRow {
	var out []entity.ExpandedRow
	for i, row := range table.Rows {
		out = append(out, Row(table.CommentIdx, row, defectsPerRow[i])...)
	}
	return out
}
