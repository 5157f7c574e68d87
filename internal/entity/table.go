package entity

// Table is a parsed workbook sheet: one shared header row plus data rows.
// Header order is the output contract; rows never reorder it.
type Table struct {
	Headers    []string
	CommentIdx int // index into Headers of the designated comment column
	Rows       []SourceRow
}

// SourceRow is one data row. Cells is parallel to the table's Headers.
// Index is the stable position in the source file, used to reassemble
// output order after concurrent processing.
type SourceRow struct {
	Index int
	Cells []string
}

// Comment returns the designated comment column's text for this row.
func (t *Table) Comment(row SourceRow) string {
	if t.CommentIdx < 0 || t.CommentIdx >= len(row.Cells) {
		return ""
	}
	return row.Cells[t.CommentIdx]
}

// DefectText is one defect extracted from a source row's comment.
// Row and Position pin down deterministic output ordering regardless of
// batch completion order.
type DefectText struct {
	Text     string
	Row      int // SourceRow.Index of the originating row
	Position int // position within that row's defect list
}

// ClassifiedDefect pairs a defect with its validated category. Category is
// always a member of the candidate set the classifier saw, or the
// UNDETERMINED sentinel.
type ClassifiedDefect struct {
	Defect   DefectText
	Category string
}

// ExpandedRow is one output row: a copy of the source cells with the comment
// cell replaced by the defect text. Category is filled by the classify stage.
type ExpandedRow struct {
	Cells    []string
	Defect   DefectText
	Category string
}
