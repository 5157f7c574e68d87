package constants

// Column and sentinel names used across the pipeline. These are Russian
// because the workbooks we ingest come from a Russian construction-handover
// system; they are part of the output contract, not localization.
const (
	// CategoryUndetermined is assigned when classification cannot be
	// validated against the candidate set.
	CategoryUndetermined = "НЕ ОПРЕДЕЛЕНО"

	// CategoryColumnName is appended to every output row.
	CategoryColumnName = "Категория дефекта"

	// DefaultCommentColumn is the column whose text is split into defects
	// unless the config designates another one.
	DefaultCommentColumn = "valueText"

	// ReferenceNameColumn is the header of the category-name column in the
	// reference workbook.
	ReferenceNameColumn = "Наименование"
)
