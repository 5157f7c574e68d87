package constants

// JobStatus is the canonical status for processing jobs.
type JobStatus string

// Stable values (these exact strings go over the wire and into the store).
const (
	JobStatusPending     JobStatus = "PENDING"     // accepted, not yet picked up by a worker
	JobStatusReading     JobStatus = "READING"     // parsing the source workbook
	JobStatusSplitting   JobStatus = "SPLITTING"   // splitting comments into defects
	JobStatusExpanding   JobStatus = "EXPANDING"   // multiplying rows by defects
	JobStatusClassifying JobStatus = "CLASSIFYING" // assigning categories
	JobStatusWriting     JobStatus = "WRITING"     // writing the result workbook
	JobStatusCompleted   JobStatus = "COMPLETED"   // terminal success
	JobStatusFailed      JobStatus = "FAILED"      // terminal failure
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
