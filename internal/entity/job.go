package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/defect-classifier/constants"
)

// Job represents a processing job for data transfer between layers.
// The orchestrator is the only writer; everything else reads.
type Job struct {
	ID         uuid.UUID           `json:"id"`
	Status     constants.JobStatus `json:"status"`
	Progress   int                 `json:"progress"` // 0..100
	InputPath  string              `json:"input_path"`
	OutputPath string              `json:"output_path,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
