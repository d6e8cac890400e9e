package execution

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one workflow execution.
type Status string

const (
	// StatusPending means the execution is accepted but not yet started.
	StatusPending Status = "PENDING"
	// StatusProcessing means the workflow is running.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted means the workflow finished and Result is set.
	StatusCompleted Status = "COMPLETED"
	// StatusError means the workflow failed and Error is set.
	StatusError Status = "ERROR"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Record is the tracked state of one workflow execution.
type Record struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Status     Status    `json:"status"`
	// Input is the caller-supplied workflow input, kept for inspection.
	Input string `json:"input,omitempty"`
	// Result holds the workflow output once completed.
	Result string `json:"result,omitempty"`
	// Error holds the failure message once errored.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
