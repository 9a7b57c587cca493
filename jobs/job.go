// Package jobs provides asynchronous background job processing with
// handler-based execution, a fixed worker pool, and bounded job history.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that a job never leaves
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the lifecycle record for one unit of background work.
//
// Infrastructure stays domain-agnostic: Type names a registered handler
// and Params carries handler-specific data the handler decodes itself.
// The queue owns all mutation; everything handed to callers is a snapshot.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"job_type"`
	Params      json.RawMessage `json:"params,omitempty"`
	Status      Status          `json:"status"`
	Progress    float64         `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	// seq orders jobs with identical creation timestamps
	seq uint64
}

// newJobID returns a short collision-resistant job identifier
func newJobID() string {
	return uuid.NewString()[:8]
}

// start marks the job as running
func (j *Job) start() {
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
}

// complete marks the job as completed with a result payload
func (j *Job) complete(result json.RawMessage) {
	now := time.Now()
	j.Status = StatusCompleted
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
}

// fail marks the job as failed with an error message
func (j *Job) fail(err error) {
	now := time.Now()
	j.Status = StatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
}

// cancel marks the job as cancelled
func (j *Job) cancel() {
	now := time.Now()
	j.Status = StatusCancelled
	j.Error = "cancelled before execution"
	j.CompletedAt = &now
}

// snapshot returns a copy safe to hand outside the queue's lock.
// Timestamp pointers are cloned so callers never alias queue-owned state.
func (j *Job) snapshot() Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
