package optimization

import (
	"fmt"
	"time"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
)

// Priority orders pending jobs: urgent jobs start before high, high before
// normal, normal before low. FIFO applies within a level.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank maps a Priority to an integer where lower sorts first, matching the
// queue's pending-list ordering.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// JobStatus is a Job's lifecycle state. Terminal states (completed, failed,
// cancelled) are absorbing: a job never transitions out of one.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether status is absorbing.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a queue-tracked unit of pipeline work.
type Job struct {
	ID          string
	TemplateID  string
	Template    template.Template
	Request     Request
	Priority    Priority
	Status      JobStatus
	Progress    int // 0-100
	CurrentStep string
	RetryCount  int
	MaxRetries  int
	WorkerID    string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Err         error
	Result      *Result
	Metadata    map[string]interface{}
}

// ErrTerminalTransition is returned when code attempts to move a job out of
// a terminal status.
type ErrTerminalTransition struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *ErrTerminalTransition) Error() string {
	return fmt.Sprintf("job %s: cannot transition from terminal state %s to %s", e.JobID, e.From, e.To)
}

// TransitionTo moves the job to status, enforcing that terminal states are
// absorbing. Returns ErrTerminalTransition if the job is already terminal.
func (j *Job) TransitionTo(status JobStatus) error {
	if j.Status.IsTerminal() {
		return &ErrTerminalTransition{JobID: j.ID, From: j.Status, To: status}
	}
	j.Status = status
	return nil
}

// Snapshot returns a shallow copy of the job suitable for returning from
// getJob without exposing the queue's internal mutable state.
func (j *Job) Snapshot() Job {
	return *j
}
