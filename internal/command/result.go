package command

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionResult captures the outcome of one execution attempt. The executor
// creates it when the attempt starts and fully populates it by the time the
// attempt returns; it is immutable afterwards. A retried schedule produces a
// new result per attempt, never a mutation of the prior one.
type ExecutionResult struct {
	ID         uuid.UUID
	CommandID  uuid.UUID
	ScheduleID uuid.UUID

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	Success  bool
	ExitCode *int
	Stdout   string
	Stderr   string

	// Copied from the originating command for audit purposes.
	Environment      map[string]string
	WorkingDirectory string
}

// NewResult starts a result record for one attempt against cmd.
func NewResult(cmd *Command) *ExecutionResult {
	return &ExecutionResult{
		ID:               uuid.New(),
		CommandID:        cmd.ID,
		ScheduleID:       cmd.ScheduleID,
		StartedAt:        time.Now().UTC(),
		Environment:      cloneEnv(cmd.Env),
		WorkingDirectory: cmd.WorkingDirectory,
	}
}

// Finish stamps CompletedAt and derives Duration. Calling it twice is a no-op.
func (r *ExecutionResult) Finish() {
	if !r.CompletedAt.IsZero() {
		return
	}
	r.CompletedAt = time.Now().UTC()
	if !r.StartedAt.IsZero() {
		r.Duration = r.CompletedAt.Sub(r.StartedAt)
	}
}

// Successful reports success with a consistent exit code: Success must be set
// and ExitCode, when recorded, must be zero.
func (r *ExecutionResult) Successful() bool {
	if !r.Success {
		return false
	}
	return r.ExitCode == nil || *r.ExitCode == 0
}

// HasOutput reports whether the attempt produced any stdout.
func (r *ExecutionResult) HasOutput() bool {
	return strings.TrimSpace(r.Stdout) != ""
}

// HasErrors reports whether the attempt produced stderr or failed.
func (r *ExecutionResult) HasErrors() bool {
	return strings.TrimSpace(r.Stderr) != "" || !r.Successful()
}
