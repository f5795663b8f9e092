package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Command.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Type classifies how a command came to be. It is informational only and
// never alters executor behavior.
type Type string

const (
	TypeSystem    Type = "system"
	TypeScript    Type = "script"
	TypeScheduled Type = "scheduled"
	TypeCron      Type = "cron"
)

// Command is one concrete shell invocation plus its execution and state
// metadata. It is created by a producer, mutated only through its transition
// methods, and never deleted by the engine.
type Command struct {
	ID uuid.UUID

	OriginalRequest string
	ParsedCommand   string
	Type            Type
	Status          Status

	// Execution context.
	WorkingDirectory string
	Env              map[string]string
	Timeout          time.Duration

	// Security metadata. RequiresConfirmation and AllowedInSafeMode are
	// advisory: the execution gate recomputes safety itself.
	RequiresConfirmation bool
	SafeMode             bool
	AllowedInSafeMode    bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExecutedAt  time.Time
	CompletedAt time.Time

	// Populated by Complete().
	ExitCode      int
	Stdout        string
	Stderr        string
	ExecutionTime time.Duration

	// Back-references. A Command spawned by a Schedule points to it; the
	// Schedule does not own the Command after dispatch.
	ScheduleID      uuid.UUID
	ParentCommandID uuid.UUID
}

// Spec carries the producer-supplied fields for a new Command.
type Spec struct {
	OriginalRequest string
	ParsedCommand   string
	Type            Type

	WorkingDirectory string
	Env              map[string]string
	Timeout          time.Duration

	RequiresConfirmation bool
	SafeMode             bool
	AllowedInSafeMode    bool

	ScheduleID      uuid.UUID
	ParentCommandID uuid.UUID
}

// DefaultTimeout is what producers should fall back to when the request
// carries no explicit timeout. New itself does not default: a non-positive
// timeout is a validation failure.
const DefaultTimeout = 5 * time.Minute

// New validates spec and constructs a pending Command.
func New(spec Spec) (*Command, error) {
	parsed := strings.TrimSpace(spec.ParsedCommand)
	if parsed == "" {
		return nil, validationErr("parsed_command", "must not be empty")
	}
	if spec.Timeout <= 0 {
		return nil, validationErr("timeout", "must be positive")
	}
	typ := spec.Type
	if typ == "" {
		typ = TypeSystem
	}

	now := time.Now().UTC()
	c := &Command{
		ID:                   uuid.New(),
		OriginalRequest:      spec.OriginalRequest,
		ParsedCommand:        parsed,
		Type:                 typ,
		Status:               StatusPending,
		WorkingDirectory:     spec.WorkingDirectory,
		Env:                  cloneEnv(spec.Env),
		Timeout:              spec.Timeout,
		RequiresConfirmation: spec.RequiresConfirmation,
		SafeMode:             spec.SafeMode,
		AllowedInSafeMode:    spec.AllowedInSafeMode,
		CreatedAt:            now,
		UpdatedAt:            now,
		ScheduleID:           spec.ScheduleID,
		ParentCommandID:      spec.ParentCommandID,
	}
	return c, nil
}

// CanExecute reports whether execution may start: the command must be pending
// and, in safe mode, pass the deny-list check. This is the sole gate the
// executor consults before spawning a process.
func (c *Command) CanExecute() bool {
	return c.CanExecuteWith(nil)
}

// CanExecuteWith is CanExecute with operator-supplied extra deny-list entries.
func (c *Command) CanExecuteWith(extraDenied []string) bool {
	if c.Status != StatusPending {
		return false
	}
	if c.SafeMode && !IsSafeCommand(c.ParsedCommand, extraDenied) {
		return false
	}
	return true
}

// IsSafe reports whether the command string clears the built-in deny-list.
func (c *Command) IsSafe() bool {
	return IsSafeCommand(c.ParsedCommand, nil)
}

// Start transitions pending -> running and records the execution timestamp.
func (c *Command) Start() error {
	if !c.CanExecute() {
		return fmt.Errorf("%w: cannot start command %s in status %q", ErrInvalidState, c.ID, c.Status)
	}
	c.Status = StatusRunning
	c.ExecutedAt = time.Now().UTC()
	c.touch()
	return nil
}

// Complete transitions running -> completed (exit 0) or failed (non-zero) and
// records the attempt's outputs.
func (c *Command) Complete(exitCode int, stdout, stderr string, took time.Duration) error {
	if c.Status != StatusRunning {
		return fmt.Errorf("%w: cannot complete command %s in status %q", ErrInvalidState, c.ID, c.Status)
	}
	if exitCode == 0 {
		c.Status = StatusCompleted
	} else {
		c.Status = StatusFailed
	}
	c.ExitCode = exitCode
	c.Stdout = stdout
	c.Stderr = stderr
	c.ExecutionTime = took
	c.CompletedAt = time.Now().UTC()
	c.touch()
	return nil
}

// Cancel transitions pending or running -> cancelled. Terminal commands
// cannot be cancelled.
func (c *Command) Cancel() error {
	if c.Status != StatusPending && c.Status != StatusRunning {
		return fmt.Errorf("%w: cannot cancel command %s in status %q", ErrInvalidState, c.ID, c.Status)
	}
	c.Status = StatusCancelled
	c.touch()
	return nil
}

func (c *Command) touch() {
	c.UpdatedAt = time.Now().UTC()
}

func (c *Command) String() string {
	return fmt.Sprintf("Command(%s %q %s)", c.ID, c.ParsedCommand, c.Status)
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
