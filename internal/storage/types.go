package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"execd/internal/command"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl, append-only)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ExecutionRecord is the serialized form of one execution attempt.
// Identifiers are canonical UUID strings, instants are UTC and rendered as
// RFC 3339 on the wire, enums keep their lowercase tags.
type ExecutionRecord struct {
	ID         string `json:"id"`
	CommandID  string `json:"command_id"`
	ScheduleID string `json:"schedule_id,omitempty"`

	Command string `json:"command"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationSec float64    `json:"duration_sec"`

	Success  bool   `json:"success"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`

	WorkingDirectory string `json:"working_directory,omitempty"`
}

// RecordFrom flattens a finished result (plus its command string) into the
// persisted shape.
func RecordFrom(res *command.ExecutionResult, parsedCommand string) ExecutionRecord {
	rec := ExecutionRecord{
		ID:               res.ID.String(),
		CommandID:        res.CommandID.String(),
		Command:          parsedCommand,
		StartedAt:        res.StartedAt,
		DurationSec:      res.Duration.Seconds(),
		Success:          res.Success,
		ExitCode:         res.ExitCode,
		Stdout:           res.Stdout,
		Stderr:           res.Stderr,
		WorkingDirectory: res.WorkingDirectory,
	}
	if res.ScheduleID != uuid.Nil {
		rec.ScheduleID = res.ScheduleID.String()
	}
	if !res.CompletedAt.IsZero() {
		t := res.CompletedAt
		rec.CompletedAt = &t
	}
	return rec
}
