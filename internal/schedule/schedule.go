// Package schedule defines the recurrence descriptor for repeated command
// execution: when a schedule is due, how its next trigger instant is
// computed, and the retry/completion bookkeeping applied by the scheduler.
//
// All instants are explicit UTC. Optional instants are pointers; a nil
// NextRun means the schedule is never due.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"execd/internal/command"
)

// Type selects how the next trigger instant is computed.
type Type string

const (
	TypeOnce      Type = "once"
	TypeRecurring Type = "recurring"
	TypeCron      Type = "cron"
)

// Status is the lifecycle state of a Schedule.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the schedule has left the scheduling set for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultMaxRetries bounds consecutive dispatch failures before a schedule
// is marked failed.
const DefaultMaxRetries = 3

// cronParser accepts the standard 5-field syntax only
// (minute, hour, day-of-month, month, day-of-week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates expr against the 5-field syntax.
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Schedule is a recurrence descriptor plus bookkeeping for a template of
// commands to (re)run. It is registered with the scheduler and from then on
// mutated exclusively inside the scheduler's polling loop.
type Schedule struct {
	ID          uuid.UUID
	Name        string
	Description string
	Type        Type
	Status      Status

	// Timing. NextRun and LastRun are maintained by the scheduler, never
	// set by the producer.
	CronExpression string
	StartTime      *time.Time
	EndTime        *time.Time
	NextRun        *time.Time
	LastRun        *time.Time

	// MaxExecutions of 0 means unlimited.
	MaxExecutions  int
	ExecutionCount int
	RetryCount     int
	MaxRetries     int

	Template Template

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spec carries the producer-supplied fields for a new Schedule.
type Spec struct {
	Name        string
	Description string
	Type        Type

	CronExpression string
	StartTime      *time.Time
	EndTime        *time.Time

	MaxExecutions int // 0 = unlimited
	MaxRetries    int // 0 = DefaultMaxRetries; pass <0 is invalid

	Template Template
}

// New validates spec and constructs an active Schedule. The cron expression,
// when present, must parse as standard 5-field cron.
func New(spec Spec) (*Schedule, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, &command.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	typ := spec.Type
	if typ == "" {
		typ = TypeOnce
	}
	switch typ {
	case TypeOnce, TypeRecurring, TypeCron:
	default:
		return nil, &command.ValidationError{Field: "schedule_type", Reason: fmt.Sprintf("unknown type %q", spec.Type)}
	}
	if expr := strings.TrimSpace(spec.CronExpression); expr != "" {
		if _, err := ParseCron(expr); err != nil {
			return nil, &command.ValidationError{Field: "cron_expression", Reason: err.Error()}
		}
	}
	if spec.MaxExecutions < 0 {
		return nil, &command.ValidationError{Field: "max_executions", Reason: "must be positive"}
	}
	if spec.MaxRetries < 0 {
		return nil, &command.ValidationError{Field: "max_retries", Reason: "must be non-negative"}
	}
	maxRetries := spec.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now().UTC()
	s := &Schedule{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(spec.Name),
		Description:    spec.Description,
		Type:           typ,
		Status:         StatusActive,
		CronExpression: strings.TrimSpace(spec.CronExpression),
		StartTime:      utcPtr(spec.StartTime),
		EndTime:        utcPtr(spec.EndTime),
		MaxExecutions:  spec.MaxExecutions,
		MaxRetries:     maxRetries,
		Template:       spec.Template,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s, nil
}

// IsActive reports whether the schedule participates in due checks.
func (s *Schedule) IsActive() bool { return s.Status == StatusActive }

// Due reports whether the schedule should fire at now: it must be active,
// have a computed NextRun at or before now, not have exhausted
// MaxExecutions, and not have passed EndTime.
func (s *Schedule) Due(now time.Time) bool {
	if !s.IsActive() {
		return false
	}
	if s.MaxExecutions > 0 && s.ExecutionCount >= s.MaxExecutions {
		return false
	}
	if s.NextRun == nil {
		return false
	}
	if now.Before(*s.NextRun) {
		return false
	}
	if s.EndTime != nil && now.After(*s.EndTime) {
		return false
	}
	return true
}

// CalculateNextRun computes the next trigger instant as of now.
//
//   - once: the start time, and nothing at all after the first execution.
//   - cron: the next trigger strictly after now; an unparsable expression
//     yields no next run.
//   - recurring without a cron expression: no next run is defined.
func (s *Schedule) CalculateNextRun(now time.Time) *time.Time {
	switch s.Type {
	case TypeOnce:
		if s.ExecutionCount > 0 {
			return nil
		}
		return utcPtr(s.StartTime)
	case TypeCron, TypeRecurring:
		if s.CronExpression == "" {
			return nil
		}
		parsed, err := ParseCron(s.CronExpression)
		if err != nil {
			return nil
		}
		next := parsed.Next(now.UTC())
		if next.IsZero() {
			return nil
		}
		next = next.UTC()
		return &next
	default:
		return nil
	}
}

// UpdateNextRun recomputes NextRun as of now.
func (s *Schedule) UpdateNextRun(now time.Time) {
	s.NextRun = s.CalculateNextRun(now)
	s.touch()
}

// MarkExecuted records one successful dispatch cycle: count and last-run
// advance, the retry counter resets, NextRun is recomputed, and the schedule
// completes once MaxExecutions is reached.
func (s *Schedule) MarkExecuted(now time.Time) {
	s.ExecutionCount++
	now = now.UTC()
	s.LastRun = &now
	s.RetryCount = 0
	s.UpdateNextRun(now)

	if s.MaxExecutions > 0 && s.ExecutionCount >= s.MaxExecutions {
		s.Status = StatusCompleted
	}
	s.touch()
}

// MarkDispatchFailed records one failed dispatch. NextRun is left unchanged
// so the same due window is retried on the next poll; after MaxRetries
// consecutive failures the schedule goes failed.
func (s *Schedule) MarkDispatchFailed() {
	s.RetryCount++
	if s.RetryCount >= s.MaxRetries {
		s.Status = StatusFailed
	}
	s.touch()
}

// RetriesLeft reports whether another dispatch attempt is allowed.
func (s *Schedule) RetriesLeft() bool { return s.RetryCount < s.MaxRetries }

// Pause suspends an active schedule. Any other source state is a no-op.
func (s *Schedule) Pause() {
	if s.Status == StatusActive {
		s.Status = StatusPaused
		s.touch()
	}
}

// Resume reactivates a paused schedule and recomputes NextRun. Any other
// source state is a no-op.
func (s *Schedule) Resume(now time.Time) {
	if s.Status == StatusPaused {
		s.Status = StatusActive
		s.UpdateNextRun(now)
	}
}

// Complete marks the schedule finished.
func (s *Schedule) Complete() {
	s.Status = StatusCompleted
	s.touch()
}

// Fail marks the schedule terminally failed.
func (s *Schedule) Fail() {
	s.Status = StatusFailed
	s.touch()
}

func (s *Schedule) touch() { s.UpdatedAt = time.Now().UTC() }

func (s *Schedule) String() string {
	return fmt.Sprintf("Schedule(%s %q %s/%s)", s.ID, s.Name, s.Type, s.Status)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
