package schedule

import (
	"errors"
	"testing"
	"time"

	"execd/internal/command"
)

func onceSpec(start time.Time) Spec {
	return Spec{
		Name:      "nightly backup",
		Type:      TypeOnce,
		StartTime: &start,
		Template: Template{
			Commands: []string{"echo backup"},
			Timeout:  time.Minute,
			SafeMode: true,
		},
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Spec{Name: "  "}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := New(Spec{Name: "x", Type: "weekly"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := New(Spec{Name: "x", Type: TypeCron, CronExpression: "not a cron"}); err == nil {
		t.Fatal("expected error for bad cron expression")
	}
	if _, err := New(Spec{Name: "x", MaxExecutions: -1}); err == nil {
		t.Fatal("expected error for negative max executions")
	}
	if _, err := New(Spec{Name: "x", MaxRetries: -1}); err == nil {
		t.Fatal("expected error for negative max retries")
	}

	var verr *command.ValidationError
	_, err := New(Spec{Name: "x", Type: TypeCron, CronExpression: "bad"})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestParseCronStrictFiveField(t *testing.T) {
	valid := []string{"* * * * *", "0 2 * * *", "*/5 * * * *", "30 4 1 * 1"}
	for _, expr := range valid {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q): %v", expr, err)
		}
	}
	invalid := []string{"", "* * * *", "* * * * * *", "60 * * * *", "@every 5m forever"}
	for _, expr := range invalid {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q): expected error", expr)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	s, err := New(Spec{Name: " trimmed "})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name != "trimmed" {
		t.Fatalf("expected trimmed name, got %q", s.Name)
	}
	if s.Type != TypeOnce {
		t.Fatalf("expected default type once, got %s", s.Type)
	}
	if s.Status != StatusActive {
		t.Fatalf("expected active, got %s", s.Status)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries, got %d", s.MaxRetries)
	}
}

func TestOnceNextRun(t *testing.T) {
	start := time.Now().UTC().Add(time.Hour)
	s, err := New(onceSpec(start))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := s.CalculateNextRun(time.Now().UTC())
	if next == nil || !next.Equal(start) {
		t.Fatalf("expected next run at start time, got %v", next)
	}

	// after one execution a once schedule never fires again
	s.MarkExecuted(start)
	if s.NextRun != nil {
		t.Fatalf("expected nil NextRun after execution, got %v", s.NextRun)
	}
	if s.ExecutionCount != 1 {
		t.Fatalf("expected count 1, got %d", s.ExecutionCount)
	}
}

func TestCronNextRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	s, err := New(Spec{Name: "daily", Type: TypeCron, CronExpression: "0 2 * * *"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := s.CalculateNextRun(now)
	want := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	// strictly after: at exactly 02:00 the next trigger is tomorrow
	next = s.CalculateNextRun(want)
	wantNext := want.Add(24 * time.Hour)
	if next == nil || !next.Equal(wantNext) {
		t.Fatalf("expected %v, got %v", wantNext, next)
	}
}

func TestRecurringWithoutCronNeverDue(t *testing.T) {
	s, err := New(Spec{Name: "drifting", Type: TypeRecurring})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now().UTC()
	s.UpdateNextRun(now)
	if s.NextRun != nil {
		t.Fatalf("expected nil NextRun, got %v", s.NextRun)
	}
	if s.Due(now.Add(time.Hour)) {
		t.Fatal("recurring without cron must never be due")
	}
}

func TestDue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	s, err := New(onceSpec(past))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.UpdateNextRun(past.Add(-time.Hour))

	if !s.Due(now) {
		t.Fatal("expected due")
	}
	if s.Due(past.Add(-2 * time.Hour)) {
		t.Fatal("not due before NextRun")
	}

	s.Pause()
	if s.Due(now) {
		t.Fatal("paused schedule is never due")
	}
	s.Resume(past.Add(-time.Hour))
	if !s.Due(now) {
		t.Fatal("resumed schedule should be due again")
	}

	end := now.Add(-30 * time.Second)
	s.EndTime = &end
	if s.Due(now) {
		t.Fatal("not due after EndTime")
	}
}

func TestMaxExecutionsCompletes(t *testing.T) {
	now := time.Now().UTC()
	s, err := New(Spec{
		Name:           "twice",
		Type:           TypeCron,
		CronExpression: "* * * * *",
		MaxExecutions:  2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.UpdateNextRun(now)

	s.MarkExecuted(now)
	if s.Status != StatusActive {
		t.Fatalf("expected still active, got %s", s.Status)
	}
	s.MarkExecuted(now.Add(time.Minute))
	if s.Status != StatusCompleted {
		t.Fatalf("expected completed at cap, got %s", s.Status)
	}
	if s.Due(now.Add(2 * time.Minute)) {
		t.Fatal("completed schedule must not be due")
	}
}

func TestRetryBudget(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	s, err := New(onceSpec(past))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.MaxRetries = 2
	s.UpdateNextRun(past)
	savedNext := *s.NextRun

	s.MarkDispatchFailed()
	if s.Status != StatusActive {
		t.Fatalf("expected active after first failure, got %s", s.Status)
	}
	if !s.RetriesLeft() {
		t.Fatal("expected retries left")
	}
	if s.NextRun == nil || !s.NextRun.Equal(savedNext) {
		t.Fatal("dispatch failure must not move NextRun")
	}

	s.MarkDispatchFailed()
	if s.Status != StatusFailed {
		t.Fatalf("expected failed at budget, got %s", s.Status)
	}
	if !s.Status.Terminal() {
		t.Fatal("failed is terminal")
	}

	// a successful cycle resets the retry counter
	s2, _ := New(onceSpec(past))
	s2.MarkDispatchFailed()
	s2.MarkExecuted(now)
	if s2.RetryCount != 0 {
		t.Fatalf("expected retry counter reset, got %d", s2.RetryCount)
	}
}
