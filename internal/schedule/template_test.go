package schedule

import (
	"testing"
	"time"

	"execd/internal/command"
)

func TestMaterialize(t *testing.T) {
	s, err := New(Spec{
		Name: "multi step",
		Type: TypeCron, CronExpression: "0 3 * * *",
		Template: Template{
			OriginalRequest:  "rotate and compress logs",
			Commands:         []string{"logrotate /etc/logrotate.conf", "gzip -9 /var/tmp/app.log"},
			WorkingDirectory: "/var/tmp",
			Env:              map[string]string{"LC_ALL": "C"},
			Timeout:          30 * time.Second,
			SafeMode:         true,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cmds, err := s.Template.Materialize(s)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	for i, c := range cmds {
		if c.Status != command.StatusPending {
			t.Fatalf("cmd %d: expected pending, got %s", i, c.Status)
		}
		if c.ScheduleID != s.ID {
			t.Fatalf("cmd %d: missing schedule back-reference", i)
		}
		if c.Type != command.TypeCron {
			t.Fatalf("cmd %d: expected cron type, got %s", i, c.Type)
		}
		if c.WorkingDirectory != "/var/tmp" {
			t.Fatalf("cmd %d: wrong working dir %q", i, c.WorkingDirectory)
		}
		if !c.SafeMode {
			t.Fatalf("cmd %d: safe mode not carried", i)
		}
	}
	if cmds[0].ParsedCommand != "logrotate /etc/logrotate.conf" {
		t.Fatalf("order not preserved: %q", cmds[0].ParsedCommand)
	}

	// each firing materializes fresh command instances
	again, err := s.Template.Materialize(s)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if again[0].ID == cmds[0].ID {
		t.Fatal("expected fresh command ids per materialization")
	}
}

func TestMaterializeEmptyCommands(t *testing.T) {
	s, err := New(Spec{Name: "empty", Template: Template{Timeout: time.Second}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Template.Materialize(s); err == nil {
		t.Fatal("expected error for template with no commands")
	}
}

func TestMaterializeDefaultsTimeout(t *testing.T) {
	s, err := New(Spec{
		Name:     "no timeout",
		Template: Template{Commands: []string{"true"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cmds, err := s.Template.Materialize(s)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if cmds[0].Timeout != command.DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", cmds[0].Timeout)
	}
}
