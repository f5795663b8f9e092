package app

import (
	"testing"
	"time"

	"execd/internal/command"
	"execd/internal/config"
	"execd/internal/schedule"
)

func TestMapExecutorConfig(t *testing.T) {
	cfg := &config.Config{Executor: config.ExecutorConfig{
		GracePeriod:    "3s",
		DeniedCommands: []string{" curl ", "", "wget"},
	}}
	ec, err := mapExecutorConfig(cfg)
	if err != nil {
		t.Fatalf("mapExecutorConfig: %v", err)
	}
	if ec.GracePeriod != 3*time.Second {
		t.Fatalf("grace period: %v", ec.GracePeriod)
	}
	if len(ec.ExtraDenied) != 2 || ec.ExtraDenied[0] != "curl" {
		t.Fatalf("deny list not normalized: %v", ec.ExtraDenied)
	}

	cfg.Executor.GracePeriod = "3 seconds"
	if _, err := mapExecutorConfig(cfg); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestMapStorageConfig(t *testing.T) {
	if _, enabled, err := mapStorageConfig(&config.Config{}); err != nil || enabled {
		t.Fatalf("nil section must disable storage, got %v/%v", enabled, err)
	}

	cfg := &config.Config{Storage: &config.StorageConfig{Driver: "none"}}
	if _, enabled, _ := mapStorageConfig(cfg); enabled {
		t.Fatal("driver none must disable storage")
	}

	cfg = &config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}
	if _, _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("sqlite without path must fail")
	}

	cfg = &config.Config{Storage: &config.StorageConfig{Driver: "SQLite3", Path: "./x.db", BusyTimeout: "2s"}}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		t.Fatalf("got %v/%v", enabled, err)
	}
	if sc.Driver != "sqlite3" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("unexpected mapping %+v", sc)
	}

	cfg = &config.Config{Storage: &config.StorageConfig{Driver: "redis", Path: "x"}}
	if _, _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestBuildSchedules(t *testing.T) {
	cfg := &config.Config{
		Executor: config.ExecutorConfig{DefaultTimeout: "90s"},
		Schedules: []config.ScheduleConfig{
			{
				Name:           "log rotation",
				Type:           "cron",
				CronExpression: "0 3 * * *",
				Commands:       []string{"logrotate /etc/logrotate.conf"},
				MaxRetries:     5,
			},
			{
				Name:      "one off",
				Type:      "once",
				StartTime: "2026-09-01T10:00:00Z",
				Commands:  []string{"echo hi"},
				Timeout:   "15s",
			},
		},
	}

	scheds, err := buildSchedules(cfg)
	if err != nil {
		t.Fatalf("buildSchedules: %v", err)
	}
	if len(scheds) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(scheds))
	}

	cronSched := scheds[0]
	if cronSched.Type != schedule.TypeCron || cronSched.MaxRetries != 5 {
		t.Fatalf("cron schedule not mapped: %+v", cronSched)
	}
	// executor-wide default timeout flows into the template
	if cronSched.Template.Timeout != 90*time.Second {
		t.Fatalf("default timeout not applied: %v", cronSched.Template.Timeout)
	}
	// safe mode defaults to on
	if !cronSched.Template.SafeMode {
		t.Fatal("safe mode should default to true")
	}

	onceSched := scheds[1]
	if onceSched.Type != schedule.TypeOnce {
		t.Fatalf("once schedule not mapped: %+v", onceSched)
	}
	if onceSched.StartTime == nil || onceSched.StartTime.Location() != time.UTC {
		t.Fatalf("start time not parsed as UTC: %v", onceSched.StartTime)
	}
	if onceSched.Template.Timeout != 15*time.Second {
		t.Fatalf("per-schedule timeout not applied: %v", onceSched.Template.Timeout)
	}
}

func TestBuildSchedulesErrors(t *testing.T) {
	base := config.ScheduleConfig{Name: "x", Commands: []string{"true"}}

	bad := base
	bad.Type = "hourly"
	if _, err := buildSchedules(&config.Config{Schedules: []config.ScheduleConfig{bad}}); err == nil {
		t.Fatal("expected error for unknown type")
	}

	bad = base
	bad.StartTime = "tomorrow"
	if _, err := buildSchedules(&config.Config{Schedules: []config.ScheduleConfig{bad}}); err == nil {
		t.Fatal("expected error for bad timestamp")
	}

	bad = base
	bad.Type = "cron"
	bad.CronExpression = "every 5 minutes"
	if _, err := buildSchedules(&config.Config{Schedules: []config.ScheduleConfig{bad}}); err == nil {
		t.Fatal("expected error for bad cron expression")
	}
}

func TestDefaultCommandTimeout(t *testing.T) {
	d, err := defaultCommandTimeout(&config.Config{})
	if err != nil || d != command.DefaultTimeout {
		t.Fatalf("expected built-in default, got %v/%v", d, err)
	}
	d, err = defaultCommandTimeout(&config.Config{Executor: config.ExecutorConfig{DefaultTimeout: "10s"}})
	if err != nil || d != 10*time.Second {
		t.Fatalf("got %v/%v", d, err)
	}
}
