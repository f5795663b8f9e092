package app

import (
	"fmt"
	"strings"
	"time"

	"execd/internal/command"
	"execd/internal/config"
	"execd/internal/executor"
	"execd/internal/schedule"
	"execd/internal/scheduler"
	"execd/internal/storage"
)

func mapExecutorConfig(cfg *config.Config) (executor.Config, error) {
	if cfg == nil {
		return executor.Config{}, nil
	}
	grace, err := config.ParseDurationField("executor.grace_period", cfg.Executor.GracePeriod)
	if err != nil {
		return executor.Config{}, err
	}
	denied := make([]string, 0, len(cfg.Executor.DeniedCommands))
	for _, d := range cfg.Executor.DeniedCommands {
		if s := strings.TrimSpace(d); s != "" {
			denied = append(denied, s)
		}
	}
	return executor.Config{
		ExtraDenied: denied,
		GracePeriod: grace,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	if cfg == nil {
		return scheduler.Config{}, nil
	}
	poll, err := config.ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoff, err := config.ParseDurationField("scheduler.error_backoff", cfg.Scheduler.ErrorBackoff)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		PollInterval: poll,
		ErrorBackoff: backoff,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// defaultCommandTimeout resolves executor.default_timeout, falling back to
// the built-in default when omitted.
func defaultCommandTimeout(cfg *config.Config) (time.Duration, error) {
	if cfg == nil {
		return command.DefaultTimeout, nil
	}
	return config.ParseDurationOrDefault(
		"executor.default_timeout", cfg.Executor.DefaultTimeout, command.DefaultTimeout)
}

// buildSchedules converts declarative schedule entries into validated
// Schedules. Entries share the executor-wide default timeout unless they
// carry their own.
func buildSchedules(cfg *config.Config) ([]*schedule.Schedule, error) {
	if cfg == nil || len(cfg.Schedules) == 0 {
		return nil, nil
	}
	defTimeout, err := defaultCommandTimeout(cfg)
	if err != nil {
		return nil, err
	}

	out := make([]*schedule.Schedule, 0, len(cfg.Schedules))
	for i, sc := range cfg.Schedules {
		spec, err := scheduleSpec(sc, defTimeout)
		if err != nil {
			return nil, fmt.Errorf("schedules[%d] (%s): %w", i, sc.Name, err)
		}
		sched, err := schedule.New(spec)
		if err != nil {
			return nil, fmt.Errorf("schedules[%d] (%s): %w", i, sc.Name, err)
		}
		out = append(out, sched)
	}
	return out, nil
}

func scheduleSpec(sc config.ScheduleConfig, defTimeout time.Duration) (schedule.Spec, error) {
	var typ schedule.Type
	switch strings.ToLower(strings.TrimSpace(sc.Type)) {
	case "once", "":
		typ = schedule.TypeOnce
	case "recurring":
		typ = schedule.TypeRecurring
	case "cron":
		typ = schedule.TypeCron
	default:
		return schedule.Spec{}, fmt.Errorf("unknown schedule type: %s", sc.Type)
	}

	start, err := parseTimeField("start_time", sc.StartTime)
	if err != nil {
		return schedule.Spec{}, err
	}
	end, err := parseTimeField("end_time", sc.EndTime)
	if err != nil {
		return schedule.Spec{}, err
	}

	timeout := defTimeout
	if strings.TrimSpace(sc.Timeout) != "" {
		timeout, err = config.ParseDurationField("timeout", sc.Timeout)
		if err != nil {
			return schedule.Spec{}, err
		}
	}

	safeMode := true
	if sc.SafeMode != nil {
		safeMode = *sc.SafeMode
	}

	return schedule.Spec{
		Name:           sc.Name,
		Description:    sc.Description,
		Type:           typ,
		CronExpression: sc.CronExpression,
		StartTime:      start,
		EndTime:        end,
		MaxExecutions:  sc.MaxExecutions,
		MaxRetries:     sc.MaxRetries,
		Template: schedule.Template{
			OriginalRequest:  sc.Name,
			Commands:         sc.Commands,
			WorkingDirectory: sc.WorkingDirectory,
			Env:              sc.Env,
			Timeout:          timeout,
			SafeMode:         safeMode,
		},
	}, nil
}

func parseTimeField(field, raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid RFC3339 timestamp %q: %w", field, raw, err)
	}
	u := t.UTC()
	return &u, nil
}
