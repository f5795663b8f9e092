package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Executor controls command execution (timeouts, kill grace, deny list).
	Executor ExecutorConfig `json:"executor"`

	// Scheduler controls the polling loop for time-based execution.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage controls the optional execution-history store. Nil means
	// history persistence is disabled.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Schedules are registered at startup, before the scheduler loop runs.
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ExecutorConfig controls the execution engine.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type ExecutorConfig struct {
	// DefaultTimeout applies to commands that don't carry their own.
	// Empty or "0s" falls back to the built-in default.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	// GracePeriod is how long a timed-out or cancelled process group gets
	// between SIGTERM and SIGKILL.
	GracePeriod string `json:"grace_period,omitempty"`

	// DeniedCommands extends the built-in deny list with additional
	// substrings (matched case-insensitively).
	DeniedCommands []string `json:"denied_commands,omitempty"`
}

// SchedulerConfig controls the scheduler (trigger) loop.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// PollInterval is a Go duration string. Empty or "0s" keeps the
	// built-in one-second default.
	PollInterval string `json:"poll_interval,omitempty"`

	// ErrorBackoff is how long the loop sleeps after a tick failure.
	ErrorBackoff string `json:"error_backoff,omitempty"`
}

// StorageConfig controls the execution-history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./execd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig is a declarative schedule registered at startup.
//
// Type is "once", "recurring" or "cron". Timestamps are RFC3339 and are
// interpreted as UTC.
type ScheduleConfig struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type"`
	CronExpression string `json:"cron_expression,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`

	// MaxExecutions caps total runs; 0 means unlimited.
	MaxExecutions int `json:"max_executions,omitempty"`
	MaxRetries    int `json:"max_retries,omitempty"`

	// Commands run in order when the schedule fires.
	Commands         []string          `json:"commands"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Env              map[string]string `json:"env,omitempty"`

	// Timeout is a Go duration string applied per command.
	Timeout string `json:"timeout,omitempty"`

	// SafeMode is a pointer so an omitted field defaults to true.
	SafeMode *bool `json:"safe_mode,omitempty"`
}
