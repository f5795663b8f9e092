package app

// StopReason records why the process is shutting down; it ends up in the
// final log lines.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopAppStop    StopReason = "app_stop"
	StopFatalError StopReason = "fatal_error"
)
