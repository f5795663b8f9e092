// Package command defines the execution domain entities: Command (one shell
// invocation plus state and security metadata) and ExecutionResult (the
// immutable outcome record of one execution attempt).
//
// State transitions are one-way:
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// A retry is never a resubmission of a terminal Command; it is a brand-new
// Command sharing the same ScheduleID.
package command
