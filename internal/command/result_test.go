package command

import (
	"testing"
	"time"
)

func TestResultFinishIdempotent(t *testing.T) {
	cmd := newTestCommand(t, "echo hi", false)
	res := NewResult(cmd)
	if res.CommandID != cmd.ID {
		t.Fatal("result must reference the command")
	}

	res.Finish()
	first := res.CompletedAt
	if first.IsZero() {
		t.Fatal("Finish must stamp CompletedAt")
	}
	if res.Duration < 0 {
		t.Fatalf("negative duration: %v", res.Duration)
	}

	time.Sleep(5 * time.Millisecond)
	res.Finish()
	if !res.CompletedAt.Equal(first) {
		t.Fatal("second Finish must not restamp")
	}
}

func TestResultSuccessful(t *testing.T) {
	zero, one := 0, 1

	r := &ExecutionResult{Success: true}
	if !r.Successful() {
		t.Fatal("success with no exit code should be successful")
	}
	r = &ExecutionResult{Success: true, ExitCode: &zero}
	if !r.Successful() {
		t.Fatal("success with exit 0 should be successful")
	}
	r = &ExecutionResult{Success: true, ExitCode: &one}
	if r.Successful() {
		t.Fatal("exit 1 must not be successful regardless of flag")
	}
	r = &ExecutionResult{Success: false, ExitCode: &zero}
	if r.Successful() {
		t.Fatal("failed flag must win")
	}

	if (&ExecutionResult{Stderr: "boom", Success: true}).HasErrors() != true {
		t.Fatal("stderr should count as errors")
	}
	if (&ExecutionResult{Stdout: "  ", Success: true}).HasOutput() {
		t.Fatal("whitespace-only stdout is not output")
	}
}
