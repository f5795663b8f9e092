package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "execd/pkg/logx"
)

func TestSQLiteRoundTrip(t *testing.T) {
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "exec.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	first := record("echo first", true)
	first.StartedAt = time.Now().UTC().Add(-2 * time.Minute)
	second := record("echo second >&2; false", false)
	second.ScheduleID = ""
	second.Stderr = "echo second"

	if err := st.AppendExecution(ctx, first); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}
	if err := st.AppendExecution(ctx, second); err != nil {
		t.Fatalf("AppendExecution: %v", err)
	}

	recs, err := st.RecentExecutions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentExecutions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// newest first
	if recs[0].ID != second.ID {
		t.Fatalf("expected newest record first, got %q", recs[0].ID)
	}
	if recs[0].Success {
		t.Fatal("failed execution should round-trip as failed")
	}
	if recs[0].ExitCode == nil || *recs[0].ExitCode != 1 {
		t.Fatalf("exit code not round-tripped: %v", recs[0].ExitCode)
	}
	if recs[1].CompletedAt == nil {
		t.Fatal("completed timestamp not round-tripped")
	}

	// limit applies
	recs, err = st.RecentExecutions(ctx, 1)
	if err != nil {
		t.Fatalf("RecentExecutions: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != second.ID {
		t.Fatalf("limit not applied: %+v", recs)
	}
}
