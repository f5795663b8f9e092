package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsAndStops(t *testing.T) {
	s := New(context.Background())

	ran := make(chan struct{})
	s.Go("worker", func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return ctx.Err()
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	if s.Active() != 1 {
		t.Fatalf("expected 1 active, got %d", s.Active())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("expected 0 active after Stop, got %d", s.Active())
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())

	s.Go("panicky", func(context.Context) error {
		panic("boom")
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop after panic: %v", err)
	}
}

func TestStopDeadline(t *testing.T) {
	s := New(context.Background())

	// a goroutine that ignores its context
	s.Go("stuck", func(context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestGoRestartRestartsOnError(t *testing.T) {
	s := New(context.Background())

	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("transient")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a restart, got %d runs", runs.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGoRestartStopsOnCleanExit(t *testing.T) {
	s := New(context.Background())

	var runs atomic.Int32
	s.GoRestart("oneshot", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	deadline := time.Now().Add(time.Second)
	for s.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("clean exit should not restart")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}
}
