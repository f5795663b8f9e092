// Package executor runs single shell invocations as OS processes with
// enforced timeouts, process-group termination, and cooperative cancellation
// of in-flight work.
//
// Execution outcomes (non-zero exit, timeout, launch failure) are data, not
// errors: they come back inside the ExecutionResult. The only errors Execute
// returns are contract violations (the command is not in an executable state).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"execd/internal/command"
	"execd/internal/eventbus"
	"execd/internal/storage"
	logx "execd/pkg/logx"
)

// DefaultGracePeriod is how long a signaled process group gets to exit
// before it is forcibly killed.
const DefaultGracePeriod = 5 * time.Second

type Config struct {
	// ExtraDenied extends the built-in safety deny-list (operator config).
	ExtraDenied []string

	// GracePeriod between SIGTERM and SIGKILL. 0 means DefaultGracePeriod.
	GracePeriod time.Duration
}

// Service executes commands. Multiple Execute calls may run concurrently;
// each call owns exactly one process and one registry entry keyed by a
// handle unique to that process instance.
type Service struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	running map[string]*execution
	wg      sync.WaitGroup
	closed  bool
}

// execution is one in-flight process.
type execution struct {
	handle    string
	commandID uuid.UUID
	pid       int
	startedAt time.Time

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// New constructs an executor. bus and store may be nil.
func New(cfg Config, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "executor")),
		bus:     bus,
		store:   store,
		running: map[string]*execution{},
	}
}

// Apply updates runtime-tunable settings (safety deny-list extension, grace
// period). Safe to call concurrently with executions.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) grace() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.GracePeriod > 0 {
		return s.cfg.GracePeriod
	}
	return DefaultGracePeriod
}

func (s *Service) extraDenied() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ExtraDenied
}

// Execute runs cmd to completion and returns its result. It blocks for up to
// cmd.Timeout plus the termination grace window.
//
// The returned error is non-nil only for contract violations; process-level
// failures are reported inside the result with Success=false.
func (s *Service) Execute(ctx context.Context, cmd *command.Command) (*command.ExecutionResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	s.mu.Unlock()

	if !cmd.CanExecuteWith(s.extraDenied()) {
		return nil, fmt.Errorf("%w: command %s is not executable (status %q, safe_mode=%v)",
			command.ErrInvalidState, cmd.ID, cmd.Status, cmd.SafeMode)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	res := command.NewResult(cmd)
	start := time.Now()

	proc := exec.Command("sh", "-c", cmd.ParsedCommand)
	proc.Dir = cmd.WorkingDirectory
	proc.Env = mergedEnv(cmd.Env)
	// Own process group, so a timeout or cancel can signal children too.
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if err := proc.Start(); err != nil {
		// Launch failure (binary missing, permission denied, bad workdir):
		// a failed result, never a propagated error.
		res.Success = false
		res.Stderr = err.Error()
		res.Finish()
		_ = cmd.Complete(1, "", err.Error(), time.Since(start))
		s.persist(ctx, res, cmd)
		s.log.Warn("command failed to launch", logx.String("command_id", cmd.ID.String()), logx.Err(err))
		return res, nil
	}

	ex := &execution{
		handle:    uuid.NewString(),
		commandID: cmd.ID,
		pid:       proc.Process.Pid,
		startedAt: res.StartedAt,
		cancelCh:  make(chan struct{}),
	}
	if !s.register(ex) {
		// Shutdown raced the launch; tear the process down instead of
		// leaking it past the cleanup point.
		orphan := make(chan error, 1)
		go func() { orphan <- proc.Wait() }()
		_ = s.terminate(proc.Process.Pid, orphan)
		_ = cmd.Cancel()
		s.log.Warn("command launch lost race with shutdown", logx.String("command_id", cmd.ID.String()))
		return nil, ErrShutdown
	}
	defer s.unregister(ex.handle)

	s.publish(eventbus.TypeExecStarted, execEvent{Handle: ex.handle, CommandID: cmd.ID.String(), PID: ex.pid})
	s.log.Debug("command started",
		logx.String("handle", ex.handle),
		logx.String("command_id", cmd.ID.String()),
		logx.Int("pid", ex.pid),
		logx.Duration("timeout", cmd.Timeout))

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()

	timer := time.NewTimer(cmd.Timeout)
	defer timer.Stop()

	var waitErr error
	outcome := outcomeExited
	select {
	case waitErr = <-done:
	case <-timer.C:
		outcome = outcomeTimeout
		waitErr = s.terminate(proc.Process.Pid, done)
	case <-ex.cancelCh:
		outcome = outcomeCancelled
		waitErr = s.terminate(proc.Process.Pid, done)
	case <-ctx.Done():
		outcome = outcomeCancelled
		waitErr = s.terminate(proc.Process.Pid, done)
	}

	took := time.Since(start)
	res.Finish()

	switch outcome {
	case outcomeTimeout:
		exitCode := -1
		res.Success = false
		res.ExitCode = &exitCode
		res.Stdout = ""
		res.Stderr = fmt.Sprintf("command timed out after %s", cmd.Timeout)
		_ = cmd.Complete(exitCode, "", res.Stderr, took)
		s.publish(eventbus.TypeExecTimeout, execEvent{Handle: ex.handle, CommandID: cmd.ID.String(), PID: ex.pid})
		s.log.Warn("command timed out",
			logx.String("command_id", cmd.ID.String()),
			logx.Duration("timeout", cmd.Timeout),
			logx.Duration("took", took))

	case outcomeCancelled:
		exitCode := -1
		res.Success = false
		res.ExitCode = &exitCode
		res.Stdout = ""
		res.Stderr = "command cancelled"
		_ = cmd.Cancel()
		s.publish(eventbus.TypeExecCancelled, execEvent{Handle: ex.handle, CommandID: cmd.ID.String(), PID: ex.pid})
		s.log.Info("command cancelled", logx.String("command_id", cmd.ID.String()), logx.Duration("took", took))

	default:
		exitCode := exitCodeFrom(waitErr)
		res.Success = exitCode == 0
		res.ExitCode = &exitCode
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		_ = cmd.Complete(exitCode, res.Stdout, res.Stderr, took)
		s.publish(eventbus.TypeExecFinished, execEvent{Handle: ex.handle, CommandID: cmd.ID.String(), PID: ex.pid, ExitCode: exitCode})
		s.log.Debug("command finished",
			logx.String("command_id", cmd.ID.String()),
			logx.Int("exit_code", exitCode),
			logx.Duration("took", took))
	}

	s.persist(ctx, res, cmd)
	return res, nil
}

type outcomeKind int

const (
	outcomeExited outcomeKind = iota
	outcomeTimeout
	outcomeCancelled
)

type execEvent struct {
	Handle    string `json:"handle"`
	CommandID string `json:"command_id"`
	PID       int    `json:"pid"`
	ExitCode  int    `json:"exit_code,omitempty"`
}

// terminate signals the process group with SIGTERM, waits out the grace
// period, and escalates to SIGKILL. It returns the final Wait error.
func (s *Service) terminate(pid int, done <-chan error) error {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case err := <-done:
		return err
	case <-time.After(s.grace()):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		return <-done
	}
}

func exitCodeFrom(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if ee, ok := waitErr.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// mergedEnv overlays overrides on the inherited process environment.
// exec uses the last value for duplicate keys, so appending wins.
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s *Service) persist(ctx context.Context, res *command.ExecutionResult, cmd *command.Command) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendExecution(ctx, storage.RecordFrom(res, cmd.ParsedCommand)); err != nil {
		s.log.Warn("execution record not persisted", logx.Err(err))
	}
}
