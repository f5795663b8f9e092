// Package scheduler owns the set of registered schedules, polls for due
// work on a dedicated background loop, dispatches command templates through
// the executor, and applies retry/completion transitions.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"execd/internal/command"
	"execd/internal/eventbus"
	"execd/internal/runtime/supervisor"
	"execd/internal/schedule"
	logx "execd/pkg/logx"
)

const (
	// DefaultPollInterval is how often the loop wakes to look for due work.
	DefaultPollInterval = time.Second
	// DefaultErrorBackoff is how long the loop sleeps after a tick failure
	// instead of tight-looping on a persistent problem.
	DefaultErrorBackoff = 5 * time.Second
)

type Config struct {
	PollInterval time.Duration // 0 means DefaultPollInterval
	ErrorBackoff time.Duration // 0 means DefaultErrorBackoff
}

// Dispatcher executes one materialized command. Satisfied by
// *executor.Service.
type Dispatcher interface {
	Execute(ctx context.Context, cmd *command.Command) (*command.ExecutionResult, error)
}

// Service is the recurrence engine. The schedule collection is shared
// between the polling loop and registration/control calls and is guarded by
// one mutex; every schedule mutation happens under it.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	schedules map[uuid.UUID]*schedule.Schedule

	log  logx.Logger
	bus  eventbus.Bus
	exec Dispatcher

	sup    *supervisor.Supervisor
	stopCh chan struct{}

	// Throttles repeated tick-failure logs while the loop backs off.
	errLog *rate.Limiter
}

// New constructs a scheduler around the given dispatcher. bus may be nil.
func New(cfg Config, exec Dispatcher, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		schedules: map[uuid.UUID]*schedule.Schedule{},
		log:       log.With(logx.String("comp", "scheduler")),
		bus:       bus,
		exec:      exec,
		errLog:    rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// Apply updates loop tunables. Takes effect on the next tick.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) pollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.PollInterval > 0 {
		return s.cfg.PollInterval
	}
	return DefaultPollInterval
}

func (s *Service) errorBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.ErrorBackoff > 0 {
		return s.cfg.ErrorBackoff
	}
	return DefaultErrorBackoff
}

// Add registers sched and computes its first NextRun. Only active schedules
// are accepted.
func (s *Service) Add(sched *schedule.Schedule) error {
	if sched == nil {
		return errors.New("nil schedule")
	}
	if !sched.IsActive() {
		return errors.New("schedule is not active")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	sched.UpdateNextRun(now)
	s.schedules[sched.ID] = sched
	s.log.Info("schedule added",
		logx.String("schedule_id", sched.ID.String()),
		logx.String("name", sched.Name),
		logx.String("type", string(sched.Type)),
		nextRunField(sched))
	return nil
}

// Remove deletes a schedule by id. Idempotent: reports whether anything was
// actually removed.
func (s *Service) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Service) removeLocked(id uuid.UUID) bool {
	sched, ok := s.schedules[id]
	if !ok {
		return false
	}
	delete(s.schedules, id)
	s.log.Info("schedule removed",
		logx.String("schedule_id", id.String()),
		logx.String("name", sched.Name))
	return true
}

// Pause suspends an active schedule; any other state is a no-op. Returns
// whether the schedule exists.
func (s *Service) Pause(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return false
	}
	sched.Pause()
	return true
}

// Resume reactivates a paused schedule and recomputes its NextRun; any other
// state is a no-op. Returns whether the schedule exists.
func (s *Service) Resume(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return false
	}
	sched.Resume(time.Now().UTC())
	return true
}

// Get returns a copy of the schedule with the given id.
func (s *Service) Get(id uuid.UUID) (schedule.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return schedule.Schedule{}, false
	}
	return *sched, true
}

// List returns copies of all registered schedules.
func (s *Service) List() []schedule.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schedule.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, *sched)
	}
	return out
}

// Start launches the polling loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("poll", func(c context.Context) error {
		return s.loop(c, stopCh)
	})
	s.log.Info("scheduler started", logx.Duration("poll_interval", s.pollInterval()))
}

// Stop halts the polling loop and waits for it to exit. It does not touch
// executions already dispatched to the executor; a full shutdown stops the
// scheduler first and then shuts the executor down.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	if sup != nil {
		_ = sup.Stop(ctx)
	}
	s.log.Info("scheduler stopped")
}

func nextRunField(sched *schedule.Schedule) logx.Field {
	if sched.NextRun == nil {
		return logx.String("next_run", "none")
	}
	return logx.Time("next_run", *sched.NextRun)
}
