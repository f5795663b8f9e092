package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"execd/internal/eventbus"
	"execd/internal/schedule"
	logx "execd/pkg/logx"
)

// loop is the single scheduling goroutine. It wakes at the poll interval,
// processes due schedules, cleans up terminal ones, and on a tick failure
// backs off instead of tight-looping.
func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}) error {
	timer := time.NewTimer(s.pollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return context.Canceled
		case <-timer.C:
		}

		wait := s.pollInterval()
		if err := s.tick(ctx); err != nil {
			if s.errLog.Allow() {
				s.log.Error("scheduler tick failed", logx.Err(err))
			}
			wait = s.errorBackoff()
		}
		timer.Reset(wait)
	}
}

// tick runs one polling cycle. A panic while processing is converted into an
// error so the loop survives and backs off.
func (s *Service) tick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tick panic: %v", p)
		}
	}()

	now := time.Now().UTC()
	for _, sched := range s.dueSchedules(now) {
		s.processDue(ctx, sched)
	}
	s.cleanupTerminal()
	return nil
}

// dueSchedules snapshots the schedules that should fire at now.
func (s *Service) dueSchedules(now time.Time) []*schedule.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*schedule.Schedule
	for _, sched := range s.schedules {
		if sched.Due(now) {
			due = append(due, sched)
		}
	}
	return due
}

// processDue runs one execution cycle for a due schedule: materialize the
// template, dispatch each command in order, then apply outcome bookkeeping.
// Individual command failure is a normal outcome; only an error from the
// dispatch path itself counts against the retry budget.
func (s *Service) processDue(ctx context.Context, sched *schedule.Schedule) {
	s.log.Debug("schedule due",
		logx.String("schedule_id", sched.ID.String()),
		logx.String("name", sched.Name))

	dispatchErr := s.dispatch(ctx, sched)

	s.mu.Lock()
	defer s.mu.Unlock()

	if dispatchErr != nil {
		sched.MarkDispatchFailed()
		if sched.Status == schedule.StatusFailed {
			s.log.Error("schedule failed after max retries",
				logx.String("schedule_id", sched.ID.String()),
				logx.String("name", sched.Name),
				logx.Int("retries", sched.RetryCount),
				logx.Err(dispatchErr))
			s.publish(eventbus.TypeScheduleFailed, scheduleEvent(sched))
		} else {
			s.log.Warn("schedule dispatch failed, will retry",
				logx.String("schedule_id", sched.ID.String()),
				logx.Int("retry", sched.RetryCount),
				logx.Int("max_retries", sched.MaxRetries),
				logx.Err(dispatchErr))
		}
		return
	}

	sched.MarkExecuted(time.Now().UTC())
	s.publish(eventbus.TypeScheduleFired, scheduleEvent(sched))
	if sched.Status == schedule.StatusCompleted {
		s.log.Info("schedule completed",
			logx.String("schedule_id", sched.ID.String()),
			logx.String("name", sched.Name),
			logx.Int("executions", sched.ExecutionCount))
		s.publish(eventbus.TypeScheduleCompleted, scheduleEvent(sched))
	}
}

// dispatch materializes the schedule's template and routes every command
// through the executor, FIFO. Results with Success=false are still a
// successful dispatch; an executor error aborts the remaining commands.
func (s *Service) dispatch(ctx context.Context, sched *schedule.Schedule) error {
	// Executions outlive the polling loop: stopping the scheduler must not
	// cancel work already handed to the executor, so the dispatch context is
	// detached from the loop's cancellation. Timeouts are enforced per
	// command by the executor itself.
	ctx = context.WithoutCancel(ctx)

	cmds, err := sched.Template.Materialize(sched)
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}
	for _, cmd := range cmds {
		res, err := s.exec.Execute(ctx, cmd)
		if err != nil {
			return fmt.Errorf("execute %q: %w", cmd.ParsedCommand, err)
		}
		if !res.Successful() {
			s.log.Debug("scheduled command failed",
				logx.String("schedule_id", sched.ID.String()),
				logx.String("command_id", cmd.ID.String()),
				logx.Any("exit_code", res.ExitCode))
		}
	}
	return nil
}

// cleanupTerminal drops completed/failed schedules from the active set at
// the end of the tick. Schedules that quietly reached their execution
// ceiling are completed on the way out.
func (s *Service) cleanupTerminal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var drop []uuid.UUID
	for id, sched := range s.schedules {
		if sched.Status.Terminal() {
			drop = append(drop, id)
			continue
		}
		if sched.MaxExecutions > 0 && sched.ExecutionCount >= sched.MaxExecutions {
			sched.Complete()
			s.publish(eventbus.TypeScheduleCompleted, scheduleEvent(sched))
			drop = append(drop, id)
		}
	}
	for _, id := range drop {
		_ = s.removeLocked(id)
	}
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

type schedEvent struct {
	ScheduleID string `json:"schedule_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Executions int    `json:"executions"`
	Retries    int    `json:"retries"`
}

func scheduleEvent(sched *schedule.Schedule) schedEvent {
	return schedEvent{
		ScheduleID: sched.ID.String(),
		Name:       sched.Name,
		Status:     string(sched.Status),
		Executions: sched.ExecutionCount,
		Retries:    sched.RetryCount,
	}
}
