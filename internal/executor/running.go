package executor

import (
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	logx "execd/pkg/logx"
)

// ProcessInfo is best-effort live telemetry for one in-flight execution.
type ProcessInfo struct {
	Handle    string
	CommandID uuid.UUID
	PID       int
	StartedAt time.Time

	// Sampled at call time; zero values when the OS query fails.
	Status     string
	CPUPercent float64
	MemoryRSS  uint64
}

// register tracks a freshly launched process. It re-checks the shutdown flag
// under the same lock so a launch racing Shutdown cannot slip in after the
// shutdown snapshot; the caller must terminate the process when it returns
// false.
func (s *Service) register(ex *execution) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.running[ex.handle] = ex
	s.mu.Unlock()
	return true
}

// unregister removes the bookkeeping entry exactly once; it is the only
// removal path for any completion (normal, timeout, cancel, shutdown).
func (s *Service) unregister(handle string) {
	s.mu.Lock()
	_, ok := s.running[handle]
	delete(s.running, handle)
	s.mu.Unlock()
	if ok {
		s.wg.Done()
	}
}

// Cancel requests graceful-then-forced termination of the in-flight
// execution identified by handle. It returns false when no such execution is
// tracked (unknown handle, or already finished). Cancellation is
// cooperative: the process is signaled, not stopped instantaneously.
func (s *Service) Cancel(handle string) bool {
	s.mu.Lock()
	ex, ok := s.running[handle]
	s.mu.Unlock()
	if !ok {
		return false
	}
	ex.cancelOnce.Do(func() { close(ex.cancelCh) })
	return true
}

// ListRunning samples live telemetry for every tracked execution. A process
// that exited between registration and inspection is silently omitted.
func (s *Service) ListRunning() map[string]ProcessInfo {
	s.mu.Lock()
	snapshot := make([]*execution, 0, len(s.running))
	for _, ex := range s.running {
		snapshot = append(snapshot, ex)
	}
	s.mu.Unlock()

	out := make(map[string]ProcessInfo, len(snapshot))
	for _, ex := range snapshot {
		p, err := process.NewProcess(int32(ex.pid))
		if err != nil {
			continue
		}
		info := ProcessInfo{
			Handle:    ex.handle,
			CommandID: ex.commandID,
			PID:       ex.pid,
			StartedAt: ex.startedAt,
		}
		if statuses, err := p.Status(); err == nil && len(statuses) > 0 {
			info.Status = statuses[0]
		} else if err != nil {
			// Gone between snapshot and sample.
			continue
		}
		if cpu, err := p.CPUPercent(); err == nil {
			info.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			info.MemoryRSS = mem.RSS
		}
		out[ex.handle] = info
	}
	return out
}

// Shutdown terminates every tracked execution (same graceful-then-forced
// sequence as timeout handling), waits for their Execute calls to return,
// and clears internal bookkeeping. Subsequent Execute calls are rejected.
func (s *Service) Shutdown() {
	s.mu.Lock()
	s.closed = true
	snapshot := make([]*execution, 0, len(s.running))
	for _, ex := range s.running {
		snapshot = append(snapshot, ex)
	}
	s.mu.Unlock()

	for _, ex := range snapshot {
		ex.cancelOnce.Do(func() { close(ex.cancelCh) })
	}
	s.wg.Wait()

	s.mu.Lock()
	s.running = map[string]*execution{}
	s.mu.Unlock()

	if len(snapshot) > 0 {
		s.log.Info("executor shut down", logx.Int("terminated", len(snapshot)))
	}
}
