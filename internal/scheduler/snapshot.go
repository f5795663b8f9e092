package scheduler

import (
	"time"

	"execd/internal/schedule"
)

// Stats is the aggregate view exposed to the reporting layer.
type Stats struct {
	Running  bool
	Total    int
	ByStatus map[schedule.Status]int

	// NextExecution is the soonest upcoming NextRun across active
	// schedules, nil when nothing is pending.
	NextExecution *time.Time
}

// Stats computes counts by status and the soonest upcoming run.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Running:  s.stopCh != nil,
		Total:    len(s.schedules),
		ByStatus: map[schedule.Status]int{},
	}
	for _, sched := range s.schedules {
		st.ByStatus[sched.Status]++
		if sched.IsActive() && sched.NextRun != nil {
			if st.NextExecution == nil || sched.NextRun.Before(*st.NextExecution) {
				t := *sched.NextRun
				st.NextExecution = &t
			}
		}
	}
	return st
}
