package schedule

import (
	"time"

	"execd/internal/command"
)

// Template captures everything needed to (re)materialize the commands a
// schedule runs each time it fires. The scheduler treats it as opaque beyond
// handing it to Materialize.
type Template struct {
	OriginalRequest string
	Commands        []string // parsed shell invocations, dispatched in order

	WorkingDirectory string
	Env              map[string]string
	Timeout          time.Duration
	SafeMode         bool
}

// Materialize builds fresh pending Commands from the template. Each firing
// produces brand-new Command instances carrying the schedule back-reference;
// a retry never reuses a terminal Command.
func (t Template) Materialize(s *Schedule) ([]*command.Command, error) {
	if len(t.Commands) == 0 {
		return nil, &command.ValidationError{Field: "template", Reason: "no commands to materialize"}
	}

	typ := command.TypeScheduled
	if s.Type == TypeCron {
		typ = command.TypeCron
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = command.DefaultTimeout
	}

	cmds := make([]*command.Command, 0, len(t.Commands))
	for _, parsed := range t.Commands {
		cmd, err := command.New(command.Spec{
			OriginalRequest:  t.OriginalRequest,
			ParsedCommand:    parsed,
			Type:             typ,
			WorkingDirectory: t.WorkingDirectory,
			Env:              t.Env,
			Timeout:          timeout,
			SafeMode:         t.SafeMode,
			ScheduleID:       s.ID,
		})
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
