package sched

import "github.com/me/gokern/pkg/model"

// ProcessInfo is a read-only view of one table entry.
type ProcessInfo struct {
	Pid      model.Pid          `json:"pid"`
	Parent   model.Pid          `json:"parent"`
	Name     string             `json:"name"`
	State    model.ProcessState `json:"state"`
	Priority model.Priority     `json:"priority"`
	Counter  uint64             `json:"counter"`

	WakeDeadline model.Time `json:"wake_deadline,omitempty"`
	WaitTarget   model.Pid  `json:"wait_target,omitempty"`
	ExitCode     int        `json:"exit_code,omitempty"`

	Waiters        []model.Pid       `json:"waiters,omitempty"`
	CollectedExits []model.ChildExit `json:"collected_exits,omitempty"`
}

// Snapshot is a consistent view of the scheduler taken between passes.
type Snapshot struct {
	Now        model.Time    `json:"now"`
	Current    model.Pid     `json:"current"`
	Passes     uint64        `json:"passes"`
	Dispatches uint64        `json:"dispatches"`
	Ready      int           `json:"ready"`
	Waiting    int           `json:"waiting"`
	Processes  []ProcessInfo `json:"processes"`
}

// Snapshot captures the current scheduler state. It serializes against
// the pass loop, so callers on other goroutines (the inspector) always
// observe pass boundaries, never a half-made decision.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Now:        s.clk.Now(),
		Current:    s.cpu.CurrentPid(),
		Passes:     s.passes,
		Dispatches: s.dispatches,
		Ready:      s.ready.Len(),
		Waiting:    s.waiting.len(),
	}
	for _, pid := range s.tbl.Pids() {
		e, _ := s.tbl.Get(pid)
		info := ProcessInfo{
			Pid:          e.Pid,
			Parent:       e.Parent,
			Name:         e.Name,
			State:        e.State,
			Priority:     e.Priority,
			Counter:      e.Counter,
			WakeDeadline: e.WakeDeadline,
			WaitTarget:   e.WaitTarget,
			ExitCode:     e.ExitCode,
		}
		if len(e.Waiters) > 0 {
			info.Waiters = append([]model.Pid(nil), e.Waiters...)
		}
		if len(e.CollectedExits) > 0 {
			info.CollectedExits = append([]model.ChildExit(nil), e.CollectedExits...)
		}
		snap.Processes = append(snap.Processes, info)
	}
	return snap
}

// Process returns the view of one pid, if it is still in the table.
func (s *Scheduler) Process(pid model.Pid) (ProcessInfo, bool) {
	for _, info := range s.Snapshot().Processes {
		if info.Pid == pid {
			return info, true
		}
	}
	return ProcessInfo{}, false
}
