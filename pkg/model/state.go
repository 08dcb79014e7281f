package model

// ProcessState represents the lifecycle state of a process table entry.
type ProcessState string

const (
	// StateScheduled marks a process that is runnable but not on the CPU.
	StateScheduled ProcessState = "SCHEDULED"
	// StateRunning marks the process currently on the CPU. At most one
	// entry is RUNNING at any instant.
	StateRunning ProcessState = "RUNNING"
	// StateWaitingTime marks a process blocked until a monotonic deadline.
	StateWaitingTime ProcessState = "WAITING_TIME"
	// StateWaitingPid marks a process blocked until another process exits.
	StateWaitingPid ProcessState = "WAITING_PID"
	// StateExited is terminal. The entry is removed by the reap step of a
	// later schedule pass, never by the exit path itself.
	StateExited ProcessState = "EXITED"
)

// String returns the string representation of the process state.
func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal returns true if the process is in a final state.
func (s ProcessState) IsTerminal() bool {
	return s == StateExited
}

// IsWaiting returns true if the process is blocked on a wake condition.
func (s ProcessState) IsWaiting() bool {
	return s == StateWaitingTime || s == StateWaitingPid
}

// ValidTransitions defines the allowed state transitions for processes.
// The waiting states return to SCHEDULED only through the waiting scan,
// and the dispatch step is the only path into RUNNING.
var ValidTransitions = map[ProcessState][]ProcessState{
	StateScheduled:   {StateRunning},
	StateRunning:     {StateScheduled, StateWaitingTime, StateWaitingPid, StateExited},
	StateWaitingTime: {StateScheduled},
	StateWaitingPid:  {StateScheduled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcessState) CanTransitionTo(next ProcessState) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
