package model

import "time"

// Syscall numbers, placed in RAX before the syscall trap is raised. The
// single argument travels in RDI and the return value comes back in RAX,
// so a woken waiter finds the target's exit code in its RAX.
const (
	SysExit    uint64 = 1
	SysSleep   uint64 = 2
	SysWaitPid uint64 = 3
	SysYield   uint64 = 4
)

// Instr is one instruction of a simulated program. The set is closed:
// the CPU dispatches on the concrete type, never through arbitrary
// function values.
type Instr interface {
	isInstr()
}

// Compute occupies the CPU for Cost timer ticks without trapping. It is
// a counted instruction: the remaining count lives in RCX, so a process
// preempted mid-Compute resumes exactly where it left off.
type Compute struct {
	Cost uint64
}

// Sleep blocks the process until now + Duration has elapsed. The kernel
// translates the duration into an absolute monotonic deadline.
type Sleep struct {
	Duration time.Duration
}

// WaitPid blocks the process until Target exits, delivering the target's
// exit code in RAX. Waiting on an already-dead pid returns immediately.
type WaitPid struct {
	Target Pid
}

// Exit terminates the process with Code. It never returns.
type Exit struct {
	Code int
}

func (Compute) isInstr() {}
func (Sleep) isInstr()   {}
func (WaitPid) isInstr() {}
func (Exit) isInstr()    {}

// Program is the text segment of a process: the instruction stream its
// address space maps, indexed by RIP.
type Program []Instr

// Terminated reports whether the program ends in an Exit, i.e. whether
// execution can never run off the end of the text segment.
func (p Program) Terminated() bool {
	if len(p) == 0 {
		return false
	}
	_, ok := p[len(p)-1].(Exit)
	return ok
}
