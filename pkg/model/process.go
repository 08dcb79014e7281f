package model

import (
	"fmt"
	"math"
	"time"
)

// Pid identifies a process table entry. Pids are allocated sequentially
// starting at 1 and are never reused within one kernel lifetime.
type Pid uint64

// NoPid is the zero pid. It marks "no current process" on the CPU and is
// never assigned to a table entry.
const NoPid Pid = 0

// String returns the pid in "pid_N" form for logs and API payloads.
func (p Pid) String() string {
	return fmt.Sprintf("pid_%d", uint64(p))
}

// Time is a monotonic instant measured in nanoseconds since kernel boot.
type Time int64

// Add returns the instant d after t.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d)
}

// Sub returns the duration from u to t.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t - u)
}

// String formats the instant as a duration since boot.
func (t Time) String() string {
	return time.Duration(t).String()
}

// MaxCounter is the initial scheduling weight of every new process.
const MaxCounter = uint64(math.MaxUint64)

// Priority is the declared importance of a process. Higher priorities
// receive smaller counter decrements per dispatch, so they stay
// competitive in the ready queue for longer.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// String returns the string representation of the priority level.
func (p Priority) String() string {
	return string(p)
}

// Valid returns true for a known priority level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priority levels; larger is more urgent. Used only to break
// counter ties deterministically.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Decrement is the amount subtracted from a process's scheduling counter
// each time it is chosen to run. Inversely related to the priority level.
func (p Priority) Decrement() uint64 {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 4
	case PriorityNormal:
		return 16
	default:
		return 64
	}
}

// ChildExit records a dead child's exit code on its parent, so a
// non-blocking collect can observe the exit after the child's table
// entry has been reaped.
type ChildExit struct {
	Pid  Pid `json:"pid"`
	Code int `json:"code"`
}
