// Package trace records scheduling events for post-run inspection. The
// scheduler emits one event per observable decision (spawn, dispatch,
// preempt, block, wake, exit, reap, idle); recorders persist them.
package trace

import "github.com/me/gokern/pkg/model"

// EventType classifies a scheduling event.
type EventType string

const (
	EventSpawn     EventType = "spawn"
	EventDispatch  EventType = "dispatch"
	EventPreempt   EventType = "preempt"
	EventBlockTime EventType = "block_time"
	EventBlockPid  EventType = "block_pid"
	EventWake      EventType = "wake"
	EventExit      EventType = "exit"
	EventReap      EventType = "reap"
	EventIdle      EventType = "idle"
)

// Event is one recorded scheduling decision.
type Event struct {
	Seq    uint64     `json:"seq"`
	Time   model.Time `json:"time"`
	Type   EventType  `json:"type"`
	Pid    model.Pid  `json:"pid"`
	Detail string     `json:"detail,omitempty"`
}

// Recorder receives scheduling events. Record is called from inside the
// scheduler's masked section, so implementations must not block on the
// scheduler itself.
type Recorder interface {
	Record(ev Event)
	Close() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(Event) {}
func (Nop) Close() error { return nil }
