// Package table owns the global process table: the single arena every
// trap and syscall path goes through to reach per-process state. Entries
// are reached by pid lookup only; parent, child, and waiter relations are
// stored as plain pids, never as pointers, so there are no reference
// cycles to manage.
//
// The table is mutated only from the scheduler's masked section and does
// no locking of its own.
package table

import (
	"fmt"

	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/pkg/model"
)

// Entry is one process table entry.
type Entry struct {
	Pid      model.Pid
	Parent   model.Pid
	Name     string
	State    model.ProcessState
	Priority model.Priority

	// Counter is the decaying scheduling weight. It starts at MaxCounter,
	// drops by Priority.Decrement() on every dispatch, and is re-based on
	// wake so a sleeper neither lags nor dominates the ready queue.
	Counter uint64
	// Seq breaks counter ties FIFO. Reassigned on every enqueue.
	Seq uint64

	// Context is the saved register snapshot. Valid only while the
	// process is off the CPU; the trap writes it on suspend and the
	// dispatch path reads it for staging.
	Context model.Context
	Space   mem.Handle

	// Wake condition. Exactly one is meaningful, selected by State.
	WakeDeadline model.Time
	WaitTarget   model.Pid

	ExitCode int

	// Waiters lists pids blocked in WAITING_PID on this entry's exit.
	Waiters []model.Pid
	// CollectedExits records dead children for non-blocking collection.
	CollectedExits []model.ChildExit
}

// TransitionTo moves the entry to next, panicking on a transition the
// state machine does not allow. Transition bugs here are scheduler
// corruption, not recoverable errors.
func (e *Entry) TransitionTo(next model.ProcessState) {
	if !e.State.CanTransitionTo(next) {
		panic(fmt.Sprintf("kernel: invalid state transition %s -> %s for %s", e.State, next, e.Pid))
	}
	e.State = next
}

// AddWaiter records pid as blocked on this entry's exit.
func (e *Entry) AddWaiter(pid model.Pid) {
	for _, w := range e.Waiters {
		if w == pid {
			return
		}
	}
	e.Waiters = append(e.Waiters, pid)
}

// RemoveWaiter drops pid from the waiter list.
func (e *Entry) RemoveWaiter(pid model.Pid) {
	for i, w := range e.Waiters {
		if w == pid {
			e.Waiters = append(e.Waiters[:i], e.Waiters[i+1:]...)
			return
		}
	}
}

// AddChildExit appends a dead child's exit record.
func (e *Entry) AddChildExit(child model.Pid, code int) {
	e.CollectedExits = append(e.CollectedExits, model.ChildExit{Pid: child, Code: code})
}

// CollectedExit returns the recorded exit code for child, if any.
func (e *Entry) CollectedExit(child model.Pid) (int, bool) {
	for _, ce := range e.CollectedExits {
		if ce.Pid == child {
			return ce.Code, true
		}
	}
	return 0, false
}

// Table is the owning arena of process entries, keyed by pid, iterated
// in insertion order so every pass is reproducible.
type Table struct {
	entries map[model.Pid]*Entry
	order   []model.Pid
	nextPid model.Pid
	nextSeq uint64
}

// New creates an empty process table.
func New() *Table {
	return &Table{
		entries: make(map[model.Pid]*Entry),
		nextPid: 1,
	}
}

// Add creates a new entry in SCHEDULED state with a fresh pid, a maxed
// scheduling counter, and a fresh FIFO sequence number.
func (t *Table) Add(parent model.Pid, name string, prio model.Priority, ctx model.Context, space mem.Handle) *Entry {
	e := &Entry{
		Pid:      t.nextPid,
		Parent:   parent,
		Name:     name,
		State:    model.StateScheduled,
		Priority: prio,
		Counter:  model.MaxCounter,
		Seq:      t.NextSeq(),
		Context:  ctx,
		Space:    space,
	}
	t.nextPid++
	t.entries[e.Pid] = e
	t.order = append(t.order, e.Pid)
	return e
}

// Get returns the entry for pid, if present.
func (t *Table) Get(pid model.Pid) (*Entry, bool) {
	e, ok := t.entries[pid]
	return e, ok
}

// Remove deletes pid from the table. Only the reap step calls this.
func (t *Table) Remove(pid model.Pid) {
	if _, ok := t.entries[pid]; !ok {
		panic(fmt.Sprintf("kernel: removing unknown process %s", pid))
	}
	delete(t.entries, pid)
	for i, p := range t.order {
		if p == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Pids returns the live pids in insertion order.
func (t *Table) Pids() []model.Pid {
	out := make([]model.Pid, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// NextSeq mints a fresh FIFO sequence number for a ready-queue insert.
func (t *Table) NextSeq() uint64 {
	t.nextSeq++
	return t.nextSeq
}
