// Package sched implements the scheduling core: the process table walk,
// the priority-counter ready queue, the waiting scan, and the dispatch
// handoff through the context-switch trap.
//
// The whole core runs on one goroutine and masks interrupts for the
// length of a pass; a timer cannot preempt the scheduler mid-decision.
// External observers get consistent state through Snapshot, which only
// runs between passes.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/cpu"
	"github.com/me/gokern/internal/logging"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/internal/table"
	"github.com/me/gokern/internal/trace"
	"github.com/me/gokern/pkg/model"
)

// initialStackTop is where every new process's stack begins. Stacks are
// not modeled beyond the pointer itself.
const initialStackTop uint64 = 0x7fff_ffff_e000

// Scheduler is the single-CPU scheduling core.
type Scheduler struct {
	mu sync.Mutex

	tbl    *table.Table
	cpu    *cpu.CPU
	clk    clock.Clock
	mem    *mem.Mapper
	rec    trace.Recorder
	logger *slog.Logger

	ready   readyQueue
	waiting waitingSet

	// current is a borrowed reference to the running entry: identity
	// only, never ownership. NoPid between dispatches.
	current model.Pid

	passes     uint64
	dispatches uint64
	eventSeq   uint64
}

// New creates a scheduler and installs its timer and syscall handlers
// into the CPU's vector table.
func New(c *cpu.CPU, clk clock.Clock, m *mem.Mapper, rec trace.Recorder, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		tbl:     table.New(),
		cpu:     c,
		clk:     clk,
		mem:     m,
		rec:     rec,
		logger:  logging.WithKernelClock(logger, clk).With("component", "scheduler"),
		waiting: newWaitingSet(),
	}
	c.Install(cpu.VectorTimer, s.timerInterrupt)
	c.Install(cpu.VectorSyscall, s.syscallInterrupt)
	return s
}

// Spawn creates a process from a program: a fresh address space holding
// the text, a validated ring-3 initial context, and a table entry placed
// directly into SCHEDULED. parent may be NoPid for root processes.
func (s *Scheduler) Spawn(parent model.Pid, name string, prio model.Priority, program model.Program) (model.Pid, error) {
	if !program.Terminated() {
		return model.NoPid, fmt.Errorf("spawn %q: program does not end in exit", name)
	}
	ctx, err := model.NewUserContext(0, initialStackTop)
	if err != nil {
		return model.NoPid, fmt.Errorf("spawn %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	space := s.mem.Create(program)
	return s.register(parent, name, prio, ctx, space)
}

// Register places a pre-built context into the table as a new SCHEDULED
// process. This is the low-level entry point for process creation; the
// context is validated here, once, and trusted forever after.
func (s *Scheduler) Register(parent model.Pid, name string, prio model.Priority, ctx model.Context, space mem.Handle) (model.Pid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.register(parent, name, prio, ctx, space)
}

func (s *Scheduler) register(parent model.Pid, name string, prio model.Priority, ctx model.Context, space mem.Handle) (model.Pid, error) {
	if !prio.Valid() {
		return model.NoPid, fmt.Errorf("register %q: unknown priority %q", name, prio)
	}
	if err := ctx.Validate(); err != nil {
		return model.NoPid, fmt.Errorf("register %q: %w", name, err)
	}
	e := s.tbl.Add(parent, name, prio, ctx, space)
	s.enqueue(e)
	s.record(trace.EventSpawn, e.Pid, fmt.Sprintf("name=%s priority=%s", name, prio))
	s.logger.Info("process registered", "pid", e.Pid, "name", name, "priority", prio)
	return e.Pid, nil
}

// Run drives schedule passes until the context is cancelled or every
// process has exited and been reaped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		default:
		}
		s.Pass()
		if s.Empty() {
			s.logger.Info("all processes exited")
			return nil
		}
	}
}

// Empty reports whether the process table has no live entries.
func (s *Scheduler) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tbl.Len() == 0
}

// Pass runs one schedule pass: wake eligible waiters, reap exited
// entries, pick the next process, and hand the CPU to it (or idle).
func (s *Scheduler) Pass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pass()
}

func (s *Scheduler) pass() {
	s.passes++
	s.cpu.PushCLI()

	s.scanWaiting()
	s.reapExited()

	e := s.ready.dequeueHighest()
	if e == nil {
		until := s.earliestDeadline()
		s.record(trace.EventIdle, model.NoPid, "")
		s.cpu.PopCLI()
		s.cpu.Halt(until)
		return
	}

	// Dispatch. The counter drops on selection; higher priorities drop
	// less and so stay competitive across more passes.
	e.TransitionTo(model.StateRunning)
	e.Counter = saturatingSub(e.Counter, e.Priority.Decrement())
	s.current = e.Pid
	s.mem.Switch(e.Space)
	s.cpu.Stage(e.Context, e.Pid)
	s.dispatches++
	s.record(trace.EventDispatch, e.Pid, fmt.Sprintf("counter=%d", e.Counter))
	s.logger.Debug("dispatch", "pid", e.Pid, "name", e.Name, "counter", e.Counter)
	s.cpu.PopCLI()

	// The trampoline: jump into the staged context, return here when the
	// process has been suspended again.
	s.cpu.ContextSwitch()
	s.mem.SwitchToKernel()
}

// scanWaiting walks the waiting set once, moving entries whose wake
// condition holds back to SCHEDULED. Woken entries compete in this same
// pass's dispatch; no extra pass is needed. The walk touches only
// waiters, never the whole table.
func (s *Scheduler) scanWaiting() {
	now := s.clk.Now()
	for _, pid := range s.waiting.list() {
		e, ok := s.tbl.Get(pid)
		if !ok {
			panic(fmt.Sprintf("kernel: waiting set references unknown process %s", pid))
		}
		switch e.State {
		case model.StateWaitingTime:
			if now >= e.WakeDeadline {
				s.wake(e, 0, false)
			}
		case model.StateWaitingPid:
			if code, exited := s.exitCodeOf(e, e.WaitTarget); exited {
				if te, ok := s.tbl.Get(e.WaitTarget); ok {
					te.RemoveWaiter(e.Pid)
				}
				s.wake(e, uint64(int64(code)), true)
			}
		default:
			panic(fmt.Sprintf("kernel: %s in waiting set with state %s", pid, e.State))
		}
	}
}

// wake returns a blocked entry to SCHEDULED. Its counter is re-based to
// the current ready-queue maximum: a short sleeper is not punished by
// the decrements it missed, and a long sleeper does not dominate with a
// stale near-max counter. A fresh sequence number ranks it right after
// the entry it now ties with.
func (s *Scheduler) wake(e *table.Entry, rax uint64, deliver bool) {
	s.waiting.remove(e.Pid)
	if deliver {
		e.Context.RAX = rax
	}
	e.WakeDeadline = 0
	e.WaitTarget = model.NoPid
	e.TransitionTo(model.StateScheduled)
	if max, ok := s.ready.maxCounter(); ok {
		e.Counter = max
	} else {
		e.Counter = model.MaxCounter
	}
	e.Seq = s.tbl.NextSeq()
	s.enqueue(e)
	s.record(trace.EventWake, e.Pid, fmt.Sprintf("counter=%d", e.Counter))
	s.logger.Debug("wake", "pid", e.Pid, "name", e.Name)
}

// reapExited deletes EXITED entries and frees their address spaces.
// Deletion is deferred to a pass where some other context is current:
// the exiting process's own stack and address space were still live
// inside the exit trap, so the exit path itself never deletes.
func (s *Scheduler) reapExited() {
	for _, pid := range s.tbl.Pids() {
		e, _ := s.tbl.Get(pid)
		if e.State != model.StateExited {
			continue
		}
		if pid == s.current {
			panic(fmt.Sprintf("kernel: reaping current process %s", pid))
		}
		s.mem.Destroy(e.Space)
		s.record(trace.EventReap, pid, "")
		s.logger.Debug("reap", "pid", pid, "name", e.Name)
		s.tbl.Remove(pid)
	}
}

// exitCodeOf resolves whether target has exited, and with what code.
// A live EXITED entry is authoritative; after the reap the waiter's own
// collected-exits list is consulted; a pid with no record at all is
// treated as long-dead with code 0 — misuse, not a kernel error.
func (s *Scheduler) exitCodeOf(waiter *table.Entry, target model.Pid) (int, bool) {
	if te, ok := s.tbl.Get(target); ok {
		if te.State == model.StateExited {
			return te.ExitCode, true
		}
		return 0, false
	}
	if code, ok := waiter.CollectedExit(target); ok {
		return code, true
	}
	return 0, true
}

// earliestDeadline returns the soonest wake instant among time waiters,
// or zero when none is pending. The idle path uses it to halt straight
// to the next interesting moment on a simulated clock.
func (s *Scheduler) earliestDeadline() model.Time {
	var earliest model.Time
	for _, pid := range s.waiting.pids {
		e, ok := s.tbl.Get(pid)
		if !ok || e.State != model.StateWaitingTime {
			continue
		}
		if earliest == 0 || e.WakeDeadline < earliest {
			earliest = e.WakeDeadline
		}
	}
	return earliest
}

// enqueue inserts into the ready queue, guarding the invariant that a
// process is never queued and current at once.
func (s *Scheduler) enqueue(e *table.Entry) {
	if e.Pid == s.current {
		panic(fmt.Sprintf("kernel: enqueueing current process %s", e.Pid))
	}
	s.ready.enqueue(e)
}

// currentEntry resolves the borrowed current reference to its entry.
func (s *Scheduler) currentEntry() *table.Entry {
	e, ok := s.tbl.Get(s.current)
	if !ok {
		panic(fmt.Sprintf("kernel: current process %s not found", s.current))
	}
	if e.State != model.StateRunning {
		panic(fmt.Sprintf("kernel: current process %s in state %s", s.current, e.State))
	}
	return e
}

// suspendCurrent parks the running process's registers into its table
// entry and clears the current reference. Every blocking transition
// funnels through here, so the save path is identical for all of them.
func (s *Scheduler) suspendCurrent(frame *cpu.TrapFrame) *table.Entry {
	e := s.currentEntry()
	e.Context = s.cpu.Suspend(frame)
	s.current = model.NoPid
	return e
}

func (s *Scheduler) record(t trace.EventType, pid model.Pid, detail string) {
	s.eventSeq++
	s.rec.Record(trace.Event{
		Seq:    s.eventSeq,
		Time:   s.clk.Now(),
		Type:   t,
		Pid:    pid,
		Detail: detail,
	})
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
