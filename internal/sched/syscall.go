package sched

import (
	"fmt"
	"time"

	"github.com/me/gokern/internal/cpu"
	"github.com/me/gokern/internal/trace"
	"github.com/me/gokern/pkg/model"
)

// timerInterrupt preempts the running process. With nothing current, or
// mid-handoff between staging and the context-switch trap, the tick is
// ignored.
func (s *Scheduler) timerInterrupt(frame *cpu.TrapFrame) {
	if !s.cpu.HasCurrent() || s.cpu.Scheduling() {
		return
	}
	s.yieldNow(frame, "preempt")
}

// syscallInterrupt dispatches a syscall trap by the number in RAX. Every
// blocking call performs exactly one state transition and suspends; the
// process observes an ordinary return only when it is re-dispatched.
func (s *Scheduler) syscallInterrupt(frame *cpu.TrapFrame) {
	if frame.Regs.Ring() != model.RingMask {
		panic("kernel: syscall trap from kernel mode")
	}
	switch frame.Regs.RAX {
	case model.SysYield:
		s.yieldNow(frame, "yield")
	case model.SysSleep:
		s.blockOnTime(frame, s.clk.Now().Add(time.Duration(frame.Regs.RDI)))
	case model.SysWaitPid:
		s.blockOnPid(frame, model.Pid(frame.Regs.RDI))
	case model.SysExit:
		s.exit(frame, int(int64(frame.Regs.RDI)))
	default:
		panic(fmt.Sprintf("kernel: unknown syscall %d", frame.Regs.RAX))
	}
}

// yieldNow returns the running process to the ready queue. Its counter
// already dropped at dispatch, so yielding earns nothing back; the
// process simply competes again with what it has left.
func (s *Scheduler) yieldNow(frame *cpu.TrapFrame, reason string) {
	e := s.suspendCurrent(frame)
	e.TransitionTo(model.StateScheduled)
	e.Seq = s.tbl.NextSeq()
	s.enqueue(e)
	s.record(trace.EventPreempt, e.Pid, reason)
	s.logger.Debug("preempt", "pid", e.Pid, "reason", reason)
}

// blockOnTime suspends the running process until the deadline. The wake
// happens in the waiting scan of the first pass where now has reached
// the deadline; the process is never dispatched before that.
func (s *Scheduler) blockOnTime(frame *cpu.TrapFrame, deadline model.Time) {
	e := s.suspendCurrent(frame)
	e.WakeDeadline = deadline
	e.TransitionTo(model.StateWaitingTime)
	s.waiting.add(e.Pid)
	s.record(trace.EventBlockTime, e.Pid, fmt.Sprintf("deadline=%s", deadline))
	s.logger.Debug("block on time", "pid", e.Pid, "deadline", deadline)
}

// blockOnPid suspends the running process until target exits. If target
// is already dead — still in the table as EXITED, already reaped, or
// never known — the call returns immediately with the recorded code in
// RAX: the race between an exit and a wait must never lose the wakeup.
func (s *Scheduler) blockOnPid(frame *cpu.TrapFrame, target model.Pid) {
	caller := s.currentEntry()
	if target == caller.Pid {
		// Waiting on yourself can never be satisfied.
		frame.Regs.RAX = 0
		s.record(trace.EventWake, caller.Pid, "self-wait")
		return
	}
	if code, exited := s.exitCodeOf(caller, target); exited {
		frame.Regs.RAX = uint64(int64(code))
		s.record(trace.EventWake, caller.Pid, fmt.Sprintf("immediate target=%d code=%d", uint64(target), code))
		s.logger.Debug("wait on dead pid", "pid", caller.Pid, "target", target, "code", code)
		return
	}

	e := s.suspendCurrent(frame)
	e.WaitTarget = target
	e.TransitionTo(model.StateWaitingPid)
	if te, ok := s.tbl.Get(target); ok {
		te.AddWaiter(e.Pid)
	}
	s.waiting.add(e.Pid)
	s.record(trace.EventBlockPid, e.Pid, fmt.Sprintf("target=%d", uint64(target)))
	s.logger.Debug("block on pid", "pid", e.Pid, "target", target)
}

// exit marks the running process EXITED and records the code on its
// parent for non-blocking collection. The entry and its address space
// stay in place until the next pass's reap: both are still live inside
// this trap. Waiters wake in the next pass's scan, reading the code off
// the still-present entry.
func (s *Scheduler) exit(frame *cpu.TrapFrame, code int) {
	e := s.suspendCurrent(frame)
	e.ExitCode = code
	e.TransitionTo(model.StateExited)
	if parent, ok := s.tbl.Get(e.Parent); ok && !parent.State.IsTerminal() {
		parent.AddChildExit(e.Pid, code)
	}
	s.record(trace.EventExit, e.Pid, fmt.Sprintf("code=%d", code))
	s.logger.Info("process exited", "pid", e.Pid, "name", e.Name, "code", code)
}
