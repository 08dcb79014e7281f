// Package cpu models the single CPU: its live register file, the
// interrupt mask, the staging slot the scheduler loads contexts into,
// and the trap vector table through which every context switch runs.
//
// There is exactly one CPU and it is driven synchronously from the
// scheduler goroutine; concurrency in this kernel is interrupt-driven
// preemption, not parallelism.
package cpu

import (
	"fmt"
	"time"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/pkg/model"
)

// Config holds CPU timing parameters.
type Config struct {
	// Quantum is the number of timer ticks in one time slice.
	Quantum int
	// Tick is the duration of one timer tick.
	Tick time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Quantum: 8, Tick: time.Millisecond}
}

// CPU is the single processor. The live register file is authoritative
// for whatever is executing; suspended state lives in the process table.
type CPU struct {
	cfg    Config
	manual *clock.Manual // non-nil when time is simulated and advances with execution
	mem    *mem.Mapper

	vectors [numVectors]Handler

	// regs is the live register file. staged is the CPU context slot:
	// before a dispatch it holds the next process's snapshot; while a
	// process runs it parks the kernel's own context.
	regs   model.Context
	staged *model.Context
	pid    model.Pid

	cliDepth   int
	scheduling bool
	inTrap     bool

	slice int // remaining ticks in the current time slice
}

// New creates a CPU booted into the kernel context, with only the
// scheduler vector wired. The timer and syscall vectors are installed by
// the scheduler during its own initialization.
func New(cfg Config, clk clock.Clock, m *mem.Mapper) *CPU {
	if cfg.Quantum <= 0 {
		panic("kernel: cpu quantum must be positive")
	}
	if cfg.Tick <= 0 {
		panic("kernel: cpu tick must be positive")
	}
	c := &CPU{
		cfg:  cfg,
		mem:  m,
		regs: model.NewKernelContext(),
	}
	if mc, ok := clk.(*clock.Manual); ok {
		c.manual = mc
	}
	c.Install(VectorScheduler, c.schedulerVector)
	return c
}

// PushCLI masks interrupts, nesting.
func (c *CPU) PushCLI() {
	c.cliDepth++
}

// PopCLI unmasks one level of interrupt masking.
func (c *CPU) PopCLI() {
	if c.cliDepth == 0 {
		panic("kernel: cli underflow")
	}
	c.cliDepth--
}

// InterruptsDisabled reports whether interrupts are currently masked.
func (c *CPU) InterruptsDisabled() bool {
	return c.cliDepth > 0
}

// CurrentPid returns the pid marker of the process occupying the CPU,
// or NoPid between dispatches.
func (c *CPU) CurrentPid() model.Pid {
	return c.pid
}

// HasCurrent reports whether a process context occupies the CPU slot.
func (c *CPU) HasCurrent() bool {
	return c.pid != model.NoPid
}

// Scheduling reports whether the CPU is mid-handoff: a context has been
// staged but the scheduler trap has not fired yet. Preemption requests
// in this window are ignored.
func (c *CPU) Scheduling() bool {
	return c.scheduling
}

// Stage loads a process's saved context into the CPU context slot and
// sets the current-process marker. Must be called with interrupts
// masked; staging over an occupied slot is a doubled dispatch.
func (c *CPU) Stage(ctx model.Context, pid model.Pid) {
	if !c.InterruptsDisabled() {
		panic("kernel: staging a context with interrupts enabled")
	}
	if c.staged != nil {
		panic(fmt.Sprintf("kernel: staging %s over an occupied context slot (%s)", pid, c.pid))
	}
	if pid == model.NoPid {
		panic("kernel: staging a context without a pid")
	}
	snapshot := ctx
	c.staged = &snapshot
	c.pid = pid
	c.scheduling = true
}

// Halt idles the CPU with nothing runnable. On a simulated clock time
// jumps to the earlier of the next timer tick and the wake instant; on a
// wall clock the CPU sleeps one tick and re-enters the schedule pass.
// until may be zero when no deadline is pending.
func (c *CPU) Halt(until model.Time) {
	if c.manual != nil {
		next := c.manual.Now().Add(c.cfg.Tick)
		if until > next {
			c.manual.AdvanceTo(until)
		} else {
			c.manual.AdvanceTo(next)
		}
		return
	}
	time.Sleep(c.cfg.Tick)
}
