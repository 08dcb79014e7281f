package cpu

import (
	"fmt"
	"time"

	"github.com/me/gokern/pkg/model"
)

// ContextSwitch is the kernel's `int 0xff`: it fires the context-switch
// trap to jump into the staged context, executes the process until a
// trap suspends it again, and returns once the CPU is back in the kernel
// context. The caller (the scheduler pass) must have staged a context
// and switched the address space beforehand.
func (c *CPU) ContextSwitch() {
	c.trap(VectorScheduler)
	c.run()
}

// run executes instructions from the mapped text segment until the
// current process is suspended. This is the simulated user-mode half of
// the trampoline: the return from the scheduler trap "lands" here, and
// a later suspend swaps the kernel context back before run returns.
func (c *CPU) run() {
	c.slice = c.cfg.Quantum
	for c.pid != model.NoPid {
		switch op := c.mem.Fetch(c.regs.RIP).(type) {
		case model.Compute:
			// Counted instruction: the remaining cost lives in RCX so a
			// preempted process resumes mid-instruction.
			if c.regs.RCX == 0 {
				if op.Cost == 0 {
					c.regs.RIP++
					continue
				}
				c.regs.RCX = op.Cost
			}
			c.step()
			c.regs.RCX--
			if c.regs.RCX == 0 {
				c.regs.RIP++
			}

		case model.Sleep:
			c.step()
			c.regs.RIP++ // resume at the instruction after the syscall
			c.regs.RAX = model.SysSleep
			c.regs.RDI = uint64(op.Duration)
			c.trap(VectorSyscall)

		case model.WaitPid:
			c.step()
			c.regs.RIP++
			c.regs.RAX = model.SysWaitPid
			c.regs.RDI = uint64(op.Target)
			c.trap(VectorSyscall)

		case model.Exit:
			c.step()
			c.regs.RAX = model.SysExit
			c.regs.RDI = uint64(int64(op.Code))
			c.trap(VectorSyscall)

		default:
			panic(fmt.Sprintf("kernel: illegal instruction at rip=%d", c.regs.RIP))
		}

		// Timer interrupt on slice exhaustion. The handler may decline
		// (mid-handoff) or suspend the process; a new slice starts only
		// if we are still running.
		if c.pid != model.NoPid && c.slice <= 0 {
			c.trap(VectorTimer)
			c.slice = c.cfg.Quantum
		}
	}
}

// step burns one timer tick: simulated time advances (or real time
// elapses) and the slice shrinks.
func (c *CPU) step() {
	if c.manual != nil {
		c.manual.Advance(c.cfg.Tick)
	} else {
		time.Sleep(c.cfg.Tick)
	}
	c.slice--
}
