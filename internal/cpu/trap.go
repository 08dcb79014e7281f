package cpu

import "github.com/me/gokern/pkg/model"

// Trap vectors. The table is fixed at boot: one static entry per vector,
// installed exactly once, never swapped afterwards.
const (
	// VectorTimer is raised by the periodic timer to preempt the
	// running process.
	VectorTimer = 0x20
	// VectorSyscall is raised by a process executing a syscall
	// instruction, with the syscall number in RAX.
	VectorSyscall = 0x80
	// VectorScheduler is the kernel-reserved context-switch trap. Both
	// the resume moment (jumping into a staged context) and the suspend
	// moment (parking the running one) travel through this single
	// vector, so save and restore always use the identical path.
	VectorScheduler = 0xff

	numVectors = 0x100
)

// TrapFrame is the register file captured on trap entry. Handlers mutate
// it in place; the return from the trap loads it back onto the CPU.
type TrapFrame struct {
	Regs   model.Context
	Vector int
}

// Handler services one trap vector. It runs with interrupts masked.
type Handler func(frame *TrapFrame)

// Install wires a handler to a vector. Each vector is installed at most
// once for the lifetime of the kernel.
func (c *CPU) Install(vector int, h Handler) {
	if vector < 0 || vector >= numVectors {
		panic("kernel: trap vector out of range")
	}
	if h == nil {
		panic("kernel: installing nil trap handler")
	}
	if c.vectors[vector] != nil {
		panic("kernel: trap vector already installed")
	}
	c.vectors[vector] = h
}

// trap enters the handler for vector with interrupts masked and the live
// register file captured in the frame. Re-entering while already inside
// a trap means interrupts were not correctly masked: fatal.
func (c *CPU) trap(vector int) {
	if c.inTrap {
		panic("kernel: nested trap entry")
	}
	h := c.vectors[vector]
	if h == nil {
		panic("kernel: trap on unhandled vector")
	}
	c.inTrap = true
	c.PushCLI()

	frame := TrapFrame{Regs: c.regs, Vector: vector}
	h(&frame)
	c.regs = frame.Regs

	c.PopCLI()
	c.inTrap = false
}

// schedulerVector is the resume half of the context-switch trap: it
// exchanges the staged process context with the live (kernel) register
// file. The suspend half is Suspend, called by the timer and syscall
// handlers; both moments run the same exchange.
func (c *CPU) schedulerVector(frame *TrapFrame) {
	if frame.Regs.Ring() != 0 {
		panic("kernel: context-switch trap from user mode")
	}
	if c.staged == nil {
		panic("kernel: context-switch trap with empty context slot")
	}
	if !c.scheduling {
		panic("kernel: context-switch trap outside a dispatch")
	}
	if !c.InterruptsDisabled() {
		panic("kernel: context-switch trap with interrupts enabled")
	}
	c.scheduling = false
	swapContext(&frame.Regs, c.staged)
}

// Suspend parks the executing process: the live frame and the parked
// kernel context exchange places, the CPU slot empties, and the caller
// receives the process's register snapshot to store in its table entry.
// Must run inside a trap with interrupts masked.
func (c *CPU) Suspend(frame *TrapFrame) model.Context {
	if c.staged == nil {
		panic("kernel: suspend with empty context slot")
	}
	if c.pid == model.NoPid {
		panic("kernel: suspend with no current process")
	}
	if !c.InterruptsDisabled() {
		panic("kernel: suspend with interrupts enabled")
	}
	swapContext(&frame.Regs, c.staged)
	saved := *c.staged
	c.staged = nil
	c.pid = model.NoPid
	return saved
}

// swapContext exchanges two register snapshots wholesale. Using one
// symmetric exchange for both the suspend and resume moments keeps the
// two paths from ever diverging in what they save.
func swapContext(a, b *model.Context) {
	*a, *b = *b, *a
}
