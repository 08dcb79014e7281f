package model

import (
	"errors"
	"fmt"
)

// ContextVersion identifies the register layout of Context. A snapshot
// carrying any other version is rejected at process registration.
const ContextVersion uint32 = 1

// Segment selectors for the flat segmentation layout. The low two bits of
// a selector encode the privilege ring (0 = kernel, 3 = user).
const (
	KernelCodeSelector uint64 = 0x08
	KernelDataSelector uint64 = 0x10
	UserCodeSelector   uint64 = 0x1b
	UserDataSelector   uint64 = 0x23
)

// RingMask extracts the privilege ring from a selector.
const RingMask uint64 = 0x3

// FlagIF is the interrupt-enable bit of RFlags. The return from the
// context-switch trap restores it atomically, which is what re-enables
// preemption when a process resumes.
const FlagIF uint64 = 1 << 9

var (
	ErrBadContextVersion = errors.New("unsupported context version")
	ErrBadSelector       = errors.New("invalid segment selector")
	ErrBadStack          = errors.New("invalid stack pointer")
)

// Context is a complete snapshot of the CPU register file for one
// suspended process: instruction pointer, stack pointer, flags, segment
// selectors, and all general-purpose registers. It is owned exclusively
// by its process table entry and mutated only by the context-switch trap
// (written on suspend, read on resume). While the process is running,
// the live CPU registers are authoritative and the stored copy is stale.
//
// The layout is fixed and versioned; constructors validate it once at
// creation time. Resume never re-validates — a malformed context loaded
// onto the CPU is unrecoverable, so it must not exist in the first place.
type Context struct {
	Version uint32

	RIP    uint64
	RSP    uint64
	RFlags uint64

	CS uint64
	SS uint64
	DS uint64

	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// NewUserContext builds a validated ring-3 context that begins execution
// at entry with the given stack top. Interrupts are enabled so the timer
// can preempt the process from its first instruction.
func NewUserContext(entry, stackTop uint64) (Context, error) {
	if stackTop == 0 {
		return Context{}, ErrBadStack
	}
	ctx := Context{
		Version: ContextVersion,
		RIP:     entry,
		RSP:     stackTop,
		RFlags:  FlagIF,
		CS:      UserCodeSelector,
		SS:      UserDataSelector,
		DS:      UserDataSelector,
	}
	if err := ctx.Validate(); err != nil {
		return Context{}, err
	}
	return ctx, nil
}

// NewKernelContext builds the ring-0 context the CPU boots with. The
// scheduler's own register state is parked here while a process runs.
func NewKernelContext() Context {
	return Context{
		Version: ContextVersion,
		RFlags:  FlagIF,
		CS:      KernelCodeSelector,
		SS:      KernelDataSelector,
		DS:      KernelDataSelector,
	}
}

// Ring returns the privilege ring encoded in the code segment selector.
func (c Context) Ring() uint64 {
	return c.CS & RingMask
}

// Validate checks the snapshot's layout version and selector set. It is
// called at process registration only; a context that passed here is
// trusted unconditionally by the resume path.
func (c Context) Validate() error {
	if c.Version != ContextVersion {
		return fmt.Errorf("%w: %d", ErrBadContextVersion, c.Version)
	}
	switch c.CS {
	case KernelCodeSelector, UserCodeSelector:
	default:
		return fmt.Errorf("%w: cs=%#x", ErrBadSelector, c.CS)
	}
	switch c.SS {
	case KernelDataSelector, UserDataSelector:
	default:
		return fmt.Errorf("%w: ss=%#x", ErrBadSelector, c.SS)
	}
	if c.CS&RingMask != c.SS&RingMask {
		return fmt.Errorf("%w: cs ring %d, ss ring %d", ErrBadSelector, c.CS&RingMask, c.SS&RingMask)
	}
	if c.DS != c.SS {
		return fmt.Errorf("%w: ds=%#x", ErrBadSelector, c.DS)
	}
	if c.Ring() == RingMask && c.RSP == 0 {
		return ErrBadStack
	}
	return nil
}
