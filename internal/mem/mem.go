// Package mem is the address-space collaborator of the scheduler core.
// Each process owns one simulated address space whose text segment holds
// its program; the Mapper tracks which space the CPU currently observes.
// Instruction fetches go through the mapped space, so dispatching with
// the wrong mapping makes the CPU genuinely read another process's
// memory — the fatal bug class the dispatch ordering exists to prevent.
//
// All methods are called from the scheduler goroutine inside its masked
// section; the package performs no locking of its own.
package mem

import (
	"fmt"

	"github.com/me/gokern/pkg/model"
)

// Handle identifies one address space.
type Handle uint64

// KernelHandle is the kernel's own mapping, active whenever no process
// space is switched in.
const KernelHandle Handle = 0

// space is a simulated user address space. Only the text segment is
// modeled; data pages are out of scope here.
type space struct {
	handle Handle
	text   model.Program
}

// Mapper owns all address spaces and the CPU-visible mapping.
type Mapper struct {
	spaces map[Handle]*space
	mapped Handle
	next   Handle
}

// NewMapper creates a mapper with only the kernel mapping active.
func NewMapper() *Mapper {
	return &Mapper{
		spaces: make(map[Handle]*space),
		mapped: KernelHandle,
		next:   KernelHandle + 1,
	}
}

// Create allocates a new address space holding the given text segment.
func (m *Mapper) Create(text model.Program) Handle {
	h := m.next
	m.next++
	m.spaces[h] = &space{handle: h, text: text}
	return h
}

// Switch maps the given space onto the CPU. It is called exactly once
// per dispatch, from the kernel mapping; re-entering it for a process
// while its space is already mapped indicates a doubled dispatch inside
// one trap, which is fatal.
func (m *Mapper) Switch(h Handle) {
	if _, ok := m.spaces[h]; !ok {
		panic(fmt.Sprintf("kernel: switch to unknown address space %d", h))
	}
	if m.mapped != KernelHandle {
		panic(fmt.Sprintf("kernel: address space switch re-entered (mapped %d, switching to %d)", m.mapped, h))
	}
	m.mapped = h
}

// SwitchToKernel restores the kernel mapping. Safe to call at any time.
func (m *Mapper) SwitchToKernel() {
	m.mapped = KernelHandle
}

// Mapped returns the handle of the currently mapped space.
func (m *Mapper) Mapped() Handle {
	return m.mapped
}

// Fetch reads the instruction at rip from the currently mapped space.
// Fetching from the kernel mapping or past the end of the text segment
// is a page fault in text, which this kernel treats as fatal: programs
// are validated to end in Exit before they are ever scheduled.
func (m *Mapper) Fetch(rip uint64) model.Instr {
	sp, ok := m.spaces[m.mapped]
	if !ok {
		panic("kernel: instruction fetch with no user space mapped")
	}
	if rip >= uint64(len(sp.text)) {
		panic(fmt.Sprintf("kernel: text page fault in space %d at rip=%d", sp.handle, rip))
	}
	return sp.text[rip]
}

// Destroy frees an address space during the reap step. Freeing the
// currently mapped space would pull the text out from under a live
// context, so that is fatal.
func (m *Mapper) Destroy(h Handle) {
	if h == m.mapped {
		panic(fmt.Sprintf("kernel: destroying mapped address space %d", h))
	}
	delete(m.spaces, h)
}

// Len returns the number of live user address spaces.
func (m *Mapper) Len() int {
	return len(m.spaces)
}
