package cpu

import (
	"testing"
	"time"

	"github.com/me/gokern/internal/clock"
	"github.com/me/gokern/internal/mem"
	"github.com/me/gokern/pkg/model"
)

func newTestCPU(t *testing.T, quantum int) (*CPU, *clock.Manual, *mem.Mapper) {
	t.Helper()
	clk := clock.NewManual()
	m := mem.NewMapper()
	c := New(Config{Quantum: quantum, Tick: time.Millisecond}, clk, m)
	return c, clk, m
}

// dispatch stages ctx for pid with the interrupt discipline the
// scheduler uses.
func dispatch(c *CPU, m *mem.Mapper, h mem.Handle, ctx model.Context, pid model.Pid) {
	c.PushCLI()
	m.Switch(h)
	c.Stage(ctx, pid)
	c.PopCLI()
	c.ContextSwitch()
	m.SwitchToKernel()
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s should panic", name)
		}
	}()
	fn()
}

func TestInstallGuards(t *testing.T) {
	c, _, _ := newTestCPU(t, 8)
	c.Install(VectorTimer, func(*TrapFrame) {})

	mustPanic(t, "double install", func() { c.Install(VectorTimer, func(*TrapFrame) {}) })
	mustPanic(t, "nil handler", func() { c.Install(VectorSyscall, nil) })
	mustPanic(t, "vector out of range", func() { c.Install(0x100, func(*TrapFrame) {}) })
	// VectorScheduler is claimed at boot.
	mustPanic(t, "scheduler vector reinstall", func() { c.Install(VectorScheduler, func(*TrapFrame) {}) })
}

func TestCLIUnderflowPanics(t *testing.T) {
	c, _, _ := newTestCPU(t, 8)
	c.PushCLI()
	c.PopCLI()
	mustPanic(t, "cli underflow", func() { c.PopCLI() })
}

func TestStageGuards(t *testing.T) {
	c, _, _ := newTestCPU(t, 8)
	ctx, err := model.NewUserContext(0, 0x1000)
	if err != nil {
		t.Fatalf("NewUserContext: %v", err)
	}

	mustPanic(t, "stage with interrupts enabled", func() { c.Stage(ctx, 1) })

	c.PushCLI()
	defer c.PopCLI()
	mustPanic(t, "stage without pid", func() { c.Stage(ctx, model.NoPid) })

	c.Stage(ctx, 1)
	if c.CurrentPid() != 1 || !c.Scheduling() {
		t.Error("staging should set the current pid and the scheduling flag")
	}
	mustPanic(t, "doubled dispatch", func() { c.Stage(ctx, 2) })
}

func TestContextSwitchRoundTrip(t *testing.T) {
	c, clk, m := newTestCPU(t, 8)

	var saved model.Context
	c.Install(VectorSyscall, func(frame *TrapFrame) {
		saved = c.Suspend(frame)
	})
	c.Install(VectorTimer, func(*TrapFrame) {})

	h := m.Create(model.Program{model.Exit{Code: 7}})
	ctx, err := model.NewUserContext(0, 0x1000)
	if err != nil {
		t.Fatalf("NewUserContext: %v", err)
	}

	dispatch(c, m, h, ctx, 1)

	if c.HasCurrent() || c.CurrentPid() != model.NoPid {
		t.Error("CPU still has a current process after suspend")
	}
	if saved.RAX != model.SysExit {
		t.Errorf("saved RAX = %d, want SysExit", saved.RAX)
	}
	if saved.RDI != 7 {
		t.Errorf("saved RDI = %d, want exit code 7", saved.RDI)
	}
	if saved.Ring() != 3 {
		t.Errorf("saved ring = %d, want 3", saved.Ring())
	}
	// Exit burns exactly one tick.
	if got := clk.Now(); got.Sub(0) != time.Millisecond {
		t.Errorf("clock at %s, want 1ms", got)
	}
}

func TestTimerPreemptsMidCompute(t *testing.T) {
	c, clk, m := newTestCPU(t, 8)

	var saved model.Context
	c.Install(VectorSyscall, func(frame *TrapFrame) {
		saved = c.Suspend(frame)
	})
	c.Install(VectorTimer, func(frame *TrapFrame) {
		saved = c.Suspend(frame)
	})

	h := m.Create(model.Program{model.Compute{Cost: 20}, model.Exit{Code: 0}})
	ctx, err := model.NewUserContext(0, 0x1000)
	if err != nil {
		t.Fatalf("NewUserContext: %v", err)
	}

	// First slice: 8 ticks of the 20-tick compute.
	dispatch(c, m, h, ctx, 1)
	if saved.RCX != 12 {
		t.Errorf("remaining cost after first slice = %d, want 12", saved.RCX)
	}
	if saved.RIP != 0 {
		t.Errorf("RIP = %d mid-compute, want 0", saved.RIP)
	}

	// Second slice resumes mid-instruction from the saved snapshot.
	dispatch(c, m, h, saved, 1)
	if saved.RCX != 4 {
		t.Errorf("remaining cost after second slice = %d, want 4", saved.RCX)
	}

	// Third slice finishes the compute and reaches the exit.
	dispatch(c, m, h, saved, 1)
	if saved.RAX != model.SysExit {
		t.Errorf("RAX = %d after final slice, want SysExit", saved.RAX)
	}

	// 8 + 8 + (4 compute + 1 exit) ticks in total.
	if got := clk.Now(); got.Sub(0) != 21*time.Millisecond {
		t.Errorf("clock at %s, want 21ms", got)
	}
}

func TestHaltAdvancesSimulatedClock(t *testing.T) {
	c, clk, _ := newTestCPU(t, 8)

	c.Halt(0)
	if got := clk.Now(); got.Sub(0) != time.Millisecond {
		t.Errorf("idle tick: clock at %s, want 1ms", got)
	}

	deadline := clk.Now().Add(50 * time.Millisecond)
	c.Halt(deadline)
	if got := clk.Now(); got != deadline {
		t.Errorf("halt to deadline: clock at %s, want %s", got, deadline)
	}
}

func TestSuspendGuards(t *testing.T) {
	c, _, _ := newTestCPU(t, 8)
	frame := &TrapFrame{}

	mustPanic(t, "suspend with empty slot", func() { c.Suspend(frame) })
}
