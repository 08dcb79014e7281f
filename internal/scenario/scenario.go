// Package scenario loads JavaScript scenario files describing the
// simulated workload. A scenario calls spawn() with a program built from
// the compute/sleep/waitFor/exit helpers; spawn registers the process
// immediately and returns its pid, so later spawns can wait on earlier
// ones:
//
//	const a = spawn({name: "worker", priority: "normal"},
//	    [compute(5), sleep("20ms"), compute(3), exit(0)]);
//	spawn({name: "collector", priority: "high"},
//	    [waitFor(a), exit(0)]);
package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/me/gokern/internal/sched"
	"github.com/me/gokern/pkg/model"
)

// Loader evaluates scenario scripts against a scheduler.
type Loader struct {
	sched  *sched.Scheduler
	logger *slog.Logger
	count  int
}

// New creates a scenario loader spawning into s.
func New(s *sched.Scheduler, logger *slog.Logger) *Loader {
	return &Loader{
		sched:  s,
		logger: logger.With("component", "scenario"),
	}
}

// LoadFile evaluates the scenario at path.
func (l *Loader) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	return l.Load(path, string(src))
}

// Load evaluates scenario source. Every spawn() call in the script
// registers a process before Load returns.
func (l *Loader) Load(name, src string) error {
	vm := goja.New()
	if err := l.bind(vm); err != nil {
		return fmt.Errorf("scenario %s: %w", name, err)
	}
	if _, err := vm.RunScript(name, src); err != nil {
		return fmt.Errorf("scenario %s: %w", name, err)
	}
	return nil
}

// bind installs the program-builder helpers and spawn into the VM.
func (l *Loader) bind(vm *goja.Runtime) error {
	builders := map[string]any{
		"compute": func(cost int64) map[string]any {
			if cost < 1 {
				throwf(vm, "compute: cost must be >= 1, got %d", cost)
			}
			return map[string]any{"op": "compute", "cost": cost}
		},
		"sleep": func(d goja.Value) map[string]any {
			dur, err := parseDuration(d)
			if err != nil {
				throwf(vm, "sleep: %v", err)
			}
			return map[string]any{"op": "sleep", "duration": int64(dur)}
		},
		"waitFor": func(pid int64) map[string]any {
			if pid < 1 {
				throwf(vm, "waitFor: invalid pid %d", pid)
			}
			return map[string]any{"op": "waitpid", "target": pid}
		},
		"exit": func(code int64) map[string]any {
			return map[string]any{"op": "exit", "code": code}
		},
		"spawn": func(opts map[string]any, instrs []any) int64 {
			pid, err := l.spawn(opts, instrs)
			if err != nil {
				throwf(vm, "spawn: %v", err)
			}
			return int64(pid)
		},
	}
	for name, fn := range builders {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// spawn converts the script-side options and instruction list into a
// registered process.
func (l *Loader) spawn(opts map[string]any, instrs []any) (model.Pid, error) {
	l.count++

	name := fmt.Sprintf("proc-%d", l.count)
	if v, ok := opts["name"].(string); ok && v != "" {
		name = v
	}
	prio := model.PriorityNormal
	if v, ok := opts["priority"].(string); ok && v != "" {
		prio = model.Priority(v)
		if !prio.Valid() {
			return model.NoPid, fmt.Errorf("unknown priority %q", v)
		}
	}
	parent := model.NoPid
	if v, ok := opts["parent"].(int64); ok && v > 0 {
		parent = model.Pid(v)
	}

	program, err := buildProgram(instrs)
	if err != nil {
		return model.NoPid, fmt.Errorf("%s: %w", name, err)
	}

	pid, err := l.sched.Spawn(parent, name, prio, program)
	if err != nil {
		return model.NoPid, err
	}
	l.logger.Debug("scenario spawned process", "pid", pid, "name", name)
	return pid, nil
}

// buildProgram translates op objects into the instruction set. Programs
// that do not end in exit get an exit(0) appended, so a scenario cannot
// build text the CPU would run off the end of.
func buildProgram(instrs []any) (model.Program, error) {
	var program model.Program
	for i, raw := range instrs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("instruction %d is not a program op", i)
		}
		op, _ := obj["op"].(string)
		switch op {
		case "compute":
			cost, ok := obj["cost"].(int64)
			if !ok || cost < 1 {
				return nil, fmt.Errorf("instruction %d: bad compute cost", i)
			}
			program = append(program, model.Compute{Cost: uint64(cost)})
		case "sleep":
			d, ok := obj["duration"].(int64)
			if !ok || d < 0 {
				return nil, fmt.Errorf("instruction %d: bad sleep duration", i)
			}
			program = append(program, model.Sleep{Duration: time.Duration(d)})
		case "waitpid":
			target, ok := obj["target"].(int64)
			if !ok || target < 1 {
				return nil, fmt.Errorf("instruction %d: bad waitpid target", i)
			}
			program = append(program, model.WaitPid{Target: model.Pid(target)})
		case "exit":
			code, ok := obj["code"].(int64)
			if !ok {
				return nil, fmt.Errorf("instruction %d: bad exit code", i)
			}
			program = append(program, model.Exit{Code: int(code)})
		default:
			return nil, fmt.Errorf("instruction %d: unknown op %q", i, op)
		}
	}
	if len(program) == 0 {
		return nil, fmt.Errorf("empty program")
	}
	if !program.Terminated() {
		program = append(program, model.Exit{Code: 0})
	}
	return program, nil
}

// parseDuration accepts either a Go duration string ("20ms") or a plain
// number of milliseconds.
func parseDuration(v goja.Value) (time.Duration, error) {
	switch ev := v.Export().(type) {
	case string:
		d, err := time.ParseDuration(ev)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %s", d)
		}
		return d, nil
	case int64:
		if ev < 0 {
			return 0, fmt.Errorf("negative duration %dms", ev)
		}
		return time.Duration(ev) * time.Millisecond, nil
	case float64:
		if ev < 0 {
			return 0, fmt.Errorf("negative duration %vms", ev)
		}
		return time.Duration(ev * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("duration must be a string or number, got %T", ev)
	}
}

// throwf raises a JavaScript exception from inside a native helper.
func throwf(vm *goja.Runtime, format string, args ...any) {
	panic(vm.ToValue(fmt.Sprintf(format, args...)))
}
