// Package luascript lets a demo workload describe its threads and
// periodic/aperiodic callbacks in a small Lua script instead of Go
// source, for cmd/g8sim's -demo flag. A single gopher-lua state is
// shared by every registered callback, and *lua.LState is not safe for
// concurrent calls. The callbacks registered here do NOT all run on
// one goroutine: a thread body runs on its own dedicated goroutine
// (internal/sched's run-token model), while periodic and aperiodic
// callbacks run synchronously on the tick driver and the signal
// dispatch goroutine respectively — three genuinely different
// goroutines that can each want the Lua state at once. Host.mu
// serializes every entry into L; sleep releases it for the duration of
// the blocking kernel call it wraps, so a parked thread never holds
// the Lua state hostage from periodic/aperiodic callbacks.
package luascript

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/g8kernel/g8rtos/kernel"
)

// Host owns the Lua state backing one loaded script and the kernel it
// registers threads and events against.
type Host struct {
	k *kernel.Kernel
	L *lua.LState

	mu sync.Mutex // guards every call into L
}

// Load runs path as a Lua script against a fresh state, with
// register_thread, register_periodic, register_aperiodic, and sleep
// bound as globals that call back into k.
func Load(path string, k *kernel.Kernel) (*Host, error) {
	L := lua.NewState()
	h := &Host{k: k, L: L}

	L.SetGlobal("register_thread", L.NewFunction(h.registerThread))
	L.SetGlobal("register_periodic", L.NewFunction(h.registerPeriodic))
	L.SetGlobal("register_aperiodic", L.NewFunction(h.registerAperiodic))
	L.SetGlobal("sleep", L.NewFunction(h.sleep))

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the Lua state. Call once the kernel has stopped
// using any callback the script registered.
func (h *Host) Close() { h.L.Close() }

func (h *Host) call(fn *lua.LFunction, label string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		h.k.Logger().Printf("luascript: %s callback error: %v", label, err)
	}
}

// register_thread(priority, name, fn): fn is the thread body, run on
// its own goroutine exactly like a Go thread entry function. fn is
// expected to loop and call sleep(n) or another blocking kernel
// operation, per spec.md §5's suspension-point model.
func (h *Host) registerThread(L *lua.LState) int {
	priority := uint8(L.CheckInt(1))
	name := L.CheckString(2)
	fn := L.CheckFunction(3)

	if _, err := h.k.AddThread(priority, name, func() {
		h.call(fn, "thread "+name)
	}); err != nil {
		L.RaiseError("register_thread(%s): %v", name, err)
	}
	return 0
}

// register_periodic(period, fn): fn runs in tick context, per
// spec.md §4.3 — it must be short and must not call sleep or wait.
func (h *Host) registerPeriodic(L *lua.LState) int {
	period := uint32(L.CheckInt(1))
	fn := L.CheckFunction(2)

	if err := h.k.AddPeriodic(period, func() {
		h.call(fn, "periodic")
	}); err != nil {
		L.RaiseError("register_periodic: %v", err)
	}
	return 0
}

// register_aperiodic(irq, priority, fn): fn runs as the simulated ISR
// for irq, per spec.md §4.6 — it may signal semaphores but must not
// wait on one.
func (h *Host) registerAperiodic(L *lua.LState) int {
	irq := L.CheckInt(1)
	priority := uint8(L.CheckInt(2))
	fn := L.CheckFunction(3)

	if err := h.k.AddAperiodic(func() {
		h.call(fn, "aperiodic")
	}, priority, irq); err != nil {
		L.RaiseError("register_aperiodic: %v", err)
	}
	return 0
}

func (h *Host) sleep(L *lua.LState) int {
	ticks := L.CheckInt(1)
	// Lua calls back into this function synchronously from inside
	// h.call's held lock. Release it for the blocking duration of the
	// kernel sleep so a periodic/aperiodic callback (or another
	// script-driven thread) can use L while this thread is parked;
	// re-acquire before returning control to the Lua interpreter.
	h.mu.Unlock()
	h.k.Sleep(uint32(ticks))
	h.mu.Lock()
	return 0
}
