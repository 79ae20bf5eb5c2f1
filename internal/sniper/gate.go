package sniper

import "sync"

type gateSlot struct {
	inFlight bool
	filled   bool
}

// ExecutionGate admits at most one order submission per leg at a time and
// none at all once the leg is filled.
type ExecutionGate struct {
	mu    sync.Mutex
	slots [3]gateSlot // indexed by leg number; 0 unused
}

// TryAcquire returns true if the caller may submit for leg. The caller must
// Release it afterwards, whatever the outcome.
func (g *ExecutionGate) TryAcquire(leg int) bool {
	if leg < 1 || leg > 2 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &g.slots[leg]
	if s.inFlight || s.filled {
		return false
	}
	s.inFlight = true
	return true
}

// Release ends the in-flight submission for leg.
func (g *ExecutionGate) Release(leg int) {
	if leg < 1 || leg > 2 {
		return
	}
	g.mu.Lock()
	g.slots[leg].inFlight = false
	g.mu.Unlock()
}

// MarkFilled closes leg permanently.
func (g *ExecutionGate) MarkFilled(leg int) {
	if leg < 1 || leg > 2 {
		return
	}
	g.mu.Lock()
	g.slots[leg].filled = true
	g.mu.Unlock()
}

// InFlight reports whether a submission for leg is outstanding.
func (g *ExecutionGate) InFlight(leg int) bool {
	if leg < 1 || leg > 2 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slots[leg].inFlight
}

// Filled reports whether leg has been filled.
func (g *ExecutionGate) Filled(leg int) bool {
	if leg < 1 || leg > 2 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slots[leg].filled
}
