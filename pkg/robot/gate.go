package robot

import "sync/atomic"

// Gate holds a robot's activation state.
//
// Every method is safe to call from any goroutine and never blocks: request
// handlers flip the flag while the control loop reads it once per tick.
type Gate struct {
	active atomic.Bool
}

// NewGate returns a gate in the given initial state.
func NewGate(active bool) *Gate {
	g := &Gate{}
	g.active.Store(active)
	return g
}

// Activate sets the robot active. Activating an active robot is a no-op.
func (g *Gate) Activate() {
	g.active.Store(true)
}

// Deactivate sets the robot inactive.
func (g *Gate) Deactivate() {
	g.active.Store(false)
}

// Toggle flips the state and returns the new value.
func (g *Gate) Toggle() bool {
	for {
		old := g.active.Load()
		if g.active.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// IsActive returns the current state.
func (g *Gate) IsActive() bool {
	return g.active.Load()
}
