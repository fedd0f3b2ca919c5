// Package robot implements the arena robot's activation state machine and
// its fixed-rate control loop.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces for each collaborator the controller talks to.
// The motion model, sensor feed and report sinks live in other packages and
// only need to satisfy the interface used here.
package robot

import "time"

// MotionModel owns the robot pose and integrates velocity commands.
type MotionModel interface {
	Apply(cmd VelocityCommand) error
	Pose() Pose
}

// Sensors supplies the per-tick interaction inputs for one robot.
// Neighbors that have never been seen should be returned with Known=false
// or omitted; the quad position is nil when unavailable.
type Sensors interface {
	Snapshot(self Identity) (neighbors []Neighbor, top *Vec3, err error)
}

// StatusPublisher receives one report per tick. Implementations must not
// block the control loop for longer than a short critical section.
type StatusPublisher interface {
	Publish(report StatusReport) error
}

// EventKind identifies a journaled controller event.
type EventKind string

const (
	EventActivate    EventKind = "activate"
	EventDeactivate  EventKind = "deactivate"
	EventToggle      EventKind = "toggle"
	EventDirective   EventKind = "directive"
	EventSlowTick    EventKind = "slow_tick"
	EventTickFailure EventKind = "tick_failure"
)

// Event is a notable state change of a controller.
type Event struct {
	Robot   Identity  `json:"robot"`
	Kind    EventKind `json:"kind"`
	Active  bool      `json:"active"`
	Detail  string    `json:"detail,omitempty"`
	Tick    uint64    `json:"tick"`
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
}

// EventSink records controller events. Record must not block.
type EventSink interface {
	Record(ev Event)
}

// PublisherFunc adapts a function to StatusPublisher.
type PublisherFunc func(StatusReport) error

// Publish calls f(report).
func (f PublisherFunc) Publish(report StatusReport) error {
	return f(report)
}

// noSensors reports an empty arena.
type noSensors struct{}

func (noSensors) Snapshot(Identity) ([]Neighbor, *Vec3, error) { return nil, nil, nil }

// Ensure adapters implement their interfaces
var (
	_ StatusPublisher = PublisherFunc(nil)
	_ Sensors         = noSensors{}
)
