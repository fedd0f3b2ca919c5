package robot

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LoopRate is the nominal control loop frequency (Hz).
const LoopRate = 10.0

// Rotation sign convention (positive angular.z is counter-clockwise).
const (
	RotateCCW = 1.0
	RotateCW  = -1.0
)

// Speeds.
const (
	ForwardSpeed = 0.33 // m/s
)

// Physical dimensions of an iRobot-style ground robot.
const (
	Diameter    = 0.3485  // m
	Height      = 0.1     // m
	BumperAngle = math.Pi // total frontal arc, symmetric about heading
)

// ErrInvalidNamespace is returned when a namespace cannot be parsed into an Identity.
var ErrInvalidNamespace = errors.New("invalid robot namespace")

// RobotType selects the behavior of a robot.
type RobotType string

const (
	Ground   RobotType = "ground"
	Obstacle RobotType = "obstacle"
)

// ParseRobotType converts a config/topic string to a RobotType.
func ParseRobotType(s string) (RobotType, error) {
	switch RobotType(strings.ToLower(strings.TrimSpace(s))) {
	case Ground:
		return Ground, nil
	case Obstacle:
		return Obstacle, nil
	}
	return "", fmt.Errorf("unknown robot type %q", s)
}

// Identity identifies one robot in the arena. It never changes after construction.
type Identity struct {
	Type RobotType `json:"type"`
	ID   int       `json:"id"`
}

// Namespace returns "{type}_{id}", the prefix used for topics and endpoints.
func (i Identity) Namespace() string {
	return string(i.Type) + "_" + strconv.Itoa(i.ID)
}

func (i Identity) String() string {
	return i.Namespace()
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Type == "" && i.ID == 0
}

// ParseNamespace is the inverse of Identity.Namespace.
func ParseNamespace(ns string) (Identity, error) {
	idx := strings.LastIndex(ns, "_")
	if idx <= 0 || idx == len(ns)-1 {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	typ, err := ParseRobotType(ns[:idx])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidNamespace, err)
	}
	id, err := strconv.Atoi(ns[idx+1:])
	if err != nil || id < 0 {
		return Identity{}, fmt.Errorf("%w: bad id in %q", ErrInvalidNamespace, ns)
	}
	return Identity{Type: typ, ID: id}, nil
}

// Vec3 is a position in arena coordinates (meters).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlanarDistance returns the distance between v and o ignoring height.
func (v Vec3) PlanarDistance(o Vec3) float64 {
	return math.Hypot(o.X-v.X, o.Y-v.Y)
}

// Valid reports whether every component is a finite number.
func (v Vec3) Valid() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// Pose is a robot position plus heading (radians, CCW from +X).
type Pose struct {
	Position Vec3    `json:"position"`
	Yaw      float64 `json:"yaw"`
}

// Valid reports whether the pose holds only finite numbers.
func (p Pose) Valid() bool {
	return p.Position.Valid() && finite(p.Yaw)
}

// BearingTo returns the angle of target relative to the pose heading,
// normalized to (-pi, pi]. Positive means target is on the left.
func (p Pose) BearingTo(target Vec3) float64 {
	world := math.Atan2(target.Y-p.Position.Y, target.X-p.Position.X)
	return NormalizeAngle(world - p.Yaw)
}

// NormalizeAngle wraps a to (-pi, pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// VelocityCommand is the per-tick motion request handed to the MotionModel.
type VelocityCommand struct {
	LinearX  float64 `json:"linear_x"`
	AngularZ float64 `json:"angular_z"`
}

// ZeroCommand stops the robot.
var ZeroCommand = VelocityCommand{}

// IsZero reports whether the command is the stop command.
func (c VelocityCommand) IsZero() bool {
	return c == ZeroCommand
}

// DirectiveKind classifies what the evaluator sensed in a tick.
type DirectiveKind string

const (
	DirectiveNone           DirectiveKind = "none"
	DirectiveTopSwitch      DirectiveKind = "top_switch"
	DirectiveRobotCollision DirectiveKind = "robot_collision"
)

// Directive is the evaluator's classification for one tick.
// With, Distance and Bearing are set only for DirectiveRobotCollision.
type Directive struct {
	Kind     DirectiveKind `json:"kind"`
	With     Identity      `json:"with"`
	Distance float64       `json:"distance,omitempty"`
	Bearing  float64       `json:"bearing,omitempty"`
}

// NoDirective is the empty classification.
var NoDirective = Directive{Kind: DirectiveNone}

func (d Directive) String() string {
	if d.Kind == DirectiveRobotCollision {
		return fmt.Sprintf("%s(%s, %.3fm)", d.Kind, d.With.Namespace(), d.Distance)
	}
	if d.Kind == "" {
		return string(DirectiveNone)
	}
	return string(d.Kind)
}

// Bumper returns the collision component of d observed at the given time.
func (d Directive) Bumper(at time.Time) BumperState {
	if d.Kind != DirectiveRobotCollision {
		return BumperState{Time: at}
	}
	return BumperState{
		Triggered: true,
		With:      d.With.Namespace(),
		Distance:  d.Distance,
		Bearing:   d.Bearing,
		Time:      at,
	}
}

// State is the controller state machine position.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

func stateOf(active bool) State {
	if active {
		return StateActive
	}
	return StateInactive
}

// StatusReport is the read-only snapshot published once per tick.
type StatusReport struct {
	Robot         Identity        `json:"robot"`
	Namespace     string          `json:"namespace"`
	Active        bool            `json:"active"`
	State         State           `json:"state"`
	Directive     Directive       `json:"directive"`
	Command       VelocityCommand `json:"command"`
	Pose          Pose            `json:"pose"`
	Tick          uint64          `json:"tick"`
	RunningSlowly bool            `json:"running_slowly"`
	Session       string          `json:"session"`
	Time          time.Time       `json:"time"`
}

// String renders the textual state message observers subscribe to.
func (r StatusReport) String() string {
	return fmt.Sprintf("%s %s directive=%s cmd=(%.2f, %.2f) pos=(%.2f, %.2f) yaw=%.2f",
		r.Namespace, r.State, r.Directive, r.Command.LinearX, r.Command.AngularZ,
		r.Pose.Position.X, r.Pose.Position.Y, r.Pose.Yaw)
}

// BumperState is the collision component of the latest directive.
type BumperState struct {
	Triggered bool      `json:"triggered"`
	With      string    `json:"with,omitempty"`
	Distance  float64   `json:"distance,omitempty"`
	Bearing   float64   `json:"bearing,omitempty"`
	Time      time.Time `json:"time"`
}
