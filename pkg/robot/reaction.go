package robot

import "math"

// Turn rates used by the reaction policies (rad/s).
const (
	CollisionTurnRate = 1.0
	TopTurnRate       = 1.0
)

// bearingEpsilon is the band around zero treated as "dead ahead".
const bearingEpsilon = 1e-9

// React maps a directive to the command an active robot should issue.
// Inactive robots never reach this: the controller substitutes ZeroCommand.
func (b Behavior) React(d Directive) VelocityCommand {
	switch b.Kind {
	case Ground:
		switch d.Kind {
		case DirectiveRobotCollision:
			return VelocityCommand{AngularZ: turnAwayFrom(d.Bearing) * CollisionTurnRate}
		case DirectiveTopSwitch:
			return VelocityCommand{AngularZ: RotateCW * TopTurnRate}
		}
		return VelocityCommand{LinearX: ForwardSpeed}
	case Obstacle:
		if d.Kind == DirectiveNone || d.Kind == "" {
			return VelocityCommand{LinearX: ForwardSpeed}
		}
		return ZeroCommand
	}
	return ZeroCommand
}

// turnAwayFrom picks the rotation direction that swings the heading away
// from a contact at the given bearing. Dead-ahead contacts turn clockwise.
func turnAwayFrom(bearing float64) float64 {
	if math.Abs(bearing) < bearingEpsilon || bearing > 0 {
		return RotateCW
	}
	return RotateCCW
}
