package robot

import (
	"math"
	"sort"
)

// TopZoneMargin is how far above the robot's top plate the quad may hover
// and still count as touching the top switch (m).
const TopZoneMargin = 0.05

// Neighbor is the last known pose of another robot. Known is false when no
// pose has been received yet (or it went stale).
type Neighbor struct {
	Robot Identity
	Pose  Pose
	Known bool
}

// EvalContext is everything the evaluator looks at in a single tick.
// Top is the quad position, nil when unavailable.
type EvalContext struct {
	Self      Identity
	Pose      Pose
	Neighbors []Neighbor
	Top       *Vec3
}

// Behavior is the per-type interaction capability. It is a tagged variant:
// Kind selects which checks and which reaction policy apply.
type Behavior struct {
	Kind     RobotType
	Diameter float64
	Height   float64
}

// BehaviorFor returns the standard behavior for a robot type.
func BehaviorFor(t RobotType) Behavior {
	return Behavior{Kind: t, Diameter: Diameter, Height: Height}
}

// Evaluate classifies the spatial context. It never fails: missing data
// counts as no interaction.
func (b Behavior) Evaluate(ctx EvalContext) Directive {
	if !ctx.Pose.Valid() {
		return NoDirective
	}
	switch b.Kind {
	case Ground:
		// Overhead contact outranks lateral contact.
		if b.checkTopInteraction(ctx.Pose, ctx.Top, b.Diameter) {
			return Directive{Kind: DirectiveTopSwitch}
		}
		return b.checkRobotCollision(ctx, false)
	case Obstacle:
		return b.checkRobotCollision(ctx, true)
	}
	return NoDirective
}

// checkRobotCollision returns the nearest touching robot. With frontalOnly
// set, contacts outside the bumper arc are side grazes and ignored.
func (b Behavior) checkRobotCollision(ctx EvalContext, frontalOnly bool) Directive {
	var hits []Directive
	for _, n := range ctx.Neighbors {
		if !n.Known || n.Robot == ctx.Self || !n.Pose.Position.Valid() {
			continue
		}
		dist := ctx.Pose.Position.PlanarDistance(n.Pose.Position)
		if dist >= b.Diameter {
			continue
		}
		bearing := ctx.Pose.BearingTo(n.Pose.Position)
		if dist == 0 {
			bearing = 0
		}
		if frontalOnly && math.Abs(bearing) > BumperAngle/2 {
			continue
		}
		hits = append(hits, Directive{
			Kind:     DirectiveRobotCollision,
			With:     n.Robot,
			Distance: dist,
			Bearing:  bearing,
		})
	}
	if len(hits) == 0 {
		return NoDirective
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].With.Namespace() < hits[j].With.Namespace()
	})
	return hits[0]
}

// checkTopInteraction reports whether the quad is resting on the robot's top switch.
func (b Behavior) checkTopInteraction(pose Pose, top *Vec3, diameter float64) bool {
	if top == nil || !top.Valid() {
		return false
	}
	if pose.Position.PlanarDistance(*top) > diameter/2 {
		return false
	}
	return top.Z-pose.Position.Z <= b.Height+TopZoneMargin
}
