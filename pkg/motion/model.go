// Package motion provides the moving-object model a robot controller drives.
// It integrates velocity commands into a planar pose (unicycle kinematics)
// and optionally forwards every command and pose to external sinks.
package motion

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

// Option names the physical model used to integrate commands.
type Option string

const (
	// Kinematic applies the commanded velocity instantly.
	Kinematic Option = "kinematic"
	// Damped slews toward the commanded velocity under acceleration limits.
	Damped Option = "damped"
)

// Default acceleration limits for the damped model.
const (
	DefaultMaxLinearAccel  = 0.5 // m/s^2
	DefaultMaxAngularAccel = 2.0 // rad/s^2
)

// ParseOption converts a config string to an Option. Empty means Kinematic.
func ParseOption(s string) (Option, error) {
	switch Option(strings.ToLower(strings.TrimSpace(s))) {
	case "", Kinematic:
		return Kinematic, nil
	case Damped:
		return Damped, nil
	}
	return "", fmt.Errorf("unknown motion model %q (want %q or %q)", s, Kinematic, Damped)
}

// CommandSink receives every command the model applies (e.g. a cmd_vel topic).
type CommandSink interface {
	SendCmdVel(id robot.Identity, cmd robot.VelocityCommand) error
}

// PoseSink is notified of the pose after each integration step.
type PoseSink interface {
	UpdatePose(id robot.Identity, pose robot.Pose)
}

// Model integrates velocity commands for one robot. It implements robot.MotionModel.
type Model struct {
	id     robot.Identity
	option Option
	dt     float64

	maxLinearAccel  float64
	maxAngularAccel float64

	mu       sync.RWMutex
	pose     robot.Pose
	velocity robot.VelocityCommand // actual velocity after limits
	cmdSink  CommandSink
	poseSink PoseSink
}

// New creates a model starting at the initial pose. dt is the integration
// step, normally the controller tick period.
func New(id robot.Identity, initial robot.Pose, option Option, dt time.Duration) *Model {
	if option == "" {
		option = Kinematic
	}
	return &Model{
		id:              id,
		option:          option,
		dt:              dt.Seconds(),
		maxLinearAccel:  DefaultMaxLinearAccel,
		maxAngularAccel: DefaultMaxAngularAccel,
		pose:            initial,
	}
}

// SetCommandSink sets where applied commands are forwarded.
func (m *Model) SetCommandSink(sink CommandSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmdSink = sink
}

// SetPoseSink sets the callback for pose changes (arena registry sync).
func (m *Model) SetPoseSink(sink PoseSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poseSink = sink
}

// Option returns the configured physical model.
func (m *Model) Option() Option { return m.option }

// Apply integrates one step of cmd and forwards it to the sinks.
func (m *Model) Apply(cmd robot.VelocityCommand) error {
	if math.IsNaN(cmd.LinearX) || math.IsNaN(cmd.AngularZ) {
		return fmt.Errorf("invalid velocity command %+v", cmd)
	}

	m.mu.Lock()
	v := cmd
	if m.option == Damped {
		v.LinearX = m.velocity.LinearX + clampStep(cmd.LinearX-m.velocity.LinearX, m.maxLinearAccel*m.dt)
		v.AngularZ = m.velocity.AngularZ + clampStep(cmd.AngularZ-m.velocity.AngularZ, m.maxAngularAccel*m.dt)
	}
	m.velocity = v
	m.pose = integrate(m.pose, v, m.dt)
	pose := m.pose
	cmdSink, poseSink := m.cmdSink, m.poseSink
	m.mu.Unlock()

	if poseSink != nil {
		poseSink.UpdatePose(m.id, pose)
	}
	if cmdSink != nil {
		if err := cmdSink.SendCmdVel(m.id, cmd); err != nil {
			return fmt.Errorf("forward cmd_vel: %w", err)
		}
	}
	return nil
}

// Pose returns the current pose.
func (m *Model) Pose() robot.Pose {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pose
}

// Velocity returns the velocity actually applied in the last step.
func (m *Model) Velocity() robot.VelocityCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.velocity
}

// integrate advances a unicycle by one step using the midpoint heading.
func integrate(p robot.Pose, v robot.VelocityCommand, dt float64) robot.Pose {
	mid := p.Yaw + v.AngularZ*dt/2
	p.Position.X += v.LinearX * math.Cos(mid) * dt
	p.Position.Y += v.LinearX * math.Sin(mid) * dt
	p.Yaw = robot.NormalizeAngle(p.Yaw + v.AngularZ*dt)
	return p
}

// clampStep limits delta to ±maxStep.
func clampStep(delta, maxStep float64) float64 {
	if delta > maxStep {
		return maxStep
	}
	if delta < -maxStep {
		return -maxStep
	}
	return delta
}

// Ensure Model implements robot.MotionModel
var _ robot.MotionModel = (*Model)(nil)
