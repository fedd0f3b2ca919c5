package protocol

import (
	"time"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewStateMessage creates a state message from a status report
func NewStateMessage(report robot.StatusReport) (*Message, error) {
	msg, err := NewMessage(TypeState, StateData{StatusReport: report, Text: report.String()})
	if err != nil {
		return nil, err
	}
	return msg.For(report.Robot), nil
}

// NewPoseMessage creates a pose message for a robot
func NewPoseMessage(id robot.Identity, pose robot.Pose) (*Message, error) {
	msg, err := NewMessage(TypePose, poseData(pose))
	if err != nil {
		return nil, err
	}
	return msg.For(id), nil
}

// NewQuadPoseMessage creates a quad position message
func NewQuadPoseMessage(pos robot.Vec3) (*Message, error) {
	return NewMessage(TypeQuadPose, PoseData{X: pos.X, Y: pos.Y, Z: pos.Z})
}

// NewCmdVelMessage creates a velocity command message
func NewCmdVelMessage(id robot.Identity, cmd robot.VelocityCommand) (*Message, error) {
	msg, err := NewMessage(TypeCmdVel, CmdVelData{LinearX: cmd.LinearX, AngularZ: cmd.AngularZ})
	if err != nil {
		return nil, err
	}
	return msg.For(id), nil
}

// NewBumperMessage creates a bumper message
func NewBumperMessage(id robot.Identity, b robot.BumperState) (*Message, error) {
	msg, err := NewMessage(TypeBumper, BumperData{
		Triggered: b.Triggered,
		With:      b.With,
		Distance:  b.Distance,
		Bearing:   b.Bearing,
	})
	if err != nil {
		return nil, err
	}
	return msg.For(id), nil
}

// NewActivationMessage creates an activate, deactivate or toggle_activate request
func NewActivationMessage(msgType MessageType, id robot.Identity, source string) (*Message, error) {
	msg, err := NewMessage(msgType, ActivationData{Source: source})
	if err != nil {
		return nil, err
	}
	return msg.For(id), nil
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// IsActivation reports whether t is one of the activation request types.
func IsActivation(t MessageType) bool {
	return t == TypeActivate || t == TypeDeactivate || t == TypeToggleActivate
}

func poseData(p robot.Pose) PoseData {
	return PoseData{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z, Yaw: p.Yaw}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPoseData extracts pose data from a message
func (m *Message) GetPoseData() (*PoseData, error) {
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCmdVelData extracts a velocity command from a message
func (m *Message) GetCmdVelData() (*CmdVelData, error) {
	var data CmdVelData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetBumperData extracts bumper data from a message
func (m *Message) GetBumperData() (*BumperData, error) {
	var data BumperData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// RobotIdentity parses the Robot field.
func (m *Message) RobotIdentity() (robot.Identity, error) {
	return robot.ParseNamespace(m.Robot)
}
