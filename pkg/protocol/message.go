// Package protocol defines the wire envelope exchanged over the message bus
// and the websocket stream between roomba nodes, the quad and operator tools.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Robot → bus messages
	TypeState  MessageType = "state"   // Per-tick status report
	TypePose   MessageType = "pose"    // Robot pose
	TypeCmdVel MessageType = "cmd_vel" // Applied velocity command
	TypeBumper MessageType = "bumper"  // Bumper state change

	// Bus → robot messages
	TypeActivate       MessageType = "activate"
	TypeDeactivate     MessageType = "deactivate"
	TypeToggleActivate MessageType = "toggle_activate"
	TypeQuadPose       MessageType = "quad_pose" // Quad position from the tracker

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Robot     string          `json:"robot,omitempty"` // Namespace, empty for broadcast
	Timestamp int64           `json:"ts,omitempty"`    // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// For sets the robot namespace and returns m.
func (m *Message) For(id robot.Identity) *Message {
	m.Robot = id.Namespace()
	return m
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Robot → bus message types
// =============================================================================

// StateData carries one status report plus its textual rendering.
type StateData struct {
	robot.StatusReport
	Text string `json:"text"`
}

// PoseData is a robot or quad position.
type PoseData struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// Pose converts to a robot pose.
func (p PoseData) Pose() robot.Pose {
	return robot.Pose{Position: robot.Vec3{X: p.X, Y: p.Y, Z: p.Z}, Yaw: p.Yaw}
}

// CmdVelData is a planar twist.
type CmdVelData struct {
	LinearX  float64 `json:"linear_x"`
	AngularZ float64 `json:"angular_z"`
}

// BumperData mirrors robot.BumperState on the wire.
type BumperData struct {
	Triggered bool    `json:"triggered"`
	With      string  `json:"with,omitempty"`
	Distance  float64 `json:"distance,omitempty"`
	Bearing   float64 `json:"bearing,omitempty"`
}

// =============================================================================
// Bus → robot message types
// =============================================================================

// ActivationData optionally names who requested the change.
type ActivationData struct {
	Source string `json:"source,omitempty"`
}

// =============================================================================
// Bidirectional message types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
