package protocol

import (
	"testing"
	"time"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

var ground3 = robot.Identity{Type: robot.Ground, ID: 3}

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "pose message",
			msgType: TypePose,
			data:    PoseData{X: 1, Y: 2, Yaw: 0.5},
			wantErr: false,
		},
		{
			name:    "cmd_vel message",
			msgType: TypeCmdVel,
			data:    CmdVelData{LinearX: 0.33},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unencodable data",
			msgType: TypeState,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestStateMessageRoundTrip(t *testing.T) {
	report := robot.StatusReport{
		Robot:     ground3,
		Namespace: ground3.Namespace(),
		Active:    true,
		State:     robot.StateActive,
		Directive: robot.Directive{Kind: robot.DirectiveRobotCollision, With: robot.Identity{Type: robot.Obstacle, ID: 1}, Distance: 0.2},
		Command:   robot.VelocityCommand{AngularZ: robot.RotateCW},
		Tick:      42,
	}

	msg, err := NewStateMessage(report)
	if err != nil {
		t.Fatalf("NewStateMessage() error = %v", err)
	}
	if msg.Robot != "ground_3" {
		t.Errorf("Robot = %q, want ground_3", msg.Robot)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	state, err := parsed.GetStateData()
	if err != nil {
		t.Fatalf("GetStateData() error = %v", err)
	}
	if !state.Active || state.State != robot.StateActive {
		t.Errorf("state = %v/%v, want active", state.Active, state.State)
	}
	if state.Directive.With != (robot.Identity{Type: robot.Obstacle, ID: 1}) {
		t.Errorf("Directive.With = %v, want obstacle_1", state.Directive.With)
	}
	if state.Tick != 42 {
		t.Errorf("Tick = %v, want 42", state.Tick)
	}
	if state.Text != report.String() {
		t.Errorf("Text = %q, want %q", state.Text, report.String())
	}

	id, err := parsed.RobotIdentity()
	if err != nil || id != ground3 {
		t.Errorf("RobotIdentity() = %v, %v", id, err)
	}
}

func TestPoseMessage(t *testing.T) {
	pose := robot.Pose{Position: robot.Vec3{X: 1.5, Y: -2}, Yaw: 0.25}

	msg, err := NewPoseMessage(ground3, pose)
	if err != nil {
		t.Fatalf("NewPoseMessage() error = %v", err)
	}
	if msg.Type != TypePose {
		t.Errorf("Type = %v, want %v", msg.Type, TypePose)
	}

	data, err := msg.GetPoseData()
	if err != nil {
		t.Fatalf("GetPoseData() error = %v", err)
	}
	if data.Pose() != pose {
		t.Errorf("Pose() = %+v, want %+v", data.Pose(), pose)
	}
}

func TestQuadPoseMessage(t *testing.T) {
	msg, err := NewQuadPoseMessage(robot.Vec3{X: 1, Y: 2, Z: 0.12})
	if err != nil {
		t.Fatalf("NewQuadPoseMessage() error = %v", err)
	}
	if msg.Robot != "" {
		t.Errorf("quad messages carry no robot namespace, got %q", msg.Robot)
	}

	data, err := msg.GetPoseData()
	if err != nil {
		t.Fatalf("GetPoseData() error = %v", err)
	}
	if data.Z != 0.12 {
		t.Errorf("Z = %v, want 0.12", data.Z)
	}
}

func TestCmdVelMessage(t *testing.T) {
	msg, err := NewCmdVelMessage(ground3, robot.VelocityCommand{LinearX: robot.ForwardSpeed})
	if err != nil {
		t.Fatalf("NewCmdVelMessage() error = %v", err)
	}

	data, err := msg.GetCmdVelData()
	if err != nil {
		t.Fatalf("GetCmdVelData() error = %v", err)
	}
	if data.LinearX != robot.ForwardSpeed || data.AngularZ != 0 {
		t.Errorf("cmd = %+v", data)
	}
}

func TestBumperMessage(t *testing.T) {
	msg, err := NewBumperMessage(ground3, robot.BumperState{Triggered: true, With: "ground_7", Distance: 0.1})
	if err != nil {
		t.Fatalf("NewBumperMessage() error = %v", err)
	}

	data, err := msg.GetBumperData()
	if err != nil {
		t.Fatalf("GetBumperData() error = %v", err)
	}
	if !data.Triggered || data.With != "ground_7" {
		t.Errorf("bumper = %+v", data)
	}
}

func TestActivationMessage(t *testing.T) {
	for _, typ := range []MessageType{TypeActivate, TypeDeactivate, TypeToggleActivate} {
		msg, err := NewActivationMessage(typ, ground3, "roombactl")
		if err != nil {
			t.Fatalf("NewActivationMessage(%s) error = %v", typ, err)
		}
		if !IsActivation(msg.Type) {
			t.Errorf("IsActivation(%s) = false", msg.Type)
		}
	}
	if IsActivation(TypeState) {
		t.Error("IsActivation(state) = true")
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Error("expected error for malformed message")
	}

	msg, err := ParseMessage([]byte(`{"type":"activate","robot":"quad_0"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if _, err := msg.RobotIdentity(); err == nil {
		t.Error("expected error for non-robot namespace")
	}

	var empty PoseData
	if err := msg.ParseData(&empty); err != nil {
		t.Errorf("ParseData on empty data: %v", err)
	}
}
