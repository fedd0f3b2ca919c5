package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-roomba/internal/metrics"
	"github.com/teslashibe/go-roomba/pkg/motion"
	"github.com/teslashibe/go-roomba/pkg/protocol"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

// Activator is the activation surface of a local controller.
type Activator interface {
	Activate() bool
	Deactivate() bool
	Toggle() bool
}

// PoseRegistry receives poses heard on the bus.
type PoseRegistry interface {
	UpdatePose(id robot.Identity, pose robot.Pose)
	SetQuad(pos robot.Vec3)
}

type outbound struct {
	topic   string
	key     string
	payload []byte
}

// BridgeStats contains bridge counters.
type BridgeStats struct {
	Published   int64
	Dropped     int64
	Failed      int64
	Received    int64
	Activations int64
	Ignored     int64
}

// Bridge publishes local robot state to the bus and routes inbound poses
// and activation requests to the arena and the local controllers.
// It implements robot.StatusPublisher and motion.CommandSink; both enqueue
// and return immediately, Run does the network I/O.
type Bridge struct {
	transport Transport
	topics    *Topics
	arena     PoseRegistry
	logger    *slog.Logger

	mu         sync.RWMutex
	local      map[robot.Identity]Activator
	lastBumper map[robot.Identity]bool

	outbox chan outbound

	published   atomic.Int64
	dropped     atomic.Int64
	failed      atomic.Int64
	received    atomic.Int64
	activations atomic.Int64
	ignored     atomic.Int64

	lastErrorTime time.Time // touched only by Run
}

// NewBridge creates a bridge over transport. arena may be nil.
func NewBridge(transport Transport, topics *Topics, arena PoseRegistry, outboxSize int, logger *slog.Logger) *Bridge {
	if outboxSize <= 0 {
		outboxSize = DefaultConfig().OutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		transport:  transport,
		topics:     topics,
		arena:      arena,
		logger:     logger.With("component", "bridge"),
		local:      make(map[robot.Identity]Activator),
		lastBumper: make(map[robot.Identity]bool),
		outbox:     make(chan outbound, outboxSize),
	}
}

// Register makes a local controller reachable by activation topics.
func (b *Bridge) Register(id robot.Identity, a Activator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local[id] = a
}

func (b *Bridge) lookup(id robot.Identity) (Activator, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.local[id]
	return a, ok
}

// Start subscribes to poses and activation requests.
func (b *Bridge) Start() error {
	for _, kind := range []string{KindPose, KindActivate, KindDeactivate, KindToggleActivate} {
		if err := b.transport.Subscribe(b.topics.Subscription(kind), b.handle); err != nil {
			return err
		}
	}
	b.logger.Info("bridge subscribed", "pose", b.topics.Subscription(KindPose))
	return nil
}

// Run drains the outbox until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.transport.Publish(msg.topic, msg.key, msg.payload); err != nil {
				b.failed.Add(1)
				// Rate limit error logging
				if time.Since(b.lastErrorTime) > 5*time.Second {
					b.logger.Warn("publish failed", "topic", msg.topic, "error", err)
					b.lastErrorTime = time.Now()
				}
				continue
			}
			b.published.Add(1)
		}
	}
}

// Publish enqueues the state and pose of a report, plus the bumper state
// when it changes.
func (b *Bridge) Publish(report robot.StatusReport) error {
	state, err := protocol.NewStateMessage(report)
	if err != nil {
		return err
	}
	b.enqueue(report.Robot, KindState, state)

	pose, err := protocol.NewPoseMessage(report.Robot, report.Pose)
	if err != nil {
		return err
	}
	b.enqueue(report.Robot, KindPose, pose)

	triggered := report.Directive.Kind == robot.DirectiveRobotCollision
	b.mu.Lock()
	prev, seen := b.lastBumper[report.Robot]
	b.lastBumper[report.Robot] = triggered
	b.mu.Unlock()
	if !seen || prev != triggered {
		msg, err := protocol.NewBumperMessage(report.Robot, report.Directive.Bumper(report.Time))
		if err != nil {
			return err
		}
		b.enqueue(report.Robot, KindBumper, msg)
	}
	return nil
}

// SendCmdVel enqueues an applied velocity command.
func (b *Bridge) SendCmdVel(id robot.Identity, cmd robot.VelocityCommand) error {
	msg, err := protocol.NewCmdVelMessage(id, cmd)
	if err != nil {
		return err
	}
	b.enqueue(id, KindCmdVel, msg)
	return nil
}

func (b *Bridge) enqueue(id robot.Identity, kind string, msg *protocol.Message) {
	payload, err := msg.Bytes()
	if err != nil {
		b.logger.Error("encode message", "kind", kind, "error", err)
		return
	}
	topic, key := b.topics.Robot(id, kind)
	select {
	case b.outbox <- outbound{topic: topic, key: key, payload: payload}:
	default:
		b.dropped.Add(1)
		metrics.DroppedReport("bus")
	}
}

// handle dispatches one inbound message.
func (b *Bridge) handle(topic, key string, payload []byte) {
	b.received.Add(1)

	ns, kind, ok := b.topics.Parse(topic, key)
	if !ok {
		b.ignored.Add(1)
		return
	}

	if ns == QuadNamespace {
		if kind == KindPose {
			b.handleQuad(payload)
		} else {
			b.ignored.Add(1)
		}
		return
	}

	id, err := robot.ParseNamespace(ns)
	if err != nil {
		b.ignored.Add(1)
		return
	}

	switch kind {
	case KindPose:
		b.handlePose(id, payload)
	case KindActivate, KindDeactivate, KindToggleActivate:
		b.handleActivation(id, kind)
	default:
		b.ignored.Add(1)
	}
}

func (b *Bridge) handlePose(id robot.Identity, payload []byte) {
	// Local robots feed the registry directly from their motion model.
	if _, local := b.lookup(id); local || b.arena == nil {
		return
	}
	pose, ok := decodePose(payload)
	if !ok {
		b.ignored.Add(1)
		return
	}
	b.arena.UpdatePose(id, pose.Pose())
}

func (b *Bridge) handleQuad(payload []byte) {
	if b.arena == nil {
		return
	}
	pose, ok := decodePose(payload)
	if !ok {
		b.ignored.Add(1)
		return
	}
	b.arena.SetQuad(robot.Vec3{X: pose.X, Y: pose.Y, Z: pose.Z})
}

// handleActivation accepts any payload; the topic names the request.
func (b *Bridge) handleActivation(id robot.Identity, kind string) {
	a, ok := b.lookup(id)
	if !ok {
		return
	}
	var active bool
	switch kind {
	case KindActivate:
		active = a.Activate()
	case KindDeactivate:
		active = a.Deactivate()
	case KindToggleActivate:
		active = a.Toggle()
	}
	b.activations.Add(1)
	b.logger.Info("activation request", "robot", id.Namespace(), "op", kind, "active", active)
}

// decodePose accepts a protocol envelope or a bare PoseData object.
func decodePose(payload []byte) (protocol.PoseData, bool) {
	msg, err := protocol.ParseMessage(payload)
	if err == nil && msg.Type != "" {
		data, err := msg.GetPoseData()
		if err != nil || msg.Data == nil {
			return protocol.PoseData{}, false
		}
		return *data, true
	}
	var data protocol.PoseData
	if err := json.Unmarshal(payload, &data); err != nil {
		return protocol.PoseData{}, false
	}
	return data, true
}

// Stats returns bridge counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Failed:      b.failed.Load(),
		Received:    b.received.Load(),
		Activations: b.activations.Load(),
		Ignored:     b.ignored.Load(),
	}
}

// Ensure Bridge implements the sink interfaces
var (
	_ robot.StatusPublisher = (*Bridge)(nil)
	_ motion.CommandSink    = (*Bridge)(nil)
)
