package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-roomba/internal/metrics"
	"github.com/teslashibe/go-roomba/pkg/debug"
)

// errorLogInterval bounds how often recoverable tick errors are logged.
const errorLogInterval = 5 * time.Second

// Config is the immutable construction input of a Controller.
type Config struct {
	Robot   Identity
	Active  bool          // initial activation state
	Period  time.Duration // defaults to 1/LoopRate
	Session string        // defaults to a fresh UUID
}

// Deps are the collaborators a Controller delegates to. Only Model is required.
type Deps struct {
	Model     MotionModel
	Sensors   Sensors
	Publisher StatusPublisher
	Events    EventSink
	Logger    *slog.Logger // expected to carry the robot namespace
}

// Stats are the loop diagnostics.
type Stats struct {
	Ticks         uint64 `json:"ticks"`
	Errors        uint64 `json:"errors"`
	SlowTicks     uint64 `json:"slow_ticks"`
	RunningSlowly bool   `json:"running_slowly"`
}

// Controller runs one robot's fixed-rate control loop.
//
// Each tick it reads the activation gate once, evaluates interactions,
// derives a velocity command (zero while inactive), hands it to the motion
// model and publishes a status report. Activation requests may arrive from
// any goroutine; they take effect on the next tick.
type Controller struct {
	id       Identity
	behavior Behavior
	gate     *Gate
	session  string
	period   time.Duration

	model     MotionModel
	sensors   Sensors
	publisher StatusPublisher
	events    EventSink
	logger    *slog.Logger
	now       func() time.Time

	stop     chan struct{}
	stopOnce sync.Once

	// Diagnostics
	tickCount  atomic.Uint64
	errorCount atomic.Uint64
	slowTicks  atomic.Uint64
	slow       atomic.Bool

	// Latest results, read by request handlers
	mu     sync.RWMutex
	last   StatusReport
	hasRun bool
	bumper BumperState

	// Owned by the loop goroutine
	lastDirective Directive
	lastErrorTime time.Time
}

// NewController creates a controller for cfg.Robot. It panics if deps.Model is nil.
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Model == nil {
		panic("robot: NewController requires a MotionModel")
	}
	period := cfg.Period
	if period <= 0 {
		period = time.Duration(float64(time.Second) / LoopRate)
	}
	session := cfg.Session
	if session == "" {
		session = uuid.NewString()
	}
	sensors := deps.Sensors
	if sensors == nil {
		sensors = noSensors{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("robot", cfg.Robot.Namespace())
	}

	c := &Controller{
		id:            cfg.Robot,
		behavior:      BehaviorFor(cfg.Robot.Type),
		gate:          NewGate(cfg.Active),
		session:       session,
		period:        period,
		model:         deps.Model,
		sensors:       sensors,
		publisher:     deps.Publisher,
		events:        deps.Events,
		logger:        logger,
		now:           time.Now,
		stop:          make(chan struct{}),
		lastDirective: NoDirective,
	}
	metrics.SetActive(c.id.Namespace(), cfg.Active)
	return c
}

// Robot returns the controller's identity.
func (c *Controller) Robot() Identity { return c.id }

// RobotType returns the robot's type.
func (c *Controller) RobotType() RobotType { return c.id.Type }

// Session returns the run identifier stamped on every report.
func (c *Controller) Session() string { return c.session }

// Period returns the nominal tick period.
func (c *Controller) Period() time.Duration { return c.period }

// IsActive returns the current activation state.
func (c *Controller) IsActive() bool { return c.gate.IsActive() }

// State returns the current state machine position.
func (c *Controller) State() State { return stateOf(c.gate.IsActive()) }

// Activate switches the robot to Active. Idempotent.
func (c *Controller) Activate() bool {
	c.gate.Activate()
	c.activationChanged(EventActivate, true)
	return true
}

// Deactivate switches the robot to Inactive. Idempotent.
func (c *Controller) Deactivate() bool {
	c.gate.Deactivate()
	c.activationChanged(EventDeactivate, false)
	return false
}

// Toggle flips the activation state and returns the new value.
func (c *Controller) Toggle() bool {
	active := c.gate.Toggle()
	c.activationChanged(EventToggle, active)
	return active
}

func (c *Controller) activationChanged(kind EventKind, active bool) {
	metrics.Activation(c.id.Namespace(), string(kind), active)
	c.logger.Info("activation request", "op", kind, "active", active)
	c.record(Event{Kind: kind, Active: active, Tick: c.tickCount.Load()})
}

// RunningSlowly reports whether the latest tick overran its period.
func (c *Controller) RunningSlowly() bool { return c.slow.Load() }

// Stats returns the loop diagnostics.
func (c *Controller) Stats() Stats {
	return Stats{
		Ticks:         c.tickCount.Load(),
		Errors:        c.errorCount.Load(),
		SlowTicks:     c.slowTicks.Load(),
		RunningSlowly: c.slow.Load(),
	}
}

// Last returns the most recent report; ok is false before the first tick.
func (c *Controller) Last() (report StatusReport, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.hasRun
}

// Bumper returns the collision component of the latest directive.
func (c *Controller) Bumper() BumperState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bumper
}

// Run executes ticks at the nominal period until ctx is cancelled or Stop
// is called. A tick that overruns is followed immediately by the next one;
// missed ticks are neither replayed nor coalesced.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("control loop started",
		"hz", float64(time.Second)/float64(c.period),
		"state", c.State(),
		"session", c.session)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopped", "reason", ctx.Err(), "ticks", c.tickCount.Load())
			return
		case <-c.stop:
			c.logger.Info("control loop stopped", "ticks", c.tickCount.Load())
			return
		case <-timer.C:
		}

		start := time.Now()
		c.Tick()
		wait := c.period - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Stop halts Run between ticks. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Tick executes one control cycle and returns the report it published.
func (c *Controller) Tick() StatusReport {
	start := c.now()
	ns := c.id.Namespace()

	tick := c.tickCount.Add(1)

	// The value read here is used for the whole tick.
	active := c.gate.IsActive()

	directive, err := c.evaluate()
	cmd := ZeroCommand
	if err != nil {
		c.tickError("evaluate", err)
		c.record(Event{Kind: EventTickFailure, Active: active, Detail: err.Error(), Tick: tick})
	} else if active {
		cmd = c.behavior.React(directive)
	}

	if err := c.model.Apply(cmd); err != nil {
		c.tickError("motion", err)
	}

	report := StatusReport{
		Robot:         c.id,
		Namespace:     ns,
		Active:        active,
		State:         stateOf(active),
		Directive:     directive,
		Command:       cmd,
		Pose:          c.model.Pose(),
		Tick:          tick,
		RunningSlowly: c.slow.Load(),
		Session:       c.session,
		Time:          start,
	}

	c.mu.Lock()
	c.last = report
	c.hasRun = true
	c.bumper = directive.Bumper(start)
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.Publish(report); err != nil {
			c.tickError("publish", err)
		}
	}

	if directive.Kind != c.lastDirective.Kind || directive.With != c.lastDirective.With {
		c.record(Event{Kind: EventDirective, Active: active, Detail: directive.String(), Tick: tick})
	}
	c.lastDirective = directive

	debug.TickLog("🤖 %s\n", report)

	elapsed := c.now().Sub(start)
	slow := elapsed > c.period
	if slow {
		c.slowTicks.Add(1)
		if !c.slow.Load() {
			c.logger.Warn("control loop running slowly", "tick", tick, "elapsed", elapsed, "period", c.period)
			c.record(Event{Kind: EventSlowTick, Active: active, Detail: elapsed.String(), Tick: tick})
		}
	}
	c.slow.Store(slow)
	metrics.ObserveTick(ns, string(directive.Kind), elapsed.Seconds(), slow)

	return report
}

// evaluate snapshots the sensors and classifies the context. Sensor errors
// and evaluator panics come back as errors with NoDirective.
func (c *Controller) evaluate() (d Directive, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = NoDirective, fmt.Errorf("evaluation panic: %v", r)
		}
	}()

	neighbors, top, err := c.sensors.Snapshot(c.id)
	if err != nil {
		return NoDirective, fmt.Errorf("sensor snapshot: %w", err)
	}
	return c.behavior.Evaluate(EvalContext{
		Self:      c.id,
		Pose:      c.model.Pose(),
		Neighbors: neighbors,
		Top:       top,
	}), nil
}

func (c *Controller) tickError(stage string, err error) {
	total := c.errorCount.Add(1)
	metrics.TickError(c.id.Namespace(), stage)
	// Log errors (but don't spam - max once per 5 seconds)
	now := c.now()
	if c.lastErrorTime.IsZero() || now.Sub(c.lastErrorTime) > errorLogInterval {
		c.logger.Warn("tick error", "stage", stage, "error", err, "total_errors", total)
		c.lastErrorTime = now
	}
}

func (c *Controller) record(ev Event) {
	if c.events == nil {
		return
	}
	ev.Robot = c.id
	ev.Session = c.session
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	c.events.Record(ev)
}
