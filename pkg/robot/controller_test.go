package robot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// mockModel records all applied commands for testing
type mockModel struct {
	mu   sync.Mutex
	pose Pose
	cmds []VelocityCommand
	err  error
}

func (m *mockModel) Apply(cmd VelocityCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmd)
	return m.err
}

func (m *mockModel) Pose() Pose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose
}

func (m *mockModel) lastCmd() VelocityCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cmds) == 0 {
		return VelocityCommand{LinearX: math.NaN()}
	}
	return m.cmds[len(m.cmds)-1]
}

func (m *mockModel) applyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cmds)
}

// fakeSensors returns a fixed arena snapshot
type fakeSensors struct {
	mu        sync.Mutex
	neighbors []Neighbor
	top       *Vec3
	err       error
}

func (f *fakeSensors) Snapshot(Identity) ([]Neighbor, *Vec3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.neighbors, f.top, f.err
}

type panicSensors struct{}

func (panicSensors) Snapshot(Identity) ([]Neighbor, *Vec3, error) {
	panic("sensor driver exploded")
}

// recorder collects reports and events
type recorder struct {
	mu      sync.Mutex
	reports []StatusReport
	events  []Event
}

func (r *recorder) Publish(report StatusReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) reportCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *recorder) eventKinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

var groundZero = Identity{Type: Ground, ID: 0}

func newTestController(active bool, sensors Sensors) (*Controller, *mockModel, *recorder) {
	model := &mockModel{}
	rec := &recorder{}
	ctrl := NewController(Config{Robot: groundZero, Active: active}, Deps{
		Model:     model,
		Sensors:   sensors,
		Publisher: rec,
		Events:    rec,
	})
	return ctrl, model, rec
}

func TestController_InactiveEmitsZeroCommand(t *testing.T) {
	directives := []struct {
		name    string
		sensors *fakeSensors
	}{
		{"no neighbors", &fakeSensors{}},
		{"collision", &fakeSensors{neighbors: []Neighbor{
			{Robot: Identity{Type: Ground, ID: 1}, Pose: Pose{Position: Vec3{X: 0.2}}, Known: true},
		}}},
		{"top switch", &fakeSensors{top: &Vec3{Z: 0.12}}},
	}

	for _, tt := range directives {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, model, _ := newTestController(false, tt.sensors)
			for i := 0; i < 3; i++ {
				report := ctrl.Tick()
				if !report.Command.IsZero() {
					t.Errorf("tick %d: got command %+v, want zero", i, report.Command)
				}
				if !model.lastCmd().IsZero() {
					t.Errorf("tick %d: model got %+v, want zero", i, model.lastCmd())
				}
			}
			if model.applyCount() != 3 {
				t.Errorf("Apply called %d times, want 3", model.applyCount())
			}
		})
	}
}

func TestController_ActiveNoDirectiveDrivesForward(t *testing.T) {
	ctrl, model, _ := newTestController(true, &fakeSensors{})

	report := ctrl.Tick()

	if report.Directive.Kind != DirectiveNone {
		t.Errorf("Directive: got %v, want none", report.Directive.Kind)
	}
	if !floatEquals(model.lastCmd().LinearX, ForwardSpeed) || model.lastCmd().AngularZ != 0 {
		t.Errorf("Command: got %+v, want (%v, 0)", model.lastCmd(), ForwardSpeed)
	}
}

func TestController_EndToEndActivation(t *testing.T) {
	ctrl, model, rec := newTestController(false, &fakeSensors{})

	report := ctrl.Tick()
	if report.Active || report.State != StateInactive {
		t.Errorf("first tick: got active=%v state=%v, want inactive", report.Active, report.State)
	}
	if !report.Command.IsZero() {
		t.Errorf("first tick: got command %+v, want zero", report.Command)
	}

	ctrl.Activate()

	report = ctrl.Tick()
	if !report.Active || report.State != StateActive {
		t.Errorf("second tick: got active=%v state=%v, want active", report.Active, report.State)
	}
	if report.Directive.Kind != DirectiveNone {
		t.Errorf("second tick: directive %v, want none", report.Directive.Kind)
	}
	if !floatEquals(report.Command.LinearX, ForwardSpeed) || report.Command.AngularZ != 0 {
		t.Errorf("second tick: command %+v, want (%v, 0)", report.Command, ForwardSpeed)
	}
	if model.applyCount() != 2 {
		t.Errorf("Apply calls: got %d, want 2", model.applyCount())
	}
	if rec.reportCount() != 2 {
		t.Errorf("reports: got %d, want one per tick", rec.reportCount())
	}
}

func TestController_EndToEndCollisionAhead(t *testing.T) {
	other := Identity{Type: Ground, ID: 7}
	sensors := &fakeSensors{neighbors: []Neighbor{
		{Robot: other, Pose: Pose{Position: Vec3{X: Diameter / 2}}, Known: true},
	}}
	ctrl, _, _ := newTestController(true, sensors)

	report := ctrl.Tick()

	if report.Directive.Kind != DirectiveRobotCollision {
		t.Fatalf("Directive: got %v, want robot_collision", report.Directive.Kind)
	}
	if report.Directive.With != other {
		t.Errorf("Directive.With: got %v, want %v", report.Directive.With, other)
	}
	if report.Command.LinearX != 0 {
		t.Errorf("LinearX: got %v, want 0 while turning", report.Command.LinearX)
	}
	// Dead-ahead contacts turn clockwise
	if !floatEquals(report.Command.AngularZ, RotateCW*CollisionTurnRate) {
		t.Errorf("AngularZ: got %v, want %v", report.Command.AngularZ, RotateCW*CollisionTurnRate)
	}

	bumper := ctrl.Bumper()
	if !bumper.Triggered || bumper.With != "ground_7" {
		t.Errorf("Bumper: got %+v, want triggered by ground_7", bumper)
	}
}

func TestController_ActivationTakesEffectNextTick(t *testing.T) {
	ctrl, _, _ := newTestController(false, &fakeSensors{})

	// A publisher that activates the robot mid-tick
	ctrl.publisher = PublisherFunc(func(r StatusReport) error {
		if r.Tick == 1 {
			ctrl.Activate()
		}
		return nil
	})

	first := ctrl.Tick()
	if first.Active || !first.Command.IsZero() {
		t.Errorf("tick 1 should stay inactive, got active=%v cmd=%+v", first.Active, first.Command)
	}
	second := ctrl.Tick()
	if !second.Active {
		t.Error("tick 2 should observe the activation")
	}
}

func TestController_EvaluationErrorFallsBackToZero(t *testing.T) {
	tests := []struct {
		name    string
		sensors Sensors
	}{
		{"sensor error", &fakeSensors{err: errors.New("feed offline")}},
		{"sensor panic", panicSensors{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, model, rec := newTestController(true, tt.sensors)

			report := ctrl.Tick()
			ctrl.Tick()

			if !report.Command.IsZero() {
				t.Errorf("got command %+v, want zero", report.Command)
			}
			if report.Directive.Kind != DirectiveNone {
				t.Errorf("got directive %v, want none", report.Directive.Kind)
			}
			if model.applyCount() != 2 {
				t.Errorf("loop should keep ticking, Apply calls = %d", model.applyCount())
			}
			if ctrl.Stats().Errors != 2 {
				t.Errorf("Errors: got %d, want 2", ctrl.Stats().Errors)
			}
			found := false
			for _, k := range rec.eventKinds() {
				if k == EventTickFailure {
					found = true
				}
			}
			if !found {
				t.Error("expected a tick_failure event")
			}
		})
	}
}

func TestController_MotionErrorIsNotFatal(t *testing.T) {
	ctrl, model, rec := newTestController(true, &fakeSensors{})
	model.err = errors.New("wheel driver busy")

	ctrl.Tick()
	ctrl.Tick()

	if rec.reportCount() != 2 {
		t.Errorf("reports: got %d, want 2", rec.reportCount())
	}
	if ctrl.Stats().Errors != 2 {
		t.Errorf("Errors: got %d, want 2", ctrl.Stats().Errors)
	}
}

func TestController_RunningSlowly(t *testing.T) {
	ctrl, _, rec := newTestController(true, &fakeSensors{})

	// Each clock read advances 300ms, so every tick overruns the 100ms period
	base := time.Unix(0, 0)
	var reads int
	ctrl.now = func() time.Time {
		reads++
		return base.Add(time.Duration(reads) * 300 * time.Millisecond)
	}

	first := ctrl.Tick()
	if first.RunningSlowly {
		t.Error("first report is built before the overrun is measured")
	}
	if !ctrl.RunningSlowly() {
		t.Error("RunningSlowly should be set after an overrun")
	}
	second := ctrl.Tick()
	if !second.RunningSlowly {
		t.Error("second report should carry the slow flag")
	}
	if ctrl.Stats().SlowTicks != 2 {
		t.Errorf("SlowTicks: got %d, want 2", ctrl.Stats().SlowTicks)
	}

	// Back on time clears the flag
	ctrl.now = func() time.Time { return base }
	ctrl.Tick()
	if ctrl.RunningSlowly() {
		t.Error("RunningSlowly should clear after an on-time tick")
	}

	slowEvents := 0
	for _, k := range rec.eventKinds() {
		if k == EventSlowTick {
			slowEvents++
		}
	}
	if slowEvents != 1 {
		t.Errorf("slow_tick events: got %d, want 1 (on transition only)", slowEvents)
	}
}

func TestController_DirectiveEventsOnChange(t *testing.T) {
	sensors := &fakeSensors{}
	ctrl, _, rec := newTestController(true, sensors)

	ctrl.Tick()
	sensors.mu.Lock()
	sensors.top = &Vec3{Z: Height}
	sensors.mu.Unlock()
	ctrl.Tick()
	ctrl.Tick()

	var directiveEvents int
	for _, k := range rec.eventKinds() {
		if k == EventDirective {
			directiveEvents++
		}
	}
	if directiveEvents != 1 {
		t.Errorf("directive events: got %d, want 1", directiveEvents)
	}
}

func TestController_ActivationOps(t *testing.T) {
	ctrl, _, rec := newTestController(false, nil)

	if got := ctrl.Toggle(); !got {
		t.Error("Toggle from inactive should return true")
	}
	if got := ctrl.Toggle(); got {
		t.Error("second Toggle should return false")
	}
	ctrl.Activate()
	ctrl.Activate()
	if !ctrl.IsActive() {
		t.Error("double Activate should leave the robot active")
	}
	ctrl.Deactivate()
	if ctrl.State() != StateInactive {
		t.Errorf("State: got %v, want inactive", ctrl.State())
	}

	want := []EventKind{EventToggle, EventToggle, EventActivate, EventActivate, EventDeactivate}
	got := rec.eventKinds()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestController_LastReport(t *testing.T) {
	ctrl, _, _ := newTestController(false, nil)

	if _, ok := ctrl.Last(); ok {
		t.Error("Last should report ok=false before the first tick")
	}
	ctrl.Tick()
	report, ok := ctrl.Last()
	if !ok || report.Tick != 1 {
		t.Errorf("Last: got ok=%v tick=%d, want ok=true tick=1", ok, report.Tick)
	}
	if report.Namespace != "ground_0" || report.Session != ctrl.Session() {
		t.Errorf("Last: unexpected identity fields %+v", report)
	}
}

func TestController_RunStop(t *testing.T) {
	model := &mockModel{}
	ctrl := NewController(Config{Robot: groundZero, Period: 5 * time.Millisecond}, Deps{Model: model})

	done := make(chan struct{})
	go func() {
		ctrl.Run(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	ctrl.Stop()
	ctrl.Stop() // second Stop must not panic

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Controller did not stop within timeout")
	}

	if model.applyCount() < 5 {
		t.Errorf("Expected at least 5 ticks, got %d", model.applyCount())
	}
}

func TestController_RunContextCancel(t *testing.T) {
	model := &mockModel{}
	ctrl := NewController(Config{Robot: groundZero, Period: 5 * time.Millisecond}, Deps{Model: model})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Controller did not stop after cancel")
	}
}

func TestController_ConcurrentActivation(t *testing.T) {
	ctrl, _, _ := newTestController(false, &fakeSensors{})

	ctx, cancel := context.WithCancel(context.Background())
	ctrl.period = time.Millisecond
	go ctrl.Run(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ctrl.Toggle()
			}
		}()
	}
	wg.Wait()

	// 800 toggles is even: back to the initial state
	if ctrl.IsActive() {
		t.Error("an even number of toggles should restore the inactive state")
	}
}

func TestNewController_Defaults(t *testing.T) {
	ctrl := NewController(Config{Robot: Identity{Type: Obstacle, ID: 2}}, Deps{Model: &mockModel{}})

	if ctrl.Period() != 100*time.Millisecond {
		t.Errorf("Period: got %v, want 100ms (10Hz)", ctrl.Period())
	}
	if ctrl.Session() == "" {
		t.Error("Session should default to a generated id")
	}
	if ctrl.IsActive() {
		t.Error("robots start inactive unless configured otherwise")
	}
	if ctrl.RobotType() != Obstacle {
		t.Errorf("RobotType: got %v, want obstacle", ctrl.RobotType())
	}
}

func TestNewController_RequiresModel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic without a motion model")
		}
	}()
	NewController(Config{Robot: groundZero}, Deps{})
}
