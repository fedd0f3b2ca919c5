// Package metrics holds the Prometheus collectors exported by a roomba node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_ticks_total",
		Help: "Control loop ticks executed per robot",
	}, []string{"robot"})

	slowTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_slow_ticks_total",
		Help: "Ticks that overran the nominal loop period",
	}, []string{"robot"})

	tickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_tick_errors_total",
		Help: "Non-fatal tick errors by stage",
	}, []string{"robot", "stage"})

	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomba_tick_duration_seconds",
		Help:    "Wall-clock duration of one control tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25},
	}, []string{"robot"})

	runningSlowly = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomba_running_slowly",
		Help: "1 when the latest tick overran its period",
	}, []string{"robot"})

	active = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomba_active",
		Help: "1 when the robot is activated",
	}, []string{"robot"})

	directivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_directives_total",
		Help: "Ticks per evaluated directive kind",
	}, []string{"robot", "directive"})

	activationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_activation_requests_total",
		Help: "Activation requests by operation",
	}, []string{"robot", "op"})

	droppedReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomba_dropped_reports_total",
		Help: "Status reports dropped because a sink was saturated",
	}, []string{"sink"})
)

// ObserveTick records one completed tick.
func ObserveTick(robot, directive string, seconds float64, slow bool) {
	ticksTotal.WithLabelValues(robot).Inc()
	tickDuration.WithLabelValues(robot).Observe(seconds)
	directivesTotal.WithLabelValues(robot, directive).Inc()
	if slow {
		slowTicksTotal.WithLabelValues(robot).Inc()
		runningSlowly.WithLabelValues(robot).Set(1)
	} else {
		runningSlowly.WithLabelValues(robot).Set(0)
	}
}

// TickError counts a recovered failure in the named tick stage.
func TickError(robot, stage string) {
	tickErrorsTotal.WithLabelValues(robot, stage).Inc()
}

// Activation records an activation request and the resulting state.
func Activation(robot, op string, isActive bool) {
	activationRequests.WithLabelValues(robot, op).Inc()
	SetActive(robot, isActive)
}

// SetActive sets the activation gauge.
func SetActive(robot string, isActive bool) {
	v := 0.0
	if isActive {
		v = 1
	}
	active.WithLabelValues(robot).Set(v)
}

// DroppedReport counts a report a saturated sink could not accept.
func DroppedReport(sink string) {
	droppedReports.WithLabelValues(sink).Inc()
}
