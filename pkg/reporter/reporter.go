// Package reporter fans status reports out from the control loop to the
// configured sinks without letting a slow sink stall a tick.
package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-roomba/internal/metrics"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

// DefaultQueueSize is the per-sink buffer used by NewAsync when size <= 0.
const DefaultQueueSize = 64

// Multi publishes every report to each sink in order.
type Multi []robot.StatusPublisher

// Publish calls every sink and joins their errors.
func (m Multi) Publish(report robot.StatusReport) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async decouples a slow sink (network, disk) from the tick. Publish never
// blocks: when the queue is full the report is dropped and counted.
type Async struct {
	name   string
	next   robot.StatusPublisher
	queue  chan robot.StatusReport
	logger *slog.Logger

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}

	lastErrorTime time.Time // touched only by Run
}

// NewAsync wraps next with a bounded queue. Call Run to start delivery.
func NewAsync(name string, next robot.StatusPublisher, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		name:   name,
		next:   next,
		queue:  make(chan robot.StatusReport, size),
		logger: logger.With("sink", name),
		done:   make(chan struct{}),
	}
}

// Publish enqueues report, dropping it if the sink is behind.
func (a *Async) Publish(report robot.StatusReport) error {
	select {
	case <-a.done:
		return nil
	default:
	}

	select {
	case a.queue <- report:
	default:
		a.dropped.Add(1)
		metrics.DroppedReport(a.name)
	}
	return nil
}

// Run delivers queued reports until ctx is cancelled or Close is called.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case report := <-a.queue:
			if err := a.next.Publish(report); err != nil {
				a.failed.Add(1)
				// Rate limit error logging
				if time.Since(a.lastErrorTime) > 5*time.Second {
					a.logger.Warn("report delivery failed", "robot", report.Namespace, "error", err)
					a.lastErrorTime = time.Now()
				}
				continue
			}
			a.delivered.Add(1)
		}
	}
}

// Close stops Run. Queued reports are discarded.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.done) })
}

// Stats returns delivery counters.
func (a *Async) Stats() (delivered, dropped, failed uint64) {
	return a.delivered.Load(), a.dropped.Load(), a.failed.Load()
}

// Log writes each report at debug level.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log publisher.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Publish logs the textual state message.
func (l *Log) Publish(report robot.StatusReport) error {
	l.logger.Debug(report.String(),
		"robot", report.Namespace,
		"tick", report.Tick,
		"running_slowly", report.RunningSlowly,
	)
	return nil
}

// Ensure publishers implement robot.StatusPublisher
var (
	_ robot.StatusPublisher = Multi(nil)
	_ robot.StatusPublisher = (*Async)(nil)
	_ robot.StatusPublisher = (*Log)(nil)
)
