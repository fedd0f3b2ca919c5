// Package journal persists controller events (activation changes, directive
// changes, slow ticks, tick failures) in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-roomba/internal/metrics"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

// DefaultQueueSize is the number of events buffered ahead of the writer.
const DefaultQueueSize = 1024

// Entry is a stored event.
type Entry struct {
	ID string `json:"id"`
	robot.Event
}

// Journal is an append-only event log. Record never blocks; Run writes.
type Journal struct {
	db     *sql.DB
	queue  chan robot.Event
	logger *slog.Logger
}

// Open opens (or creates) the journal database and runs migrations.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		db:     db,
		queue:  make(chan robot.Event, DefaultQueueSize),
		logger: logger.With("component", "journal"),
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	_, err := j.db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	robot      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	active     INTEGER NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	tick       INTEGER NOT NULL,
	session    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_robot ON events(robot, created_at);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`)
	return err
}

// Record queues ev for writing, dropping it if the writer is behind.
// It implements robot.EventSink.
func (j *Journal) Record(ev robot.Event) {
	select {
	case j.queue <- ev:
	default:
		metrics.DroppedReport("journal")
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return
		case ev := <-j.queue:
			if err := j.Insert(context.Background(), ev); err != nil {
				j.logger.Warn("journal write failed", "robot", ev.Robot.Namespace(), "kind", ev.Kind, "error", err)
			}
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case ev := <-j.queue:
			if err := j.Insert(context.Background(), ev); err != nil {
				j.logger.Warn("journal flush failed", "error", err)
				return
			}
		default:
			return
		}
	}
}

// Insert writes ev synchronously under a fresh id.
func (j *Journal) Insert(ctx context.Context, ev robot.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, robot, kind, active, detail, tick, session, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.Robot.Namespace(), string(ev.Kind), ev.Active, ev.Detail,
		int64(ev.Tick), ev.Session, ev.Time.UnixNano(),
	)
	return err
}

// Recent returns up to limit events, newest first. An empty namespace
// returns events of every robot.
func (j *Journal) Recent(ctx context.Context, namespace string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, robot, kind, active, detail, tick, session, created_at FROM events`
	args := []any{}
	if namespace != "" {
		query += ` WHERE robot = ?`
		args = append(args, namespace)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			ns, kind  string
			tick      int64
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &ns, &kind, &e.Active, &e.Detail, &tick, &e.Session, &createdAt); err != nil {
			return nil, err
		}
		id, err := robot.ParseNamespace(ns)
		if err != nil {
			continue
		}
		e.Robot = id
		e.Kind = robot.EventKind(kind)
		e.Tick = uint64(tick)
		e.Time = time.Unix(0, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Ensure Journal implements robot.EventSink
var _ robot.EventSink = (*Journal)(nil)
