// Package arena keeps the latest known pose of every robot on the field and
// of the quad, and serves them to controllers as their sensor feed.
package arena

import (
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

// Entry is one robot's last reported pose.
type Entry struct {
	Robot   robot.Identity `json:"robot"`
	Pose    robot.Pose     `json:"pose"`
	Updated time.Time      `json:"updated"`
}

// Registry is a concurrency-safe pose table shared by every controller
// in the process. It implements robot.Sensors.
type Registry struct {
	staleAfter time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	robots      map[robot.Identity]Entry
	quad        robot.Vec3
	quadUpdated time.Time
	hasQuad     bool
}

// NewRegistry creates an empty registry. Entries older than staleAfter are
// reported as unknown; zero disables staleness.
func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		staleAfter: staleAfter,
		now:        time.Now,
		robots:     make(map[robot.Identity]Entry),
	}
}

// UpdatePose records a robot pose. Non-finite poses are ignored.
func (r *Registry) UpdatePose(id robot.Identity, pose robot.Pose) {
	if id.IsZero() || !pose.Valid() {
		return
	}
	r.mu.Lock()
	r.robots[id] = Entry{Robot: id, Pose: pose, Updated: r.now()}
	r.mu.Unlock()
}

// Remove forgets a robot.
func (r *Registry) Remove(id robot.Identity) {
	r.mu.Lock()
	delete(r.robots, id)
	r.mu.Unlock()
}

// SetQuad records the quad position.
func (r *Registry) SetQuad(pos robot.Vec3) {
	if !pos.Valid() {
		return
	}
	r.mu.Lock()
	r.quad = pos
	r.quadUpdated = r.now()
	r.hasQuad = true
	r.mu.Unlock()
}

// ClearQuad marks the quad position as unavailable.
func (r *Registry) ClearQuad() {
	r.mu.Lock()
	r.hasQuad = false
	r.mu.Unlock()
}

// Quad returns the quad position if one is known and fresh.
func (r *Registry) Quad() (robot.Vec3, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasQuad || r.stale(r.quadUpdated) {
		return robot.Vec3{}, false
	}
	return r.quad, true
}

// Pose returns the last pose for id.
func (r *Registry) Pose(id robot.Identity) (robot.Pose, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.robots[id]
	if !ok || r.stale(e.Updated) {
		return robot.Pose{}, false
	}
	return e.Pose, true
}

// Entries returns every robot entry sorted by namespace.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.robots))
	for _, e := range r.robots {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Robot.Namespace() < out[j].Robot.Namespace()
	})
	return out
}

// Snapshot returns every other robot as a neighbor plus the quad position.
// Stale entries are returned with Known=false.
func (r *Registry) Snapshot(self robot.Identity) ([]robot.Neighbor, *robot.Vec3, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	neighbors := make([]robot.Neighbor, 0, len(r.robots))
	for id, e := range r.robots {
		if id == self {
			continue
		}
		neighbors = append(neighbors, robot.Neighbor{
			Robot: id,
			Pose:  e.Pose,
			Known: !r.stale(e.Updated),
		})
	}

	var top *robot.Vec3
	if r.hasQuad && !r.stale(r.quadUpdated) {
		q := r.quad
		top = &q
	}
	return neighbors, top, nil
}

// stale must be called with mu held.
func (r *Registry) stale(updated time.Time) bool {
	return r.staleAfter > 0 && r.now().Sub(updated) > r.staleAfter
}

// Ensure Registry implements robot.Sensors
var _ robot.Sensors = (*Registry)(nil)
