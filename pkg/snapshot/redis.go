// Package snapshot keeps the latest status report of every robot in Redis
// so dashboards and other nodes can read state without subscribing.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-roomba/pkg/robot"
)

const allRobotsKey = "roomba:robots"

// DefaultWriteTimeout bounds a single Publish round trip.
const DefaultWriteTimeout = 500 * time.Millisecond

func stateKey(id robot.Identity) string {
	return fmt.Sprintf("roomba:%s:state", id.Namespace())
}

// Store writes reports to Redis. It implements robot.StatusPublisher;
// wrap it in reporter.Async to keep it off the control loop.
type Store struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewStore creates a store. A zero ttl keeps keys forever.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, timeout: DefaultWriteTimeout}
}

// Publish stores report as the robot's latest state.
func (s *Store) Publish(report robot.StatusReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.Put(ctx, report)
}

// Put stores report under roomba:{namespace}:state.
func (s *Store) Put(ctx context.Context, report robot.StatusReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, stateKey(report.Robot), data, s.ttl)
	pipe.SAdd(ctx, allRobotsKey, report.Robot.Namespace())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", report.Robot.Namespace(), err)
	}
	return nil
}

// Get returns the latest report for id, or nil if none is stored.
func (s *Store) Get(ctx context.Context, id robot.Identity) (*robot.StatusReport, error) {
	data, err := s.client.Get(ctx, stateKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report robot.StatusReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode %s: %w", stateKey(id), err)
	}
	return &report, nil
}

// Robots lists every robot that has published, sorted by namespace.
func (s *Store) Robots(ctx context.Context) ([]robot.Identity, error) {
	members, err := s.client.SMembers(ctx, allRobotsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	ids := make([]robot.Identity, 0, len(members))
	for _, m := range members {
		id, err := robot.ParseNamespace(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes a robot's state.
func (s *Store) Remove(ctx context.Context, id robot.Identity) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, stateKey(id))
	pipe.SRem(ctx, allRobotsKey, id.Namespace())
	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Store implements robot.StatusPublisher
var _ robot.StatusPublisher = (*Store)(nil)
