package robot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownRobot is returned when no controller is registered for an identity.
var ErrUnknownRobot = errors.New("unknown robot")

// Fleet is the set of controllers hosted by one process.
type Fleet struct {
	mu          sync.RWMutex
	controllers map[Identity]*Controller
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{controllers: make(map[Identity]*Controller)}
}

// Add registers c. Identities must be unique.
func (f *Fleet) Add(c *Controller) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.controllers[c.Robot()]; ok {
		return fmt.Errorf("robot %s already registered", c.Robot())
	}
	f.controllers[c.Robot()] = c
	return nil
}

// Get returns the controller for id.
func (f *Fleet) Get(id Identity) (*Controller, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.controllers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRobot, id)
	}
	return c, nil
}

// Lookup resolves a namespace such as "ground_3".
func (f *Fleet) Lookup(namespace string) (*Controller, error) {
	id, err := ParseNamespace(namespace)
	if err != nil {
		return nil, err
	}
	return f.Get(id)
}

// All returns every controller sorted by namespace.
func (f *Fleet) All() []*Controller {
	f.mu.RLock()
	out := make([]*Controller, 0, len(f.controllers))
	for _, c := range f.controllers {
		out = append(out, c)
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Robot().Namespace() < out[j].Robot().Namespace()
	})
	return out
}

// Len returns the number of controllers.
func (f *Fleet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.controllers)
}

// Run runs every controller's loop and blocks until all have stopped.
func (f *Fleet) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range f.All() {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Run(ctx)
		}(c)
	}
	wg.Wait()
}

// Stop stops every controller.
func (f *Fleet) Stop() {
	for _, c := range f.All() {
		c.Stop()
	}
}
