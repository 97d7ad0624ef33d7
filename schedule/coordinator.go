package schedule

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// JobKey identifies one background job run deterministically: the job kind,
// the user it operates on, and the time window it covers. Equal keys describe
// the same work.
type JobKey struct {
	Kind   string
	UserId string
	Window time.Time
}

func (k JobKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Kind, k.UserId, k.Window.UTC().Format(time.RFC3339))
}

// completedRetention bounds how long finished keys are remembered. Long
// enough to outlive any scheduling window that could re-offer the key.
const completedRetention = 48 * time.Hour

// Coordinator ensures a job key never runs twice: concurrent offers of the
// same key collapse into one execution (singleflight), and keys that already
// finished successfully are skipped until they age out.
type Coordinator struct {
	group singleflight.Group

	mu        sync.Mutex
	completed map[string]time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{completed: make(map[string]time.Time)}
}

// Run executes fn for the key unless it already ran. Returns whether fn was
// actually executed (or joined) and fn's error. A failed run is forgotten so
// a later offer of the same key can retry it.
func (c *Coordinator) Run(key JobKey, fn func() error) (bool, error) {
	id := key.String()

	c.mu.Lock()
	if _, done := c.completed[id]; done {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	_, runErr, _ := c.group.Do(id, func() (any, error) {
		return nil, fn()
	})

	if runErr == nil {
		c.mu.Lock()
		c.completed[id] = time.Now()
		c.prune()
		c.mu.Unlock()
	}
	return true, runErr
}

// prune drops completion records past retention. Caller holds the lock.
func (c *Coordinator) prune() {
	cutoff := time.Now().Add(-completedRetention)
	for id, finished := range c.completed {
		if finished.Before(cutoff) {
			delete(c.completed, id)
		}
	}
}
