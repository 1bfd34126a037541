package scheduler

import (
	"sync"
	"time"
)

// Clock runs a callback periodically
type Clock interface {
	Every(d time.Duration, fn func()) Task
}

// Task is a handle on a periodic callback
type Task interface {
	// Cancel stops future callbacks. It never waits for a running one.
	Cancel()
}

// SystemClock ticks on a time.Ticker
type SystemClock struct{}

func (SystemClock) Every(d time.Duration, fn func()) Task {
	task := &tickerTask{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-task.done:
				return
			case <-task.ticker.C:
				fn()
			}
		}
	}()

	return task
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// ManualClock only ticks when told to. It drives schedulers in tests and in
// offline rendering.
type ManualClock struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	clock    *ManualClock
	period   time.Duration
	fn       func()
	canceled bool
}

func (c *ManualClock) Every(d time.Duration, fn func()) Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTask{clock: c, period: d, fn: fn}
	c.tasks = append(c.tasks, t)
	return t
}

func (t *manualTask) Cancel() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.canceled = true
}

// Tick runs every live task once
func (c *ManualClock) Tick() {
	for _, t := range c.live() {
		t.fn()
	}
}

// Active returns the number of live tasks
func (c *ManualClock) Active() int {
	return len(c.live())
}

// Period returns the period of the most recently scheduled live task, or 0
func (c *ManualClock) Period() time.Duration {
	live := c.live()
	if len(live) == 0 {
		return 0
	}
	return live[len(live)-1].period
}

func (c *ManualClock) live() []*manualTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	var live []*manualTask
	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if !t.canceled {
			live = append(live, t)
			kept = append(kept, t)
		}
	}
	c.tasks = kept
	return live
}
