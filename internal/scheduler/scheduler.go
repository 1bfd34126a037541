// Package scheduler drives a pattern in time: a Stopped/Running state machine
// around a cancellable periodic task that fires the active steps.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
)

// State of the scheduler
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Firer triggers one sound. It must not block.
type Firer interface {
	Fire(soundRef string, gain float64)
}

// Activator is implemented by firers whose output device has to be opened
// or resumed before playback starts
type Activator interface {
	Activate() error
}

// Scheduler ticks a pattern. Start, Stop, SetBPM and Tick must be called with
// the scheduler's lock held; the periodic task takes the lock itself.
type Scheduler struct {
	lock    sync.Locker
	pattern *pattern.Pattern
	firer   Firer
	clock   Clock

	state State
	task  Task
	// generation invalidates callbacks of canceled tasks that were already
	// waiting on the lock
	generation uint64

	obsMu     sync.Mutex
	observers map[int]func(step int)
	nextObs   int
}

// New creates a stopped scheduler. A nil clock uses SystemClock.
func New(lock sync.Locker, p *pattern.Pattern, firer Firer, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		lock:      lock,
		pattern:   p,
		firer:     firer,
		clock:     clock,
		observers: make(map[int]func(int)),
	}
}

func (s *Scheduler) State() State {
	return s.state
}

func (s *Scheduler) Running() bool {
	return s.state == Running
}

// Start plays from the current step. The first step sounds immediately.
func (s *Scheduler) Start() {
	if s.state == Running {
		return
	}

	if a, ok := s.firer.(Activator); ok {
		if err := a.Activate(); err != nil {
			slog.Error("Failed to activate audio output", "error", err)
		}
	}

	s.state = Running
	slog.Debug("Scheduler started", "step", s.pattern.CurrentStep(), "bpm", s.pattern.BPM())

	s.Tick()
	s.schedule()
}

// Stop cancels ticking. With reset the playhead goes back to 0, otherwise it
// stays where it is so playback can resume.
func (s *Scheduler) Stop(reset bool) {
	if s.state == Running {
		s.cancel()
		s.state = Stopped
		slog.Debug("Scheduler stopped", "step", s.pattern.CurrentStep(), "reset", reset)
	}
	if reset {
		s.pattern.SetCurrentStep(0)
	}
}

// SetBPM changes the tempo and, while running, restarts the periodic task at
// the new rate without moving the playhead
func (s *Scheduler) SetBPM(bpm float64) error {
	if err := s.pattern.SetBPM(bpm); err != nil {
		return err
	}
	if s.state == Running {
		s.cancel()
		s.schedule()
		slog.Debug("Scheduler rescheduled", "bpm", bpm, "step_duration", s.pattern.StepDuration())
	}
	return nil
}

// Tick fires every active track at the current step, publishes the step and
// advances the playhead
func (s *Scheduler) Tick() {
	step := s.pattern.CurrentStep()

	for _, t := range s.pattern.Tracks() {
		if t.Active(step) {
			s.fire(t.SoundRef, t.Volume)
		}
	}

	s.publish(step)
	s.pattern.Advance()
}

// Subscribe registers fn to receive the step of every tick. Observers run
// inside the tick and must not call back into the session.
func (s *Scheduler) Subscribe(fn func(step int)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Scheduler) schedule() {
	s.generation++
	gen := s.generation

	s.task = s.clock.Every(s.pattern.StepDuration(), func() {
		s.lock.Lock()
		defer s.lock.Unlock()

		if s.state != Running || s.generation != gen {
			return
		}
		s.Tick()
	})
}

func (s *Scheduler) cancel() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	s.generation++
}

// fire isolates a failing track from the rest of the tick
func (s *Scheduler) fire(ref string, gain float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Playback failed", "sound", ref, "error", fmt.Sprint(r))
		}
	}()
	s.firer.Fire(ref, gain)
}

func (s *Scheduler) publish(step int) {
	s.obsMu.Lock()
	fns := make([]func(int), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(step)
	}
}
