// Package pattern holds the sequencer grid: tracks, their steps, the shared
// step count, the tempo and the playhead. A Pattern is not safe for concurrent
// use; the session serializes access to it.
package pattern

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrOutOfRange is returned for a step index outside the grid
	ErrOutOfRange = errors.New("step index out of range")

	// ErrInvalidStepCount is returned for a step count other than 8, 16 or 32
	ErrInvalidStepCount = errors.New("invalid step count")

	// ErrInvalidBPM is returned for a tempo outside [MinBPM, MaxBPM]
	ErrInvalidBPM = errors.New("invalid bpm")

	// ErrTrackNotFound is returned for an unknown track id
	ErrTrackNotFound = errors.New("track not found")
)

const (
	MinBPM           = 40
	MaxBPM           = 240
	DefaultBPM       = 120
	DefaultStepCount = 16
	DefaultVolume    = 0.9
)

// StepCounts lists the supported grid lengths
var StepCounts = []int{8, 16, 32}

// ValidStepCount reports whether n is a supported grid length
func ValidStepCount(n int) bool {
	for _, c := range StepCounts {
		if n == c {
			return true
		}
	}
	return false
}

// ValidBPM reports whether bpm is finite and in range
func ValidBPM(bpm float64) bool {
	return !math.IsNaN(bpm) && !math.IsInf(bpm, 0) && bpm >= MinBPM && bpm <= MaxBPM
}

// StepDuration is the length of one step, a sixteenth note at bpm. It does
// not depend on the step count: a 32 step grid spans two bars.
func StepDuration(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / bpm / 4)
}

// Clamp01 limits v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// NormalizeSteps returns a copy of steps truncated or zero-padded to n
func NormalizeSteps(steps []bool, n int) []bool {
	out := make([]bool, n)
	copy(out, steps)
	return out
}

// DisplayName is the default track name for a sound: its file name without
// the extension
func DisplayName(soundRef string) string {
	base := filepath.Base(soundRef)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Track is one sound bound to its own row of steps
type Track struct {
	ID       string  `json:"id" yaml:"id"`
	SoundRef string  `json:"file" yaml:"file"`
	Name     string  `json:"name" yaml:"name"`
	Volume   float64 `json:"volume" yaml:"volume"`
	Muted    bool    `json:"muted" yaml:"muted"`
	Steps    []bool  `json:"steps" yaml:"steps"`
}

// Active reports whether the track should sound at step i
func (t *Track) Active(i int) bool {
	return !t.Muted && i >= 0 && i < len(t.Steps) && t.Steps[i]
}

func (t *Track) clone() Track {
	c := *t
	c.Steps = append([]bool(nil), t.Steps...)
	return c
}

// TrackOptions are the optional settings of a new track. Nil fields take
// their defaults.
type TrackOptions struct {
	Name   *string
	Volume *float64
	Muted  bool
	Steps  []bool
}

// TrackSpec describes a track to be loaded in bulk
type TrackSpec struct {
	SoundRef string
	TrackOptions
}

// Pattern is the full sequencer state
type Pattern struct {
	stepCount   int
	bpm         float64
	tracks      []*Track
	currentStep int
}

// New creates an empty pattern
func New(stepCount int, bpm float64) (*Pattern, error) {
	if !ValidStepCount(stepCount) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStepCount, stepCount)
	}
	if !ValidBPM(bpm) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBPM, bpm)
	}
	return &Pattern{stepCount: stepCount, bpm: bpm}, nil
}

func (p *Pattern) StepCount() int   { return p.stepCount }
func (p *Pattern) BPM() float64     { return p.bpm }
func (p *Pattern) CurrentStep() int { return p.currentStep }

// StepDuration is the step length at the current tempo
func (p *Pattern) StepDuration() time.Duration {
	return StepDuration(p.bpm)
}

// Tracks returns the live track list in order. Callers must not modify it.
func (p *Pattern) Tracks() []*Track {
	return p.tracks
}

// Track returns the track with the given id
func (p *Pattern) Track(id string) (*Track, bool) {
	for _, t := range p.tracks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (p *Pattern) track(id string) (*Track, error) {
	t, ok := p.Track(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return t, nil
}

// AddTrack appends a track for soundRef and returns it
func (p *Pattern) AddTrack(soundRef string, opts TrackOptions) *Track {
	t := &Track{
		ID:       uuid.NewString(),
		SoundRef: soundRef,
		Name:     DisplayName(soundRef),
		Volume:   DefaultVolume,
		Muted:    opts.Muted,
		Steps:    NormalizeSteps(opts.Steps, p.stepCount),
	}
	if opts.Name != nil && *opts.Name != "" {
		t.Name = *opts.Name
	}
	if opts.Volume != nil {
		t.Volume = Clamp01(*opts.Volume)
	}

	p.tracks = append(p.tracks, t)
	return t
}

// RemoveTrack deletes a track. Removing an unknown id is a no-op.
func (p *Pattern) RemoveTrack(id string) bool {
	for i, t := range p.tracks {
		if t.ID == id {
			p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// ToggleStep flips one step and returns its new value
func (p *Pattern) ToggleStep(id string, index int) (bool, error) {
	if index < 0 || index >= p.stepCount {
		return false, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, p.stepCount)
	}
	t, err := p.track(id)
	if err != nil {
		return false, err
	}
	t.Steps[index] = !t.Steps[index]
	return t.Steps[index], nil
}

// SetStepCount resizes every track to n steps and rewinds the playhead
func (p *Pattern) SetStepCount(n int) error {
	if !ValidStepCount(n) {
		return fmt.Errorf("%w: %d", ErrInvalidStepCount, n)
	}
	for _, t := range p.tracks {
		t.Steps = NormalizeSteps(t.Steps, n)
	}
	p.stepCount = n
	p.currentStep = 0
	return nil
}

// SetVolume clamps v into [0, 1] and applies it
func (p *Pattern) SetVolume(id string, v float64) (float64, error) {
	t, err := p.track(id)
	if err != nil {
		return 0, err
	}
	t.Volume = Clamp01(v)
	return t.Volume, nil
}

func (p *Pattern) SetMuted(id string, muted bool) error {
	t, err := p.track(id)
	if err != nil {
		return err
	}
	t.Muted = muted
	return nil
}

// ClearAll turns every step off. Tracks, tempo and step count are kept.
func (p *Pattern) ClearAll() {
	for _, t := range p.tracks {
		for i := range t.Steps {
			t.Steps[i] = false
		}
	}
}

func (p *Pattern) SetBPM(bpm float64) error {
	if !ValidBPM(bpm) {
		return fmt.Errorf("%w: %v not in [%d, %d]", ErrInvalidBPM, bpm, MinBPM, MaxBPM)
	}
	p.bpm = bpm
	return nil
}

// SetCurrentStep moves the playhead, wrapping into the grid
func (p *Pattern) SetCurrentStep(step int) {
	step %= p.stepCount
	if step < 0 {
		step += p.stepCount
	}
	p.currentStep = step
}

// Advance moves the playhead one step forward
func (p *Pattern) Advance() int {
	p.currentStep = (p.currentStep + 1) % p.stepCount
	return p.currentStep
}

// Load replaces the whole pattern. Nothing changes if stepCount or bpm are
// invalid.
func (p *Pattern) Load(stepCount int, bpm float64, specs []TrackSpec) error {
	if !ValidStepCount(stepCount) {
		return fmt.Errorf("%w: %d", ErrInvalidStepCount, stepCount)
	}
	if !ValidBPM(bpm) {
		return fmt.Errorf("%w: %v", ErrInvalidBPM, bpm)
	}

	p.stepCount = stepCount
	p.bpm = bpm
	p.currentStep = 0
	p.tracks = nil
	for _, spec := range specs {
		p.AddTrack(spec.SoundRef, spec.TrackOptions)
	}
	return nil
}

// SoundRefs returns the distinct sounds used by the tracks, in track order
func (p *Pattern) SoundRefs() []string {
	seen := make(map[string]bool, len(p.tracks))
	var refs []string
	for _, t := range p.tracks {
		if !seen[t.SoundRef] {
			seen[t.SoundRef] = true
			refs = append(refs, t.SoundRef)
		}
	}
	return refs
}

// Snapshot is a deep copy of the pattern for readers outside the lock
type Snapshot struct {
	StepCount   int     `json:"stepCount" yaml:"stepCount"`
	BPM         float64 `json:"bpm" yaml:"bpm"`
	CurrentStep int     `json:"currentStep" yaml:"currentStep"`
	Tracks      []Track `json:"tracks" yaml:"tracks"`
}

func (p *Pattern) Snapshot() Snapshot {
	s := Snapshot{
		StepCount:   p.stepCount,
		BPM:         p.bpm,
		CurrentStep: p.currentStep,
		Tracks:      make([]Track, 0, len(p.tracks)),
	}
	for _, t := range p.tracks {
		s.Tracks = append(s.Tracks, t.clone())
	}
	return s
}
