package audio

import (
	"sync"

	"github.com/audiolibrelab/beatgrid/internal/sample"
)

// Play records a played voice
type Play struct {
	Ref  string
	Gain float64
}

// NullDevice discards audio. It keeps a log of what would have been played,
// for headless servers and tests.
type NullDevice struct {
	sampleRate int

	mu          sync.Mutex
	plays       []Play
	activations int
}

func NewNullDevice(sampleRate int) *NullDevice {
	return &NullDevice{sampleRate: sampleRate}
}

func (d *NullDevice) Backend() BackendType { return BackendTypeNone }
func (d *NullDevice) SampleRate() int      { return d.sampleRate }

func (d *NullDevice) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activations++
	return nil
}

func (d *NullDevice) Play(s *sample.Sample, gain float64) (Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plays = append(d.plays, Play{Ref: s.Ref, Gain: gain})
	return silentVoice{}, nil
}

func (d *NullDevice) Close() error {
	return nil
}

// Plays returns a copy of the play log
func (d *NullDevice) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Play(nil), d.plays...)
}

func (d *NullDevice) Activations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activations
}

type silentVoice struct{}

func (silentVoice) Playing() bool { return false }
