package audio

import (
	"github.com/audiolibrelab/beatgrid/internal/sample"
)

// Voice is one sounding instance of a sample. Voices are independent:
// stopping or finishing one never affects another.
type Voice interface {
	Playing() bool
}

// Device is an audio output able to play many samples at once
type Device interface {
	// Activate opens the output if needed and resumes it
	Activate() error

	// Play starts a new voice for s at gain in [0, 1]. It never blocks on
	// the playback itself.
	Play(s *sample.Sample, gain float64) (Voice, error)

	// SampleRate is the rate samples must be decoded at
	SampleRate() int

	// Backend names the implementation
	Backend() BackendType

	Close() error
}
