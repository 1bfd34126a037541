package sample

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a sound reference is outside the catalog
	ErrNotFound = errors.New("sound not found")

	// ErrDecode is returned when audio bytes cannot be decoded
	ErrDecode = errors.New("cannot decode sound")
)

const (
	// Channels is the channel count of every decoded sample
	Channels = 2
	// BytesPerFrame is the size of one interleaved signed 16-bit stereo frame
	BytesPerFrame = Channels * 2
)

// Sample is a decoded sound, ready to be played. It is never mutated after
// decoding so players can share the PCM slice.
type Sample struct {
	Ref        string
	SampleRate int
	// PCM holds interleaved signed 16-bit little-endian stereo frames.
	PCM []byte
}

// Frames returns the number of stereo frames in the sample
func (s *Sample) Frames() int {
	return len(s.PCM) / BytesPerFrame
}

// Duration returns the playback length at the sample's rate
func (s *Sample) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Frames()) * time.Second / time.Duration(s.SampleRate)
}

// Frame returns the left and right values of frame i scaled to [-1, 1]
func (s *Sample) Frame(i int) (float64, float64) {
	off := i * BytesPerFrame
	if i < 0 || off+BytesPerFrame > len(s.PCM) {
		return 0, 0
	}
	l := int16(uint16(s.PCM[off]) | uint16(s.PCM[off+1])<<8)
	r := int16(uint16(s.PCM[off+2]) | uint16(s.PCM[off+3])<<8)
	return float64(l) / 32768, float64(r) / 32768
}
