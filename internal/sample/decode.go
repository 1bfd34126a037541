package sample

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

// Decoder turns raw audio bytes into a playable sample
type Decoder interface {
	Decode(ref string, data []byte) (*Sample, error)
}

// FormatDecoder picks a codec from the file extension of the ref and
// resamples the result to SampleRate.
type FormatDecoder struct {
	SampleRate int
}

// NewFormatDecoder creates a decoder producing samples at sampleRate
func NewFormatDecoder(sampleRate int) *FormatDecoder {
	return &FormatDecoder{SampleRate: sampleRate}
}

// Decode decodes mp3, wav and ogg/vorbis data
func (d *FormatDecoder) Decode(ref string, data []byte) (*Sample, error) {
	if d.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate %d", d.SampleRate)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty file", ErrDecode, ref)
	}

	src := bytes.NewReader(data)
	var stream io.Reader
	var err error

	ext := strings.ToLower(filepath.Ext(ref))
	switch ext {
	case ".mp3":
		stream, err = mp3.DecodeWithSampleRate(d.SampleRate, src)
	case ".wav":
		stream, err = wav.DecodeWithSampleRate(d.SampleRate, src)
	case ".ogg", ".oga":
		stream, err = vorbis.DecodeWithSampleRate(d.SampleRate, src)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format %q", ErrDecode, ref, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, ref, err)
	}

	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, ref, err)
	}

	// Drop a trailing partial frame, if any
	pcm = pcm[:len(pcm)-len(pcm)%BytesPerFrame]
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: %s: no audio frames", ErrDecode, ref)
	}

	return &Sample{
		Ref:        ref,
		SampleRate: d.SampleRate,
		PCM:        pcm,
	}, nil
}
