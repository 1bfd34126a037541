package mix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/sample"
)

const bitDepth = 16

// Mixer renders a pattern offline, with the same step timing as live
// playback, into 16-bit stereo PCM
type Mixer struct {
	cache      *sample.Cache
	sampleRate int
}

// Result describes a rendered bounce
type Result struct {
	Buffer  *audio.IntBuffer
	Steps   int
	Hits    int
	Clipped int
	Skipped []string
}

// Duration returns the length of the rendered audio
func (r *Result) Duration() float64 {
	if r.Buffer == nil || r.Buffer.Format == nil || r.Buffer.Format.SampleRate == 0 {
		return 0
	}
	return float64(r.Buffer.NumFrames()) / float64(r.Buffer.Format.SampleRate)
}

// New creates a mixer that loads sounds through cache. The cache's decoder
// must produce samples at sampleRate.
func New(cache *sample.Cache, sampleRate int) *Mixer {
	return &Mixer{cache: cache, sampleRate: sampleRate}
}

// Render plays snap loops times from step zero. Every active step of an
// unmuted track mixes the whole sound in at the step's offset, so long
// sounds overlap the way they do live. The output runs until the last
// sound ends. Sounds that cannot be loaded are skipped like cache misses.
func (m *Mixer) Render(ctx context.Context, snap pattern.Snapshot, loops int) (*Result, error) {
	if loops < 1 {
		loops = 1
	}
	if !pattern.ValidBPM(snap.BPM) {
		return nil, fmt.Errorf("%w: %v", pattern.ErrInvalidBPM, snap.BPM)
	}
	if !pattern.ValidStepCount(snap.StepCount) {
		return nil, fmt.Errorf("%w: %d", pattern.ErrInvalidStepCount, snap.StepCount)
	}

	samples := make(map[string]*sample.Sample)
	res := &Result{Steps: loops * snap.StepCount}
	for _, tr := range snap.Tracks {
		if _, done := samples[tr.SoundRef]; done {
			continue
		}
		s, err := m.cache.Get(ctx, tr.SoundRef)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Skipping sound in mix", "sound", tr.SoundRef, "error", err)
			samples[tr.SoundRef] = nil
			res.Skipped = append(res.Skipped, tr.SoundRef)
			continue
		}
		if s.SampleRate != m.sampleRate {
			return nil, fmt.Errorf("sound %s is at %d Hz, mix is at %d Hz", tr.SoundRef, s.SampleRate, m.sampleRate)
		}
		samples[tr.SoundRef] = s
	}

	stepSeconds := pattern.StepDuration(snap.BPM).Seconds()
	offset := func(step int) int {
		return int(math.Round(float64(step) * stepSeconds * float64(m.sampleRate)))
	}

	// Length: all steps plus the longest ring-out of a triggered sound
	frames := offset(res.Steps)
	for step := 0; step < res.Steps; step++ {
		for _, tr := range snap.Tracks {
			s := samples[tr.SoundRef]
			if s == nil || !tr.Active(step % snap.StepCount) {
				continue
			}
			if end := offset(step) + s.Frames(); end > frames {
				frames = end
			}
		}
	}

	acc := make([]float64, frames*sample.Channels)
	for step := 0; step < res.Steps; step++ {
		if step%snap.StepCount == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		start := offset(step)
		for _, tr := range snap.Tracks {
			s := samples[tr.SoundRef]
			if s == nil || !tr.Active(step % snap.StepCount) {
				continue
			}
			gain := pattern.Clamp01(tr.Volume)
			for i := 0; i < s.Frames(); i++ {
				l, r := s.Frame(i)
				acc[(start+i)*2] += l * gain
				acc[(start+i)*2+1] += r * gain
			}
			res.Hits++
		}
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: sample.Channels,
			SampleRate:  m.sampleRate,
		},
		Data:           make([]int, len(acc)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range acc {
		if v > 1 || v < -1 {
			res.Clipped++
			v = math.Max(-1, math.Min(1, v))
		}
		buf.Data[i] = int(math.Round(v * 32767))
	}
	res.Buffer = buf

	slog.Debug("Pattern rendered",
		"steps", res.Steps,
		"hits", res.Hits,
		"frames", frames,
		"clipped", res.Clipped)
	return res, nil
}

// WriteWAV encodes a rendered buffer as a 16-bit PCM WAV stream
func WriteWAV(w io.WriteSeeker, buf *audio.IntBuffer) error {
	enc := wav.NewEncoder(w, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}

// saveWAV writes buf to f and closes it. A failed close means the file is
// incomplete.
func saveWAV(f interface {
	io.WriteSeeker
	io.Closer
}, buf *audio.IntBuffer) error {
	if err := WriteWAV(f, buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

// Mix renders snap and saves it to outputFile
func (m *Mixer) Mix(ctx context.Context, snap pattern.Snapshot, loops int, outputFile string) (*Result, error) {
	res, err := m.Render(ctx, snap, loops)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Remove existing output file
	os.Remove(outputFile)

	f, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if err := saveWAV(f, res.Buffer); err != nil {
		return nil, err
	}

	if res.Clipped > 0 {
		slog.Warn("Mix clipped", "samples", res.Clipped)
	}
	slog.Info("Mixed audio file saved to", "file", outputFile, "duration_s", fmt.Sprintf("%.2f", res.Duration()))
	return res, nil
}
