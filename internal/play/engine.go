package play

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/audiolibrelab/beatgrid/internal/audio"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/sample"
)

// Engine turns (sound, gain) pairs into sound. It only plays what the cache
// already holds, so the scheduler is never held up by a decode.
type Engine struct {
	cache  *sample.Cache
	device audio.Device

	fired    atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

// Stats counts what happened to fired sounds
type Stats struct {
	Fired    int64 `json:"fired"`
	Misses   int64 `json:"misses"`
	Failures int64 `json:"failures"`
}

func New(cache *sample.Cache, device audio.Device) *Engine {
	return &Engine{cache: cache, device: device}
}

// Activate opens or resumes the output device
func (e *Engine) Activate() error {
	if err := e.device.Activate(); err != nil {
		return fmt.Errorf("audio output unavailable: %w", err)
	}
	return nil
}

// Fire starts an independent voice for a cached sound. Cache misses and
// device errors are counted and logged, never returned.
func (e *Engine) Fire(ref string, gain float64) {
	s, ok := e.cache.Lookup(ref)
	if !ok {
		e.misses.Add(1)
		slog.Debug("Sound not loaded yet, skipping", "sound", ref)
		return
	}

	if _, err := e.device.Play(s, pattern.Clamp01(gain)); err != nil {
		e.failures.Add(1)
		slog.Warn("Playback failed", "sound", ref, "error", err)
		return
	}
	e.fired.Add(1)
}

// Preview loads a sound if needed and plays it once
func (e *Engine) Preview(ctx context.Context, ref string, gain float64) error {
	if _, err := e.cache.Get(ctx, ref); err != nil {
		return err
	}
	if err := e.Activate(); err != nil {
		slog.Error("Failed to activate audio output", "error", err)
	}
	e.Fire(ref, gain)
	return nil
}

func (e *Engine) Stats() Stats {
	return Stats{
		Fired:    e.fired.Load(),
		Misses:   e.misses.Load(),
		Failures: e.failures.Load(),
	}
}

// Close releases the output device
func (e *Engine) Close() error {
	return e.device.Close()
}
