package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/beatgrid/internal/audio"
	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/patternio"
	"github.com/audiolibrelab/beatgrid/internal/play"
	"github.com/audiolibrelab/beatgrid/internal/sample"
	"github.com/audiolibrelab/beatgrid/internal/scheduler"
)

// Service represents the sequencer session: one pattern, its scheduler and
// the sounds it plays
type Service interface {
	// Track operations
	AddTrack(ctx context.Context, soundRef string, opts pattern.TrackOptions) (pattern.Track, error)
	RemoveTrack(id string) bool
	ToggleStep(id string, index int) (bool, error)
	SetVolume(id string, volume float64) (float64, error)
	SetMuted(id string, muted bool) error

	// Pattern operations
	SetStepCount(n int) error
	SetBPM(bpm float64) error
	ClearAllPatterns()

	// Transport operations
	Start(ctx context.Context)
	Stop(reset bool)
	TogglePlay(ctx context.Context) bool

	// Import / export operations
	ExportDocument() patternio.Document
	ImportDocument(ctx context.Context, raw any) (*patternio.Plan, error)
	ImportData(ctx context.Context, data []byte, format patternio.Format) (*patternio.Plan, error)

	// Saved pattern operations
	ListPatterns() ([]PatternFileInfo, error)
	SavePattern(name string, format patternio.Format) (*PatternFileInfo, error)
	LoadPattern(ctx context.Context, name string) (*patternio.Plan, error)

	// Sound operations
	Sounds(ctx context.Context, query string) ([]string, error)
	Preview(ctx context.Context, soundRef string, gain float64) error
	ReadSound(ctx context.Context, soundRef string) ([]byte, error)

	// Information operations
	Snapshot() pattern.Snapshot
	Status() Status
	Subscribe(fn func(step int)) (unsubscribe func())
	GetConfig() *config.Config
	GetLastError() string

	Close() error
}

// Status summarizes the session for clients
type Status struct {
	State        string     `json:"state"`
	Running      bool       `json:"running"`
	CurrentStep  int        `json:"current_step"`
	StepCount    int        `json:"step_count"`
	BPM          float64    `json:"bpm"`
	StepDuration string     `json:"step_duration"`
	Tracks       int        `json:"tracks"`
	Kit          string     `json:"kit"`
	Backend      string     `json:"backend"`
	CachedSounds int        `json:"cached_sounds"`
	Playback     play.Stats `json:"playback"`
	LastError    string     `json:"last_error,omitempty"`
}

// Options overrides the collaborators New would otherwise build from the
// configuration
type Options struct {
	Library sample.Library
	Decoder sample.Decoder
	Device  audio.Device
	Clock   scheduler.Clock
	Now     func() time.Time
}

// SequencerService is the main service implementation. A single mutex guards
// the pattern and the scheduler; sound loading always happens outside it.
type SequencerService struct {
	cfg     *config.Config
	library sample.Library
	cache   *sample.Cache
	engine  *play.Engine
	backend audio.BackendType
	now     func() time.Time

	mu        sync.Mutex
	pattern   *pattern.Pattern
	scheduler *scheduler.Scheduler

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// NewLibrary creates the sound library for a kit
func NewLibrary(kit config.KitConfig) sample.Library {
	if kit.Remote() {
		return sample.NewHTTPLibrary(kit.BaseURL, nil)
	}
	return sample.NewDirLibrary(kit.Directory, kit.Extensions, kit.Catalog)
}

// New creates a sequencer session from the configuration
func New(cfg *config.Config, opts Options) (*SequencerService, error) {
	p, err := pattern.New(cfg.Sequencer.Steps, cfg.Sequencer.BPM)
	if err != nil {
		return nil, fmt.Errorf("invalid sequencer configuration: %w", err)
	}

	if opts.Library == nil {
		opts.Library = NewLibrary(cfg.Kit)
	}
	if opts.Device == nil {
		opts.Device = audio.NewDevice(cfg)
	}
	if opts.Decoder == nil {
		opts.Decoder = sample.NewFormatDecoder(opts.Device.SampleRate())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache := sample.NewCache(opts.Library, opts.Decoder)
	engine := play.New(cache, opts.Device)

	s := &SequencerService{
		cfg:     cfg,
		library: opts.Library,
		cache:   cache,
		engine:  engine,
		backend: opts.Device.Backend(),
		now:     opts.Now,
		pattern: p,
	}
	s.scheduler = scheduler.New(&s.mu, p, engine, opts.Clock)

	slog.Debug("Sequencer session created",
		"kit", cfg.KitName,
		"backend", s.backend,
		"steps", cfg.Sequencer.Steps,
		"bpm", cfg.Sequencer.BPM)
	return s, nil
}

// AddTrack loads the sound, then appends a track for it. Unknown or broken
// sounds abort the add.
func (s *SequencerService) AddTrack(ctx context.Context, soundRef string, opts pattern.TrackOptions) (pattern.Track, error) {
	if _, err := s.cache.Get(ctx, soundRef); err != nil {
		s.setLastError(fmt.Sprintf("Failed to add track: %v", err))
		return pattern.Track{}, fmt.Errorf("cannot add track: %w", err)
	}

	if opts.Volume == nil {
		v := s.cfg.Sequencer.DefaultVolume
		opts.Volume = &v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.pattern.AddTrack(soundRef, opts)
	slog.Debug("Track added", "id", t.ID, "sound", soundRef)
	return *t, nil
}

// RemoveTrack deletes a track; unknown ids are ignored
func (s *SequencerService) RemoveTrack(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.RemoveTrack(id)
}

func (s *SequencerService) ToggleStep(id string, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.ToggleStep(id, index)
}

func (s *SequencerService) SetVolume(id string, volume float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.SetVolume(id, volume)
}

func (s *SequencerService) SetMuted(id string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.SetMuted(id, muted)
}

// SetStepCount stops and rewinds playback, then resizes every track
func (s *SequencerService) SetStepCount(n int) error {
	if !pattern.ValidStepCount(n) {
		return fmt.Errorf("%w: %d (allowed: 8, 16, 32)", pattern.ErrInvalidStepCount, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Stop(true)
	return s.pattern.SetStepCount(n)
}

func (s *SequencerService) SetBPM(bpm float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler.SetBPM(bpm)
}

func (s *SequencerService) ClearAllPatterns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern.ClearAll()
}

// Start begins playback from the current step. With preload_on_play the
// whole catalog is loaded first so no step is silent on the first pass.
func (s *SequencerService) Start(ctx context.Context) {
	s.clearLastError()

	if s.cfg.Sequencer.PreloadOnPlay && !s.running() {
		s.preloadCatalog(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Start()
}

// Stop halts playback. With reset the playhead returns to the first step.
func (s *SequencerService) Stop(reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Stop(reset)
}

// TogglePlay pauses a running pattern or starts a stopped one, returning
// whether it is now running
func (s *SequencerService) TogglePlay(ctx context.Context) bool {
	if s.running() {
		s.Stop(false)
		return false
	}
	s.Start(ctx)
	return true
}

func (s *SequencerService) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler.Running()
}

func (s *SequencerService) preloadCatalog(ctx context.Context) {
	sounds, err := s.library.Sounds(ctx)
	if err != nil {
		slog.Warn("Failed to list sounds for preload", "error", err)
		return
	}
	loaded, err := s.cache.Preload(ctx, sounds)
	if err != nil {
		slog.Warn("Preload interrupted", "error", err)
	}
	slog.Debug("Sounds preloaded", "loaded", loaded, "catalog", len(sounds))
}

// ExportDocument snapshots the pattern as a portable document
func (s *SequencerService) ExportDocument() patternio.Document {
	return patternio.Export(s.Snapshot(), s.now())
}

// ImportDocument validates raw completely before touching the session. On
// success playback is stopped and the pattern replaced in one step. The
// imported sounds are loaded before returning; load failures are only logged.
func (s *SequencerService) ImportDocument(ctx context.Context, raw any) (*patternio.Plan, error) {
	sounds, err := s.library.Sounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read sound catalog: %w", err)
	}
	catalog := make(map[string]bool, len(sounds))
	for _, ref := range sounds {
		catalog[ref] = true
	}

	plan, err := patternio.Validate(raw, func(ref string) bool { return catalog[ref] })
	if err != nil {
		s.setLastError(fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}

	s.mu.Lock()
	s.scheduler.Stop(true)
	err = s.pattern.Load(plan.StepCount, plan.BPM, plan.Tracks)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to apply import: %w", err)
	}

	slog.Info("Pattern imported",
		"tracks", len(plan.Tracks),
		"dropped", len(plan.Dropped),
		"steps", plan.StepCount,
		"bpm", plan.BPM)

	// Load the sounds now so the first pass is not silent
	if _, err := s.cache.Preload(ctx, plan.SoundRefs()); err != nil {
		slog.Warn("Preload after import interrupted", "error", err)
	}
	return plan, nil
}

// ImportData decodes and imports a serialized document
func (s *SequencerService) ImportData(ctx context.Context, data []byte, format patternio.Format) (*patternio.Plan, error) {
	raw, err := patternio.Decode(data, format)
	if err != nil {
		s.setLastError(fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}
	return s.ImportDocument(ctx, raw)
}

// Sounds lists the catalog, filtered by query when given
func (s *SequencerService) Sounds(ctx context.Context, query string) ([]string, error) {
	sounds, err := s.library.Sounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sounds: %w", err)
	}
	return sample.Filter(sounds, query), nil
}

// Preview plays a sound once, loading it first if needed
func (s *SequencerService) Preview(ctx context.Context, soundRef string, gain float64) error {
	if err := s.engine.Preview(ctx, soundRef, gain); err != nil {
		return fmt.Errorf("cannot preview sound: %w", err)
	}
	return nil
}

// ReadSound returns the raw bytes of a catalog sound
func (s *SequencerService) ReadSound(ctx context.Context, soundRef string) ([]byte, error) {
	return s.library.Resolve(ctx, soundRef)
}

func (s *SequencerService) Snapshot() pattern.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.Snapshot()
}

func (s *SequencerService) Status() Status {
	s.mu.Lock()
	st := Status{
		State:        s.scheduler.State().String(),
		Running:      s.scheduler.Running(),
		CurrentStep:  s.pattern.CurrentStep(),
		StepCount:    s.pattern.StepCount(),
		BPM:          s.pattern.BPM(),
		StepDuration: s.pattern.StepDuration().String(),
		Tracks:       len(s.pattern.Tracks()),
	}
	s.mu.Unlock()

	st.Kit = s.cfg.KitName
	st.Backend = string(s.backend)
	st.CachedSounds = s.cache.Len()
	st.Playback = s.engine.Stats()
	st.LastError = s.GetLastError()
	return st
}

// Subscribe registers fn to receive the step of every tick. fn runs while the
// session is locked and must not call back into it.
func (s *SequencerService) Subscribe(fn func(step int)) func() {
	return s.scheduler.Subscribe(fn)
}

// GetConfig returns the current configuration
func (s *SequencerService) GetConfig() *config.Config {
	return s.cfg
}

// Close stops playback and releases the audio output
func (s *SequencerService) Close() error {
	s.Stop(true)
	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("failed to close audio output: %w", err)
	}
	return nil
}

// GetLastError returns the last error message (thread-safe)
func (s *SequencerService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *SequencerService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *SequencerService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// IsValidationError reports whether err is caused by bad input rather than
// a failure of the session
func IsValidationError(err error) bool {
	for _, target := range []error{
		pattern.ErrOutOfRange,
		pattern.ErrInvalidStepCount,
		pattern.ErrInvalidBPM,
		patternio.ErrMalformedDocument,
		patternio.ErrInvalidTracks,
		sample.ErrDecode,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is about an unknown sound, track or file
func IsNotFound(err error) bool {
	return errors.Is(err, sample.ErrNotFound) || errors.Is(err, pattern.ErrTrackNotFound) || errors.Is(err, ErrPatternNotFound)
}
