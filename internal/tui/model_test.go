package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/beatgrid/internal/audio"
	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/sample"
	"github.com/audiolibrelab/beatgrid/internal/scheduler"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

type stubDecoder struct{}

func (stubDecoder) Decode(ref string, data []byte) (*sample.Sample, error) {
	return &sample.Sample{Ref: ref, SampleRate: 44100, PCM: make([]byte, 16)}, nil
}

func newSession(t *testing.T) (*service.SequencerService, *scheduler.ManualClock) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Backend = "none"
	cfg.Sequencer.PreloadOnPlay = false

	clock := &scheduler.ManualClock{}
	svc, err := service.New(cfg, service.Options{
		Library: sample.NewMemoryLibrary(map[string][]byte{
			"kick.wav":  []byte("kick"),
			"snare.wav": []byte("snare"),
		}),
		Decoder: stubDecoder{},
		Device:  audio.NewNullDevice(44100),
		Clock:   clock,
	})
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	for _, ref := range []string{"kick.wav", "snare.wav"} {
		if _, err := svc.AddTrack(context.Background(), ref, pattern.TrackOptions{}); err != nil {
			t.Fatalf("AddTrack failed: %v", err)
		}
	}
	return svc, clock
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestToggleWithCursor(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	m = press(m, "x", "l", "j", "x")

	snap := svc.Snapshot()
	if !snap.Tracks[0].Steps[0] {
		t.Error("Expected kick step 0 on")
	}
	if !snap.Tracks[1].Steps[1] {
		t.Error("Expected snare step 1 on")
	}

	// Cursor stays on the grid
	m = press(m, "j", "j", "j")
	if m.row != 1 {
		t.Errorf("Expected row clamped to 1, got %d", m.row)
	}
}

func TestTransportKeys(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	m = press(m, " ")
	if !svc.Status().Running {
		t.Fatal("Expected space to start playback")
	}
	if !strings.Contains(m.View(), "PLAY") {
		t.Error("Expected PLAY in the header")
	}

	m = press(m, "s")
	st := svc.Status()
	if st.Running || st.CurrentStep != 0 {
		t.Errorf("Expected s to stop and rewind, got %+v", st)
	}
	if !strings.Contains(m.View(), "STOP") {
		t.Error("Expected STOP in the header")
	}
}

func TestTempoAndStepKeys(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	press(m, "+")
	if bpm := svc.Status().BPM; bpm != 125 {
		t.Errorf("Expected 125 bpm, got %v", bpm)
	}
	press(m, "-", "-")
	if bpm := svc.Status().BPM; bpm != 115 {
		t.Errorf("Expected 115 bpm, got %v", bpm)
	}

	svc.SetBPM(pattern.MaxBPM)
	m = press(m, "+")
	if m.message == "" {
		t.Error("Expected an error message above the max bpm")
	}

	press(m, "]")
	if n := svc.Status().StepCount; n != 32 {
		t.Errorf("Expected 32 steps, got %d", n)
	}
	press(m, "]")
	if n := svc.Status().StepCount; n != 8 {
		t.Errorf("Expected wrap to 8 steps, got %d", n)
	}
	press(m, "[")
	if n := svc.Status().StepCount; n != 32 {
		t.Errorf("Expected wrap back to 32 steps, got %d", n)
	}
}

func TestMuteAndClear(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	m = press(m, "m", "j", "m")
	snap := svc.Snapshot()
	if !snap.Tracks[0].Muted || !snap.Tracks[1].Muted {
		t.Error("Expected both tracks muted")
	}

	m = press(m, "M")
	for _, tr := range svc.Snapshot().Tracks {
		if tr.Muted {
			t.Error("Expected M to unmute every track")
		}
	}

	press(m, "x", "c")
	for _, tr := range svc.Snapshot().Tracks {
		for _, on := range tr.Steps {
			if on {
				t.Fatal("Expected c to clear every step")
			}
		}
	}
}

func TestQuit(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	m = press(m, " ")
	next, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("Expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if svc.Status().Running {
		t.Error("Expected quit to stop playback")
	}
	if next.(Model).View() != "" {
		t.Error("Expected an empty view after quit")
	}
}

func TestStepsDoNotBlockScheduler(t *testing.T) {
	svc, clock := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	press(m, " ")
	// Nobody reads the channel; ticks must still go through
	for i := 0; i < 5; i++ {
		clock.Tick()
	}
	if step := svc.Status().CurrentStep; step != 6 {
		t.Errorf("Expected step 6, got %d", step)
	}

	msg := ListenForSteps(m.steps)()
	if _, ok := msg.(StepMsg); !ok {
		t.Errorf("Expected StepMsg, got %T", msg)
	}
	if _, cmd := m.Update(msg); cmd == nil {
		t.Error("Expected the model to keep listening")
	}
}

func TestNowColumn(t *testing.T) {
	tests := []struct {
		st   service.Status
		want int
	}{
		{service.Status{Running: false, CurrentStep: 3, StepCount: 16}, -1},
		{service.Status{Running: true, CurrentStep: 3, StepCount: 16}, 2},
		{service.Status{Running: true, CurrentStep: 0, StepCount: 16}, 15},
	}
	for _, tt := range tests {
		if got := nowColumn(tt.st); got != tt.want {
			t.Errorf("nowColumn(%+v) = %d, want %d", tt.st, got, tt.want)
		}
	}
}

func TestViewListsTracks(t *testing.T) {
	svc, _ := newSession(t)
	m := NewModel(context.Background(), svc)
	defer m.Close()

	view := m.View()
	for _, want := range []string{"kick", "snare", "120bpm", "q:quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected %q in view", want)
		}
	}
}
