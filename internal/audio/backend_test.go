package audio

import (
	"testing"

	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/sample"
)

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		backend  string
		expected BackendType
	}{
		{"none", BackendTypeNone},
		{"NONE", BackendTypeNone},
		{"oto", BackendTypeOto},
		{"pipewire", BackendTypePipeWire},
		{"auto", BackendTypeOto},
		{"", BackendTypeOto},
	}

	for _, test := range tests {
		cfg := config.Default()
		cfg.Audio.Backend = test.backend
		if got := determineBackend(cfg); got != test.expected {
			t.Errorf("determineBackend(%q) = %s, expected %s", test.backend, got, test.expected)
		}
	}
}

func TestNewDevice_None(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "none"
	cfg.Audio.SampleRate = 48000

	dev := NewDevice(cfg)
	if dev.Backend() != BackendTypeNone {
		t.Fatalf("Expected null device, got %s", dev.Backend())
	}
	if dev.SampleRate() != 48000 {
		t.Errorf("Expected 48000 Hz, got %d", dev.SampleRate())
	}
}

func TestNullDevice(t *testing.T) {
	dev := NewNullDevice(44100)
	s := &sample.Sample{Ref: "kick.wav", SampleRate: 44100, PCM: make([]byte, 16)}

	if err := dev.Activate(); err != nil {
		t.Fatal(err)
	}
	for _, gain := range []float64{0.5, 1} {
		v, err := dev.Play(s, gain)
		if err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		if v.Playing() {
			t.Error("Silent voices finish immediately")
		}
	}

	plays := dev.Plays()
	if len(plays) != 2 || plays[0].Gain != 0.5 || plays[1].Ref != "kick.wav" {
		t.Errorf("Unexpected play log %+v", plays)
	}
	if dev.Activations() != 1 {
		t.Errorf("Expected 1 activation, got %d", dev.Activations())
	}
}

func TestGetAvailableBackends(t *testing.T) {
	backends := GetAvailableBackends()
	if backends[0] != BackendTypeOto || backends[len(backends)-1] != BackendTypeNone {
		t.Errorf("Unexpected backends %v", backends)
	}
}
