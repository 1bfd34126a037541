package audio

import (
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/audiolibrelab/beatgrid/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeOto      BackendType = "oto"
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeNone     BackendType = "none"
	BackendTypeAuto     BackendType = "auto"
)

// NewDevice creates an output device using the backend selected in the
// configuration
func NewDevice(cfg *config.Config) Device {
	backendType := determineBackend(cfg)
	slog.Debug("Audio backend selected", "backend", backendType, "sample_rate", cfg.Audio.SampleRate)

	switch backendType {
	case BackendTypeNone:
		return NewNullDevice(cfg.Audio.SampleRate)
	case BackendTypePipeWire:
		return NewPipeWireDevice(cfg.Audio.SampleRate, cfg.Audio.Target)
	default:
		buffer := time.Duration(cfg.Audio.BufferMS) * time.Millisecond
		return NewOtoDevice(cfg.Audio.SampleRate, buffer)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "none":
		return BackendTypeNone
	case "pipewire":
		return BackendTypePipeWire
	case "oto", "auto", "":
		return BackendTypeOto
	}
	return BackendTypeOto
}

// GetAvailableBackends returns the backends this build can use
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeOto}
	if _, err := exec.LookPath(pwCat); err == nil {
		backends = append(backends, BackendTypePipeWire)
	}
	return append(backends, BackendTypeNone)
}
