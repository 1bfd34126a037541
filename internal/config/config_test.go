package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMergeKits_SelectionAndFallback(t *testing.T) {
	base := KitConfig{
		Directory:  "~/Samples/808",
		Extensions: []string{"wav"},
		Catalog:    []string{"kick.wav", "snare.wav"},
	}

	// Kit overrides the source; extensions are inherited
	kit := KitConfig{
		Directory: "~/Samples/909",
	}

	info := &InheritanceInfo{}
	result := mergeKits(base, kit, info)

	if result.Directory != "~/Samples/909" {
		t.Errorf("Expected kit directory, got %s", result.Directory)
	}
	if len(result.Extensions) != 1 || result.Extensions[0] != "wav" {
		t.Errorf("Expected inherited extensions, got %v", result.Extensions)
	}
	// A new source does not inherit the catalog of another folder
	if len(result.Catalog) != 0 {
		t.Errorf("Expected no catalog, got %v", result.Catalog)
	}

	if info.Directory != "kit-specific" || info.Extensions != "inherited" {
		t.Errorf("Unexpected inheritance info: %+v", info)
	}
}

func TestMergeKits_RemoteReplacesDirectory(t *testing.T) {
	base := KitConfig{Directory: "sounds", Extensions: []string{"mp3"}}
	result := mergeKits(base, KitConfig{BaseURL: "http://studio:8000"}, nil)

	if result.Directory != "" {
		t.Errorf("Remote kit should not keep the directory, got %s", result.Directory)
	}
	if !result.Remote() {
		t.Error("Expected a remote kit")
	}
}

func TestMergeKits_CatalogOnly(t *testing.T) {
	base := KitConfig{Directory: "sounds"}
	result := mergeKits(base, KitConfig{Catalog: []string{"kick.wav"}}, nil)

	if result.Directory != "sounds" {
		t.Errorf("Expected inherited directory, got %s", result.Directory)
	}
	if len(result.Catalog) != 1 {
		t.Errorf("Expected kit catalog, got %v", result.Catalog)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Samples", filepath.Join(homeDir, "Samples")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
		{"~someone/path", "~someone/path"}, // Other users' homes are left alone
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sequencer.BPM != 120 || cfg.Sequencer.Steps != 16 {
		t.Errorf("Unexpected sequencer defaults: %+v", cfg.Sequencer)
	}
	if cfg.Server.Port != "8000" {
		t.Errorf("Expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Kit.Directory != "sounds" {
		t.Errorf("Expected sounds directory, got %s", cfg.Kit.Directory)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}

	// Callers may modify their copy freely
	cfg.Kit.Extensions[0] = "flac"
	if Default().Kit.Extensions[0] != "mp3" {
		t.Error("Default must return an independent copy")
	}
}

func TestLoadWithKit(t *testing.T) {
	configFile := createTempConfig(t, `
active_kit: acoustic

sequencer:
  bpm: 96
  steps: 32

kits:
  default:
    directory: /srv/sounds
    extensions: [wav, mp3]
  acoustic:
    directory: /srv/acoustic
  remote:
    base_url: http://studio.local:8000
`)

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.KitName != "acoustic" || cfg.Kit.Directory != "/srv/acoustic" {
		t.Errorf("Expected acoustic kit, got %s %+v", cfg.KitName, cfg.Kit)
	}
	if len(cfg.Kit.Extensions) != 2 {
		t.Errorf("Expected extensions inherited from default, got %v", cfg.Kit.Extensions)
	}
	if cfg.Sequencer.BPM != 96 || cfg.Sequencer.Steps != 32 {
		t.Errorf("Unexpected sequencer config: %+v", cfg.Sequencer)
	}
	// Unset sections fall back to the built-in defaults
	if cfg.Audio.SampleRate != 44100 || cfg.Export.Format != "json" || !cfg.Sequencer.PreloadOnPlay {
		t.Errorf("Expected defaults for unset keys, got %+v %+v", cfg.Audio, cfg.Export)
	}

	remote, err := LoadWithKit(configFile, "remote")
	if err != nil {
		t.Fatalf("LoadWithKit failed: %v", err)
	}
	if !remote.Kit.Remote() || remote.Kit.BaseURL != "http://studio.local:8000" {
		t.Errorf("Expected remote kit, got %+v", remote.Kit)
	}

	if _, err := LoadWithKit(configFile, "missing"); err == nil || !strings.Contains(err.Error(), "kit 'missing' not found") {
		t.Errorf("Expected missing kit error, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configFile := createTempConfig(t, `
sequencer:
  bpm: 100
`)
	t.Setenv("BEATGRID_SEQUENCER_BPM", "140")
	t.Setenv("PORT", "9001")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sequencer.BPM != 140 {
		t.Errorf("Expected env bpm 140, got %v", cfg.Sequencer.BPM)
	}
	if cfg.Server.Port != "9001" {
		t.Errorf("Expected PORT to set the server port, got %s", cfg.Server.Port)
	}
}

func TestLoad_NoFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Expected an error without a config file")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestUpdateActiveKit(t *testing.T) {
	configFile := createTempConfig(t, `
active_kit: default
kits:
  live:
    directory: /srv/live
`)

	if err := UpdateActiveKit(configFile, "live"); err != nil {
		t.Fatalf("UpdateActiveKit failed: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.KitName != "live" {
		t.Errorf("Expected active kit 'live', got %s", cfg.KitName)
	}

	if err := UpdateActiveKit(configFile, "ghost"); err == nil {
		t.Error("Expected an error for an unknown kit")
	}
	if err := UpdateActiveKit("", "live"); err == nil {
		t.Error("Expected an error without a config file")
	}
}

func TestKitNames(t *testing.T) {
	root := &RootConfig{Kits: map[string]*KitConfig{
		"zeta":    {Directory: "z"},
		"alpha":   {Directory: "a"},
		"default": {Directory: "d"},
	}}

	names := root.KitNames()
	want := []string{"default", "alpha", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, names)
		}
	}
}
