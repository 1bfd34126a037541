package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// DefaultKit is the kit every other kit inherits from
const DefaultKit = "default"

type RootConfig struct {
	ActiveKit string                `mapstructure:"active_kit" yaml:"active_kit"`
	Audio     AudioConfig           `mapstructure:"audio" yaml:"audio"`
	Sequencer SequencerConfig       `mapstructure:"sequencer" yaml:"sequencer"`
	Server    ServerConfig          `mapstructure:"server" yaml:"server"`
	Export    ExportConfig          `mapstructure:"export" yaml:"export"`
	Kits      map[string]*KitConfig `mapstructure:"kits" yaml:"kits"`
}

// Config is the resolved configuration: global sections plus the selected
// kit merged over the default kit
type Config struct {
	KitName   string          `mapstructure:"-" yaml:"kit_name"`
	Kit       KitConfig       `mapstructure:"kit" yaml:"kit"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Sequencer SequencerConfig `mapstructure:"sequencer" yaml:"sequencer"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type InheritanceInfo struct {
	Directory  string // "inherited" or "kit-specific"
	BaseURL    string
	Extensions string
	Catalog    string
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "auto", "oto", "pipewire", "none"
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferMS   int    `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	// Target is the PipeWire sink for the pipewire backend, default sink when empty
	Target string `mapstructure:"target" yaml:"target,omitempty"`
}

type SequencerConfig struct {
	BPM           float64 `mapstructure:"bpm" yaml:"bpm"`
	Steps         int     `mapstructure:"steps" yaml:"steps"`
	DefaultVolume float64 `mapstructure:"default_volume" yaml:"default_volume"`
	PreloadOnPlay bool    `mapstructure:"preload_on_play" yaml:"preload_on_play"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port" yaml:"port"`
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}

type ExportConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Format    string `mapstructure:"format" yaml:"format"` // "json", "yaml"
}

// KitConfig describes where sounds come from: a local folder or a remote
// beatgrid server
type KitConfig struct {
	Directory  string   `mapstructure:"directory" yaml:"directory,omitempty"`
	BaseURL    string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions,omitempty"`
	Catalog    []string `mapstructure:"catalog" yaml:"catalog,omitempty"`
}

// Remote reports whether the kit is served over HTTP
func (k KitConfig) Remote() bool {
	return k.BaseURL != ""
}

var (
	validBackends = []string{"auto", "oto", "pipewire", "none"}
	validFormats  = []string{"json", "yaml"}
	validSteps    = []int{8, 16, 32}
)

var defaultConfig = Config{
	KitName: DefaultKit,
	Kit: KitConfig{
		Directory:  "sounds",
		Extensions: []string{"mp3", "wav", "ogg"},
	},
	Audio: AudioConfig{
		Backend:    "auto",
		SampleRate: 44100,
		BufferMS:   20,
	},
	Sequencer: SequencerConfig{
		BPM:           120,
		Steps:         16,
		DefaultVolume: 0.9,
		PreloadOnPlay: true,
	},
	Server: ServerConfig{
		Port: "8000",
	},
	Export: ExportConfig{
		Directory: ".",
		Format:    "json",
	},
}

// Default returns the built-in configuration used when no config file exists
func Default() *Config {
	cfg := defaultConfig
	cfg.Kit.Extensions = append([]string(nil), defaultConfig.Kit.Extensions...)
	applyEnv(&cfg)
	return &cfg
}

// DefaultConfigFile returns ~/.config/beatgrid.yaml
func DefaultConfigFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "beatgrid.yaml")
}

func Load(configFile string) (*Config, error) {
	return LoadWithKit(configFile, "")
}

// LoadWithKit reads configFile and resolves the given kit (or the active kit
// when empty) over the default kit
func LoadWithKit(configFile, kit string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which kit to use
	kitName := kit
	if kitName == "" {
		kitName = rootConfig.ActiveKit
	}
	if kitName == "" {
		kitName = DefaultKit
	}

	base := defaultConfig.Kit
	if defaultKit, exists := rootConfig.Kits[DefaultKit]; exists && defaultKit != nil {
		base = mergeKits(base, *defaultKit, nil)
	}

	selected := &Config{
		KitName:     kitName,
		Audio:       rootConfig.Audio,
		Sequencer:   rootConfig.Sequencer,
		Server:      rootConfig.Server,
		Export:      rootConfig.Export,
		Inheritance: &InheritanceInfo{},
	}

	if kitName == DefaultKit {
		selected.Kit = base
		markInherited(selected.Inheritance, "kit-specific")
	} else {
		kitProfile, exists := rootConfig.Kits[kitName]
		if !exists || kitProfile == nil {
			return nil, fmt.Errorf("kit '%s' not found", kitName)
		}
		selected.Kit = mergeKits(base, *kitProfile, selected.Inheritance)
	}

	// Expand tilde in directories
	selected.Kit.Directory = expandPath(selected.Kit.Directory)
	selected.Export.Directory = expandPath(selected.Export.Directory)
	selected.Server.StaticDir = expandPath(selected.Server.StaticDir)

	if err := Validate(selected); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selected, nil
}

// UpdateActiveKit updates the active_kit field in the config file
func UpdateActiveKit(configFile, newActiveKit string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	// Read current config
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveKit != DefaultKit {
		kits := v.GetStringMap("kits")
		if _, exists := kits[newActiveKit]; !exists {
			return fmt.Errorf("kit '%s' not found in %s", newActiveKit, configFile)
		}
	}

	v.Set("active_kit", newActiveKit)

	// Write back to file
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// KitNames returns the kits declared in the file, sorted, default first
func (r *RootConfig) KitNames() []string {
	names := []string{DefaultKit}
	var others []string
	for name := range r.Kits {
		if name != DefaultKit {
			others = append(others, name)
		}
	}
	sort.Strings(others)
	return append(names, others...)
}

// mergeKits applies the kit over base. A kit with a base_url replaces the
// directory source, and the other way round.
func mergeKits(base, kit KitConfig, info *InheritanceInfo) KitConfig {
	result := base
	if info != nil {
		markInherited(info, "inherited")
	}

	switch {
	case kit.BaseURL != "":
		result.BaseURL = kit.BaseURL
		result.Directory = ""
		if info != nil {
			info.BaseURL = "kit-specific"
			info.Directory = "kit-specific"
		}
	case kit.Directory != "":
		result.Directory = kit.Directory
		result.BaseURL = ""
		if info != nil {
			info.Directory = "kit-specific"
			info.BaseURL = "kit-specific"
		}
	}

	if len(kit.Extensions) > 0 {
		result.Extensions = kit.Extensions
		if info != nil {
			info.Extensions = "kit-specific"
		}
	}
	// Catalog: selection, not fallback. A kit without a catalog lists its
	// whole source.
	if kit.Catalog != nil || kit.BaseURL != "" || kit.Directory != "" {
		result.Catalog = kit.Catalog
		if info != nil {
			info.Catalog = "kit-specific"
		}
	}

	return result
}

func markInherited(info *InheritanceInfo, value string) {
	info.Directory = value
	info.BaseURL = value
	info.Extensions = value
	info.Catalog = value
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// ValidateConfigurationFormat reads the configuration file and checks its
// kits section
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := newViper()
	v.SetConfigFile(configFile)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for _, name := range rootConfig.KitNames() {
		kit, exists := rootConfig.Kits[name]
		if !exists {
			continue
		}
		if err := validateKit(kit, name); err != nil {
			return nil, err
		}
	}

	return &rootConfig, nil
}

// newViper creates a viper instance with the built-in defaults and the
// BEATGRID_ environment overrides
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("active_kit", DefaultKit)
	v.SetDefault("audio.backend", defaultConfig.Audio.Backend)
	v.SetDefault("audio.sample_rate", defaultConfig.Audio.SampleRate)
	v.SetDefault("audio.buffer_ms", defaultConfig.Audio.BufferMS)
	v.SetDefault("audio.target", defaultConfig.Audio.Target)
	v.SetDefault("sequencer.bpm", defaultConfig.Sequencer.BPM)
	v.SetDefault("sequencer.steps", defaultConfig.Sequencer.Steps)
	v.SetDefault("sequencer.default_volume", defaultConfig.Sequencer.DefaultVolume)
	v.SetDefault("sequencer.preload_on_play", defaultConfig.Sequencer.PreloadOnPlay)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.static_dir", defaultConfig.Server.StaticDir)
	v.SetDefault("export.directory", defaultConfig.Export.Directory)
	v.SetDefault("export.format", defaultConfig.Export.Format)

	// Set environment variable prefix
	v.SetEnvPrefix("BEATGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is honoured for hosting platforms that set it
	v.BindEnv("server.port", "BEATGRID_SERVER_PORT", "PORT")

	return v
}

// applyEnv resolves the global sections of cfg against the environment
func applyEnv(cfg *Config) {
	v := newViper()
	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return
	}
	cfg.Audio = root.Audio
	cfg.Sequencer = root.Sequencer
	cfg.Server = root.Server
	cfg.Export = root.Export
}

// Validate checks the resolved configuration
func Validate(cfg *Config) error {
	if err := validateKit(&cfg.Kit, cfg.KitName); err != nil {
		return err
	}

	if !containsString(validBackends, strings.ToLower(cfg.Audio.Backend)) {
		return fmt.Errorf("audio.backend must be one of %s, got: %s", strings.Join(validBackends, ", "), cfg.Audio.Backend)
	}
	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got: %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BufferMS < 0 {
		return fmt.Errorf("audio.buffer_ms must be >= 0, got: %d", cfg.Audio.BufferMS)
	}

	if !containsInt(validSteps, cfg.Sequencer.Steps) {
		return fmt.Errorf("sequencer.steps must be 8, 16 or 32, got: %d", cfg.Sequencer.Steps)
	}
	bpm := cfg.Sequencer.BPM
	if math.IsNaN(bpm) || bpm < 40 || bpm > 240 {
		return fmt.Errorf("sequencer.bpm must be between 40 and 240, got: %v", bpm)
	}
	if v := cfg.Sequencer.DefaultVolume; math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("sequencer.default_volume must be between 0 and 1, got: %v", v)
	}

	if cfg.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if !containsString(validFormats, strings.ToLower(cfg.Export.Format)) {
		return fmt.Errorf("export.format must be one of %s, got: %s", strings.Join(validFormats, ", "), cfg.Export.Format)
	}

	return nil
}

// validateKit validates a single kit entry
func validateKit(kit *KitConfig, name string) error {
	prefix := "kits." + name
	if kit == nil {
		return fmt.Errorf("%s: kit cannot be empty", prefix)
	}

	if kit.Directory == "" && kit.BaseURL == "" && name != DefaultKit {
		return fmt.Errorf("%s: 'directory' or 'base_url' is required", prefix)
	}
	if kit.Directory != "" && kit.BaseURL != "" {
		return fmt.Errorf("%s: 'directory' and 'base_url' are mutually exclusive", prefix)
	}
	if kit.BaseURL != "" && !strings.HasPrefix(kit.BaseURL, "http://") && !strings.HasPrefix(kit.BaseURL, "https://") {
		return fmt.Errorf("%s: 'base_url' must start with http:// or https://, got: %s", prefix, kit.BaseURL)
	}

	for i, ext := range kit.Extensions {
		if strings.TrimPrefix(ext, ".") == "" {
			return fmt.Errorf("%s: extensions[%d] cannot be empty", prefix, i)
		}
	}

	seen := make(map[string]bool)
	for i, sound := range kit.Catalog {
		if sound == "" {
			return fmt.Errorf("%s: catalog[%d] cannot be empty", prefix, i)
		}
		if strings.ContainsAny(sound, `/\`) {
			return fmt.Errorf("%s: catalog[%d] must be a file name, got: %s", prefix, i, sound)
		}
		if seen[sound] {
			return fmt.Errorf("%s: catalog[%d]: duplicate sound '%s'", prefix, i, sound)
		}
		seen[sound] = true
	}

	return nil
}

// ConfigFileExists reports whether path names an existing file
func ConfigFileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, item := range list {
		if item == n {
			return true
		}
	}
	return false
}
