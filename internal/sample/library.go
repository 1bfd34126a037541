package sample

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultExtensions lists the audio formats the decoder understands
var DefaultExtensions = []string{"mp3", "wav", "ogg"}

// Library resolves sound references to raw audio bytes. The set of references
// is closed: anything outside Sounds fails with ErrNotFound.
type Library interface {
	// Resolve reads the raw bytes of a sound
	Resolve(ctx context.Context, ref string) ([]byte, error)

	// Sounds returns the catalog, sorted case-insensitively
	Sounds(ctx context.Context) ([]string, error)

	// Has reports whether ref is part of the catalog
	Has(ctx context.Context, ref string) bool
}

// DirLibrary serves sounds from a folder on disk
type DirLibrary struct {
	dir        string
	extensions map[string]bool
	// allowed restricts the catalog to a fixed list when non-empty
	allowed map[string]bool
}

// NewDirLibrary creates a library over dir. Only files with one of the given
// extensions are part of the catalog; when catalog is non-empty, only those
// names are.
func NewDirLibrary(dir string, extensions []string, catalog []string) *DirLibrary {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	var allowed map[string]bool
	if len(catalog) > 0 {
		allowed = make(map[string]bool, len(catalog))
		for _, name := range catalog {
			allowed[name] = true
		}
	}

	return &DirLibrary{dir: dir, extensions: exts, allowed: allowed}
}

// Dir returns the folder the library reads from
func (l *DirLibrary) Dir() string {
	return l.dir
}

// Sounds lists the audio files in the folder
func (l *DirLibrary) Sounds(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read sounds directory %s: %w", l.dir, err)
	}

	var sounds []string
	for _, entry := range entries {
		if entry.IsDir() || !l.accepts(entry.Name()) {
			continue
		}
		sounds = append(sounds, entry.Name())
	}

	sortSounds(sounds)
	return sounds, nil
}

// Has reports whether ref names a catalog file that exists
func (l *DirLibrary) Has(ctx context.Context, ref string) bool {
	if !l.accepts(ref) {
		return false
	}
	info, err := os.Stat(filepath.Join(l.dir, ref))
	return err == nil && info.Mode().IsRegular()
}

// Resolve reads the file behind ref
func (l *DirLibrary) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if !l.accepts(ref) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("cannot read sound %s: %w", ref, err)
	}

	slog.Debug("Sound read from disk", "sound", ref, "bytes", len(data))
	return data, nil
}

// accepts checks the name against the extension filter and fixed catalog.
// Names that could escape the folder are never accepted.
func (l *DirLibrary) accepts(ref string) bool {
	if ref == "" || ref != filepath.Base(ref) || strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." {
		return false
	}
	if !l.extensions[strings.ToLower(filepath.Ext(ref))] {
		return false
	}
	if l.allowed != nil && !l.allowed[ref] {
		return false
	}
	return true
}

// MemoryLibrary is a library backed by an in-memory map
type MemoryLibrary struct {
	mu     sync.RWMutex
	sounds map[string][]byte
}

// NewMemoryLibrary creates a library holding the given sounds
func NewMemoryLibrary(sounds map[string][]byte) *MemoryLibrary {
	m := &MemoryLibrary{sounds: make(map[string][]byte, len(sounds))}
	for ref, data := range sounds {
		m.sounds[ref] = data
	}
	return m
}

// Put adds or replaces a sound
func (m *MemoryLibrary) Put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sounds[ref] = data
}

func (m *MemoryLibrary) Resolve(ctx context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.sounds[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, nil
}

func (m *MemoryLibrary) Sounds(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sounds := make([]string, 0, len(m.sounds))
	for ref := range m.sounds {
		sounds = append(sounds, ref)
	}
	sortSounds(sounds)
	return sounds, nil
}

func (m *MemoryLibrary) Has(ctx context.Context, ref string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sounds[ref]
	return ok
}

// Filter returns the sounds containing query, ignoring case. An empty query
// returns the full list.
func Filter(sounds []string, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sounds
	}

	var matches []string
	for _, s := range sounds {
		if strings.Contains(strings.ToLower(s), q) {
			matches = append(matches, s)
		}
	}
	return matches
}

func sortSounds(sounds []string) {
	sort.Slice(sounds, func(i, j int) bool {
		a, b := strings.ToLower(sounds[i]), strings.ToLower(sounds[j])
		if a == b {
			return sounds[i] < sounds[j]
		}
		return a < b
	})
}
