package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/audiolibrelab/beatgrid/internal/patternio"
)

// ErrPatternNotFound is returned for a saved pattern that does not exist
var ErrPatternNotFound = errors.New("pattern file not found")

// PatternFileInfo contains information about a saved pattern file
type PatternFileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Format       string    `json:"format"`
	DownloadURL  string    `json:"download_url"`
}

// getPatternsDirectory returns the resolved export directory path
func (s *SequencerService) getPatternsDirectory() string {
	dir := s.cfg.Export.Directory
	if dir == "" {
		dir = "."
	}
	return dir
}

// ListPatterns returns the saved patterns in the export directory, newest
// first
func (s *SequencerService) ListPatterns() ([]PatternFileInfo, error) {
	dir := s.getPatternsDirectory()

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []PatternFileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read patterns directory: %w", err)
	}

	patterns := []PatternFileInfo{}
	for _, file := range files {
		if file.IsDir() || !isPatternFile(file.Name()) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		patterns = append(patterns, patternFileInfo(dir, info))
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].ModTime.After(patterns[j].ModTime)
	})
	return patterns, nil
}

// SavePattern writes the current pattern to the export directory. An empty
// name uses the timestamped default.
func (s *SequencerService) SavePattern(name string, format patternio.Format) (*PatternFileInfo, error) {
	doc := s.ExportDocument()

	if name == "" {
		name = patternio.DefaultFileName(s.now(), format)
	} else if filepath.Ext(name) == "" {
		name += "." + format.Extension()
	}
	if !validPatternName(name) {
		return nil, fmt.Errorf("invalid pattern file name: %s", name)
	}

	data, err := patternio.Marshal(doc, format)
	if err != nil {
		return nil, err
	}

	dir := s.getPatternsDirectory()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create patterns directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.setLastError(fmt.Sprintf("Failed to save pattern: %v", err))
		return nil, fmt.Errorf("failed to write pattern file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat pattern file: %w", err)
	}

	slog.Info("Pattern saved", "file", path, "tracks", len(doc.Tracks))
	saved := patternFileInfo(dir, info)
	return &saved, nil
}

// LoadPattern imports a saved pattern by file name
func (s *SequencerService) LoadPattern(ctx context.Context, name string) (*patternio.Plan, error) {
	if !validPatternName(name) {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.getPatternsDirectory(), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, name)
		}
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	return s.ImportData(ctx, data, patternio.FormatFromPath(name))
}

func patternFileInfo(dir string, info os.FileInfo) PatternFileInfo {
	return PatternFileInfo{
		Name:         info.Name(),
		Path:         filepath.Join(dir, info.Name()),
		Size:         info.Size(),
		SizeHuman:    formatBytes(info.Size()),
		ModTime:      info.ModTime(),
		ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
		Format:       string(patternio.FormatFromPath(info.Name())),
		DownloadURL:  fmt.Sprintf("/api/patterns/download/%s", info.Name()),
	}
}

func isPatternFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// validPatternName accepts plain pattern file names only
func validPatternName(name string) bool {
	return name != "" && name == filepath.Base(name) && !strings.ContainsAny(name, `/\`) &&
		name != "." && name != ".." && isPatternFile(name)
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
