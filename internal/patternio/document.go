// Package patternio converts patterns to and from portable documents.
package patternio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
)

// Version is the current document schema version
const Version = 1

var (
	// ErrMalformedDocument is returned when the input is not a structured
	// object
	ErrMalformedDocument = errors.New("malformed document")

	// ErrInvalidTracks is returned when tracks is not a list
	ErrInvalidTracks = errors.New("invalid tracks")
)

// Format of a serialized document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported document format: %s", s)
}

// FormatFromPath picks the format from a file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return FormatJSON
	}
	return f
}

// Extension returns the file extension for the format, without the dot
func (f Format) Extension() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// Document is the exported form of a pattern
type Document struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt string          `json:"exportedAt,omitempty" yaml:"exportedAt,omitempty"`
	BPM        float64         `json:"bpm" yaml:"bpm"`
	StepsCount int             `json:"stepsCount" yaml:"stepsCount"`
	Tracks     []TrackDocument `json:"tracks" yaml:"tracks"`
}

type TrackDocument struct {
	File   string  `json:"file" yaml:"file"`
	Name   string  `json:"name" yaml:"name"`
	Volume float64 `json:"volume" yaml:"volume"`
	Muted  bool    `json:"muted" yaml:"muted"`
	// Steps are written as 0 and 1
	Steps []int `json:"steps" yaml:"steps,flow"`
}

// Export builds a document from a snapshot
func Export(snap pattern.Snapshot, now time.Time) Document {
	doc := Document{
		Version:    Version,
		BPM:        snap.BPM,
		StepsCount: snap.StepCount,
		Tracks:     make([]TrackDocument, 0, len(snap.Tracks)),
	}
	if !now.IsZero() {
		doc.ExportedAt = now.UTC().Format(time.RFC3339Nano)
	}

	for _, t := range snap.Tracks {
		steps := make([]int, len(t.Steps))
		for i, on := range t.Steps {
			if on {
				steps[i] = 1
			}
		}
		doc.Tracks = append(doc.Tracks, TrackDocument{
			File:   t.SoundRef,
			Name:   t.Name,
			Volume: t.Volume,
			Muted:  t.Muted,
			Steps:  steps,
		})
	}
	return doc
}

// Marshal encodes a document, indented by two spaces
func Marshal(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml document: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json document: %w", err)
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unsupported document format: %s", format)
}

// Decode parses data into generic values for Validate. Numbers are float64
// for JSON and int or float64 for YAML.
func Decode(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
	}
	return raw, nil
}

// DefaultFileName is the name an export is saved under when none is given,
// e.g. beat-2024-03-01-18-30-00.json
func DefaultFileName(now time.Time, format Format) string {
	return "beat-" + now.UTC().Format("2006-01-02-15-04-05") + "." + format.Extension()
}
