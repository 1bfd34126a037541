package patternio

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
)

// Plan is a validated import, ready to be applied to a pattern in one go
type Plan struct {
	StepCount int
	BPM       float64
	Tracks    []pattern.TrackSpec
	Dropped   []DroppedTrack
}

// DroppedTrack is a track left out of an import
type DroppedTrack struct {
	Index  int    `json:"index"`
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Validate checks a decoded document. The document as a whole must have a
// valid step count, tempo and track list; tracks whose sound is unknown to
// catalog, or that are not objects, are dropped and the rest is kept.
func Validate(raw any, catalog func(ref string) bool) (*Plan, error) {
	var doc map[string]any
	switch v := raw.(type) {
	case []any:
		// A list is structured but has none of the fields
		doc = map[string]any{}
	default:
		var ok bool
		if doc, ok = asObject(v); !ok {
			return nil, fmt.Errorf("%w: expected an object, got %T", ErrMalformedDocument, raw)
		}
	}

	steps := toNumber(doc["stepsCount"])
	if math.IsInf(steps, 0) || steps != math.Trunc(steps) || !pattern.ValidStepCount(int(steps)) {
		return nil, fmt.Errorf("%w: %v (allowed: 8, 16, 32)", pattern.ErrInvalidStepCount, doc["stepsCount"])
	}
	stepCount := int(steps)

	bpm := toNumber(doc["bpm"])
	if !pattern.ValidBPM(bpm) {
		return nil, fmt.Errorf("%w: %v (allowed: %d to %d)", pattern.ErrInvalidBPM, doc["bpm"], pattern.MinBPM, pattern.MaxBPM)
	}

	list, ok := doc["tracks"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidTracks, doc["tracks"])
	}

	plan := &Plan{StepCount: stepCount, BPM: bpm}
	for i, item := range list {
		tr, ok := asObject(item)
		if !ok {
			plan.drop(i, "", "not an object")
			continue
		}

		file, ok := tr["file"].(string)
		if !ok || file == "" {
			plan.drop(i, "", "missing file")
			continue
		}
		if catalog != nil && !catalog(file) {
			plan.drop(i, file, "unknown sound")
			continue
		}

		spec := pattern.TrackSpec{SoundRef: file}

		if name, present := tr["name"]; present && name != nil {
			s := fmt.Sprint(name)
			spec.Name = &s
		}

		volume := pattern.DefaultVolume
		if v, present := tr["volume"]; present && v != nil {
			n := toNumber(v)
			if math.IsInf(n, 0) {
				n = 0
			}
			volume = pattern.Clamp01(n)
		}
		spec.Volume = &volume

		spec.Muted = truthy(tr["muted"])

		rawSteps, _ := tr["steps"].([]any)
		spec.Steps = make([]bool, stepCount)
		for j := 0; j < len(rawSteps) && j < stepCount; j++ {
			spec.Steps[j] = truthy(rawSteps[j])
		}

		plan.Tracks = append(plan.Tracks, spec)
	}

	return plan, nil
}

func (p *Plan) drop(index int, file, reason string) {
	slog.Warn("Import dropped track", "index", index, "file", file, "reason", reason)
	p.Dropped = append(p.Dropped, DroppedTrack{Index: index, File: file, Reason: reason})
}

// SoundRefs returns the distinct sounds the plan uses, in track order
func (p *Plan) SoundRefs() []string {
	seen := make(map[string]bool, len(p.Tracks))
	var refs []string
	for _, t := range p.Tracks {
		if !seen[t.SoundRef] {
			seen[t.SoundRef] = true
			refs = append(refs, t.SoundRef)
		}
	}
	return refs
}
