package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/beatgrid/internal/mix"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/patternio"
	"github.com/audiolibrelab/beatgrid/internal/sample"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

var mixCmd = &cobra.Command{
	Use:   "mix [pattern-file]",
	Short: "Bounce a pattern to a WAV file",
	Long: `Render a pattern offline with the same step timing as live playback and
write it as a 16-bit stereo WAV file. Sounds that ring past the last step are
kept until they end.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patternFile := args[0]
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		loops, _ := cmd.Flags().GetInt("loops")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = strings.TrimSuffix(patternFile, filepath.Ext(patternFile)) + ".wav"
		}

		lib := service.NewLibrary(cfg.Kit)
		snap, err := loadSnapshot(ctx, lib, patternFile)
		if err != nil {
			return err
		}

		fmt.Printf("Mixing pattern: %s\n", patternFile)
		fmt.Printf("Tracks: %d, steps: %d, bpm: %g, loops: %d\n", len(snap.Tracks), snap.StepCount, snap.BPM, loops)

		cache := sample.NewCache(lib, sample.NewFormatDecoder(cfg.Audio.SampleRate))
		mixer := mix.New(cache, cfg.Audio.SampleRate)

		res, err := mixer.Mix(ctx, snap, loops, output)
		if err != nil {
			return fmt.Errorf("mixing failed: %w", err)
		}

		for _, ref := range res.Skipped {
			fmt.Printf("Skipped sound: %s\n", ref)
		}
		fmt.Printf("Mixing completed successfully: %s (%.2fs, %d hits)\n", output, res.Duration(), res.Hits)
		return nil
	},
}

// loadSnapshot reads and validates a pattern document against the kit
func loadSnapshot(ctx context.Context, lib sample.Library, path string) (pattern.Snapshot, error) {
	plan, err := planPatternFile(ctx, lib, path)
	if err != nil {
		return pattern.Snapshot{}, err
	}
	for _, d := range plan.Dropped {
		fmt.Fprintf(os.Stderr, "dropped track %d (%s): %s\n", d.Index, d.File, d.Reason)
	}

	p, err := pattern.New(plan.StepCount, plan.BPM)
	if err != nil {
		return pattern.Snapshot{}, err
	}
	if err := p.Load(plan.StepCount, plan.BPM, plan.Tracks); err != nil {
		return pattern.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// planPatternFile decodes a pattern file and checks it against the kit
// catalog without touching any session
func planPatternFile(ctx context.Context, lib sample.Library, path string) (*patternio.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	raw, err := patternio.Decode(data, patternio.FormatFromPath(path))
	if err != nil {
		return nil, err
	}

	sounds, err := lib.Sounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read sound catalog: %w", err)
	}
	catalog := make(map[string]bool, len(sounds))
	for _, ref := range sounds {
		catalog[ref] = true
	}

	return patternio.Validate(raw, func(ref string) bool { return catalog[ref] })
}

func init() {
	mixCmd.Flags().StringP("output", "o", "", "output WAV file (default: pattern file name with .wav)")
	mixCmd.Flags().IntP("loops", "l", 1, "number of times the pattern is played")
}
