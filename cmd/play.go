package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/patternio"
	"github.com/audiolibrelab/beatgrid/internal/service"
	"github.com/audiolibrelab/beatgrid/internal/tui"
)

var playCmd = &cobra.Command{
	Use:   "play [pattern-file]",
	Short: "Play a pattern in the terminal",
	Long: `Play a pattern through the audio output with an interactive step grid.
Without a pattern file an empty pattern is created; --add puts tracks on it.

Use --headless to play without the grid until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newSession()
		if err != nil {
			return err
		}
		defer svc.Close()

		if len(args) == 1 {
			if err := importPatternFile(ctx, svc, args[0]); err != nil {
				return err
			}
		}

		sounds, _ := cmd.Flags().GetStringSlice("add")
		for _, ref := range sounds {
			if _, err := svc.AddTrack(ctx, ref, pattern.TrackOptions{}); err != nil {
				return err
			}
		}

		if cmd.Flags().Changed("bpm") {
			bpm, _ := cmd.Flags().GetFloat64("bpm")
			if err := svc.SetBPM(bpm); err != nil {
				return err
			}
		}

		if headless, _ := cmd.Flags().GetBool("headless"); headless {
			return playHeadless(ctx, svc)
		}

		model := tui.NewModel(ctx, svc)
		defer model.Close()

		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("terminal UI failed: %w", err)
		}
		return nil
	},
}

// playHeadless plays until ctx is cancelled
func playHeadless(ctx context.Context, svc service.Service) error {
	st := svc.Status()
	if st.Tracks == 0 {
		return fmt.Errorf("nothing to play: the pattern has no tracks")
	}

	unsubscribe := svc.Subscribe(func(step int) {
		slog.Debug("Step", "step", step)
	})
	defer unsubscribe()

	slog.Info("Playing", "tracks", st.Tracks, "steps", st.StepCount, "bpm", st.BPM, "step_duration", st.StepDuration)
	svc.Start(ctx)
	<-ctx.Done()
	svc.Stop(true)

	stats := svc.Status().Playback
	slog.Info("Stopped", "fired", stats.Fired, "misses", stats.Misses, "failures", stats.Failures)
	return nil
}

// importPatternFile loads a pattern document into the session and reports
// dropped tracks
func importPatternFile(ctx context.Context, svc service.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pattern file: %w", err)
	}

	plan, err := svc.ImportData(ctx, data, patternio.FormatFromPath(path))
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}

	for _, d := range plan.Dropped {
		fmt.Fprintf(os.Stderr, "dropped track %d (%s): %s\n", d.Index, d.File, d.Reason)
	}
	slog.Info("Pattern loaded", "file", path, "tracks", len(plan.Tracks), "steps", plan.StepCount, "bpm", plan.BPM)
	return nil
}

func init() {
	playCmd.Flags().Bool("headless", false, "play without the terminal grid until interrupted")
	playCmd.Flags().StringSlice("add", nil, "sounds to add as tracks (e.g. --add kick.wav,snare.wav)")
	playCmd.Flags().Float64("bpm", 0, "tempo (overrides the pattern)")
}
