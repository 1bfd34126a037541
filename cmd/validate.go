package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/beatgrid/internal/pattern"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

var validateCmd = &cobra.Command{
	Use:   "validate [pattern-file...]",
	Short: "Check pattern files against the current kit",
	Long: `Check that pattern documents can be imported: the step count, tempo and
track list must be valid, and each track's sound must be in the kit. Tracks
that would be dropped on import are listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		strict, _ := cmd.Flags().GetBool("strict")

		lib := service.NewLibrary(cfg.Kit)
		failed := 0
		for _, path := range args {
			plan, err := planPatternFile(ctx, lib, path)
			if err != nil {
				fmt.Printf("✗ %s: %v\n", path, err)
				failed++
				continue
			}

			status := "✓"
			if len(plan.Dropped) > 0 {
				status = "!"
				if strict {
					failed++
				}
			}
			fmt.Printf("%s %s: %d tracks, %d steps, %g bpm (%s per step)\n",
				status, path, len(plan.Tracks), plan.StepCount, plan.BPM, pattern.StepDuration(plan.BPM))
			for _, d := range plan.Dropped {
				fmt.Printf("    dropped track %d (%s): %s\n", d.Index, d.File, d.Reason)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d pattern files failed validation", failed, len(args))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "treat dropped tracks as failures")
}
