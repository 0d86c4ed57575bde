package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Manage note embeddings",
	Long:  `Commands for computing and inspecting note vectors.`,
}

var embedBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Compute vectors for notes that lack them",
	Long: `Embeds every note that has no stored vector for the active
backend and model. Runs synchronously; progress is printed as it goes
and 'embed status' can be polled from another terminal.`,
	RunE: runEmbedBackfill,
}

var embedStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vector coverage and backfill progress",
	RunE:  runEmbedStatus,
}

func init() {
	embedCmd.AddCommand(embedBackfillCmd)
	embedCmd.AddCommand(embedStatusCmd)
	rootCmd.AddCommand(embedCmd)
}

func runEmbedBackfill(cmd *cobra.Command, _ []string) error {
	if embedService == nil {
		return errors.New("embed service not configured")
	}

	report, err := embedService.Backfill(cmd.Context())
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	cmd.Printf("Backfill complete for %s/%s\n", report.Ref.Backend, report.Ref.Model)
	cmd.Printf("  Embedded: %d\n", report.Embedded)
	cmd.Printf("  Skipped:  %d\n", report.Skipped)
	cmd.Printf("  Failed:   %d\n", report.Failed)
	cmd.Printf("  Elapsed:  %s\n", report.Elapsed.Round(timeRound))
	return nil
}

func runEmbedStatus(cmd *cobra.Command, _ []string) error {
	if embedService == nil {
		return errors.New("embed service not configured")
	}

	status := embedService.BackfillStatus()
	if status.Running {
		cmd.Printf("Backfill running: %d/%d (%d errors)\n", status.Processed, status.Total, status.Errors)
		if status.ETA > 0 {
			cmd.Printf("  ETA: %s\n", status.ETA.Round(timeRound))
		}
	} else {
		cmd.Println("No backfill running.")
	}

	coverage, err := embedService.Coverage(cmd.Context())
	if err != nil {
		return fmt.Errorf("coverage check failed: %w", err)
	}

	cmd.Println()
	cmd.Printf("Coverage for %s/%s\n", coverage.Ref.Backend, coverage.Ref.Model)
	cmd.Printf("  Notes with vectors: %d/%d\n", coverage.WithVectors, coverage.TotalNotes)
	if len(coverage.Dimensions) > 0 {
		cmd.Printf("  Dimensions: %v\n", coverage.Dimensions)
	}
	ready := "no"
	if coverage.IndexReady {
		ready = "yes"
	}
	cmd.Printf("  ANN index ready: %s\n", ready)
	return nil
}
