package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// timeRound is the display granularity for durations.
const timeRound = time.Second

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the ANN index",
	Long: `Commands for the approximate-nearest-neighbour index. Vector
search works without it via exact scan; the index trades a build step
for much faster queries on large corpora.`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the ANN index from stored vectors",
	RunE:  runIndexBuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ANN index build progress",
	RunE:  runIndexStatus,
}

func init() {
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(cmd *cobra.Command, _ []string) error {
	if embedService == nil {
		return errors.New("embed service not configured")
	}

	if err := embedService.BuildIndex(cmd.Context()); err != nil {
		if errors.Is(err, domain.ErrBuildInProgress) {
			return errors.New("an index build is already running")
		}
		return fmt.Errorf("index build failed: %w", err)
	}

	status := embedService.IndexStatus()
	cmd.Printf("Index built: %d vectors, dimension %d (%d errors)\n",
		status.Processed, status.Dim, status.Errors)
	return nil
}

func runIndexStatus(cmd *cobra.Command, _ []string) error {
	if embedService == nil {
		return errors.New("embed service not configured")
	}

	status := embedService.IndexStatus()
	if !status.Running {
		if status.Total == 0 {
			cmd.Println("No index build has run.")
			return nil
		}
		cmd.Printf("Last build: %d/%d vectors, dimension %d (%d errors)\n",
			status.Processed, status.Total, status.Dim, status.Errors)
		return nil
	}

	cmd.Printf("Build running: %d/%d vectors, dimension %d (%d errors)\n",
		status.Processed, status.Total, status.Dim, status.Errors)
	if status.ETA > 0 {
		cmd.Printf("  ETA: %s\n", status.ETA.Round(timeRound))
	}
	return nil
}
