// Package cli implements the cobra command tree. Commands talk to the
// core exclusively through driving ports; services are injected once at
// startup via SetServices.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/notelens/internal/core/ports/driving"
	"github.com/custodia-labs/notelens/internal/logger"
)

var version = "dev"

// Injected services. Commands check for nil so the binary degrades
// gracefully when wiring fails partway.
var (
	searchService   driving.SearchService
	embedService    driving.EmbedService
	topicService    driving.TopicService
	settingsService driving.SettingsService
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "notelens",
	Short: "Hybrid search over your notes",
	Long: `Notelens indexes a note corpus for hybrid retrieval: full-text
keyword search fused with vector similarity, plus topic maps that
cluster the corpus into a browsable hierarchy.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Services bundles everything the command tree needs.
type Services struct {
	Search   driving.SearchService
	Embed    driving.EmbedService
	Topics   driving.TopicService
	Settings driving.SettingsService
}

// SetServices injects the core services. Must be called before Execute.
func SetServices(s Services) {
	searchService = s.Search
	embedService = s.Embed
	topicService = s.Topics
	settingsService = s.Settings
}

// SetVersion sets the version string printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
