package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure search mode, the embedding backend, and
other options.

Use subcommands to change specific settings or run the interactive
setup.`,
	RunE: runSettingsGet,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show current settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a single setting",
	Long: `Set one setting by key.

Supported keys:
  mode               search mode: lexical, semantic or hybrid
  search.limit       default result count
  rerank.enabled     true or false
  rerank.base_url    rerank service endpoint
  rerank.model       reranking model name
  rerank.top_n       how many head results the reranker sees
  ann.enabled        true or false
  ann.breadth        ANN query breadth (recall/latency trade-off)
  topics.python      interpreter for the clustering script
  topics.script      path to the clustering script
  topics.max_docs    document cap per topic build`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup",
	Long:  `Configure search mode and the embedding backend step by step.`,
	RunE:  runSettingsSetup,
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsSetupCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsGet(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Search]")
	cmd.Printf("  Mode: %s\n", settings.Search.Mode.Description())
	cmd.Printf("  Limit: %d\n", settings.Search.Limit)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Backend: %s\n", settings.Embedding.Backend.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.Backend.IsLocal() {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Backend.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !settings.Embedding.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	cmd.Println("[Rerank]")
	if settings.Rerank.Enabled {
		cmd.Printf("  Enabled: yes\n")
		cmd.Printf("  Base URL: %s\n", settings.Rerank.BaseURL)
		cmd.Printf("  Model: %s\n", settings.Rerank.Model)
		cmd.Printf("  Top N: %d\n", settings.Rerank.TopN)
	} else {
		cmd.Printf("  Enabled: no\n")
	}
	cmd.Println()

	cmd.Println("[ANN Index]")
	if settings.Ann.Enabled {
		cmd.Printf("  Enabled: yes\n")
		cmd.Printf("  Breadth: %d\n", settings.Ann.Breadth)
	} else {
		cmd.Printf("  Enabled: no\n")
	}
	cmd.Println()

	cmd.Println("[Topics]")
	cmd.Printf("  Python: %s\n", settings.Topics.Python)
	cmd.Printf("  Script: %s\n", settings.Topics.Script)
	cmd.Printf("  Max docs: %d\n", settings.Topics.MaxDocs)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'notelens settings setup' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]

	if key == "mode" {
		mode := domain.SearchMode(value)
		if !mode.IsValid() {
			return fmt.Errorf("invalid mode %q (want lexical, semantic or hybrid)", value)
		}
		if err := settingsService.SetSearchMode(mode); err != nil {
			return fmt.Errorf("failed to set search mode: %w", err)
		}
		cmd.Printf("Search mode set to: %s\n", mode.Description())
		if mode.RequiresEmbedding() && !embeddingConfigured() {
			cmd.Println("\nNote: this mode requires an embedding backend.")
			cmd.Println("Run 'notelens settings setup' to configure one.")
		}
		return nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	switch key {
	case "search.limit":
		settings.Search.Limit, err = parsePositiveInt(value)
	case "rerank.enabled":
		settings.Rerank.Enabled, err = strconv.ParseBool(value)
	case "rerank.base_url":
		settings.Rerank.BaseURL = value
	case "rerank.model":
		settings.Rerank.Model = value
	case "rerank.top_n":
		settings.Rerank.TopN, err = parsePositiveInt(value)
	case "ann.enabled":
		settings.Ann.Enabled, err = strconv.ParseBool(value)
	case "ann.breadth":
		settings.Ann.Breadth, err = parsePositiveInt(value)
	case "topics.python":
		settings.Topics.Python = value
	case "topics.script":
		settings.Topics.Script = value
	case "topics.max_docs":
		settings.Topics.MaxDocs, err = parsePositiveInt(value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsSetup(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cmd.Println("Notelens Setup")
	cmd.Println("==============")
	cmd.Println()

	reader := bufio.NewReader(os.Stdin)

	// Step 1: Search Mode
	cmd.Println("Step 1: Select Search Mode")
	cmd.Println("--------------------------")
	modes := domain.AllSearchModes()
	for i, mode := range modes {
		cmd.Printf("  %d. %s\n", i+1, mode.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	modeIdx := parseChoice(input, len(modes), 1)
	selectedMode := modes[modeIdx-1]

	if err := settingsService.SetSearchMode(selectedMode); err != nil {
		return fmt.Errorf("failed to set search mode: %w", err)
	}
	cmd.Printf("Set search mode to: %s\n\n", selectedMode.Description())

	// Step 2: Configure Embedding Backend (if needed)
	if settingsService.RequiresEmbedding() {
		cmd.Println("Step 2: Configure Embedding Backend")
		cmd.Println("-----------------------------------")
		cmd.Println("Your search mode requires vectors. Please configure an embedding backend.")
		cmd.Println()

		if err := configureEmbeddingBackend(cmd, reader); err != nil {
			return err
		}
	} else {
		cmd.Println("Step 2: Embedding Backend (skipped)")
		cmd.Println("-----------------------------------")
		cmd.Println("Not required for lexical search mode.")
		cmd.Println()
	}

	// Final validation
	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func configureEmbeddingBackend(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Backend")
	backends := domain.AllBackends()
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(backends), 1)
	selectedBackend := backends[idx-1]

	// Get model
	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedBackend]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get base URL for local backends
	var baseURL string
	if selectedBackend.IsLocal() {
		cmd.Print("Enter base URL (e.g. http://localhost:8420): ")
		baseURL = readLine(reader)
		if baseURL == "" {
			return errors.New("base URL is required for the local backend")
		}
	}

	// Get API key if needed
	var apiKey string
	if selectedBackend.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword()
		cmd.Println()
		if apiKey == "" {
			return errors.New("API key is required for this backend")
		}
	}

	if err := settingsService.SetEmbeddingBackend(selectedBackend, model, baseURL, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding backend: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding backend configured: %s (%s)\n\n", selectedBackend.Description(), model)
	return nil
}

// Helper functions.

func embeddingConfigured() bool {
	settings, err := settingsService.Get()
	return err == nil && settings != nil && settings.Embedding.IsConfigured()
}

func parsePositiveInt(input string) (int, error) {
	val, err := strconv.Atoi(input)
	if err != nil {
		return 0, err
	}
	if val <= 0 {
		return 0, errors.New("must be positive")
	}
	return val, nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read password without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
