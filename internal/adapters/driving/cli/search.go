package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/logger"
)

var (
	searchLimit  int
	searchOffset int
	searchMode   string
	searchRerank bool
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed notes",
	Long: `Performs hybrid search across all indexed notes.
Combines keyword (BM25) and semantic (vector) retrieval and fuses the
rankings; --mode restricts the query to a single path.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var similarLimit int
var similarJSON bool

var similarCmd = &cobra.Command{
	Use:   "similar [note-id]",
	Short: "Find notes similar to an existing note",
	Long: `Finds the nearest neighbours of a note by its stored vector.
The note must already have an embedding for the active backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().StringVar(&searchMode, "mode", "", "retrieval mode: lexical, semantic or hybrid (default: configured mode)")
	searchCmd.Flags().BoolVar(&searchRerank, "rerank", false, "rerank the head of the result list")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)

	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 10, "maximum number of results")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(similarCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	opts := domain.SearchOptions{
		Limit:  searchLimit,
		Offset: searchOffset,
		Rerank: searchRerank,
	}
	if searchMode != "" {
		mode := domain.SearchMode(searchMode)
		if !mode.IsValid() {
			return fmt.Errorf("invalid mode %q (want lexical, semantic or hybrid)", searchMode)
		}
		opts.Mode = mode
	}

	results, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	docID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid note id %q", args[0])
	}

	results, err := searchService.Similar(cmd.Context(), docID, similarLimit)
	if err != nil {
		if errors.Is(err, domain.ErrNoVector) {
			return fmt.Errorf("note %d has no vector for the active backend; run 'notelens embed backfill' first", docID)
		}
		return fmt.Errorf("similar lookup failed: %w", err)
	}

	if similarJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	if results == nil {
		results = []domain.SearchResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		title := results[i].Title
		if title == "" {
			title = strconv.FormatInt(results[i].DocID, 10)
		}

		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, results[i].Score)
		if logger.IsVerbose() {
			cmd.Printf("      id=%d lex=%.2f cos=%.3f matched=%d\n",
				results[i].DocID, results[i].LexScore, results[i].Cosine, results[i].Matched)
		}
	}
	cmd.Println()

	return nil
}
