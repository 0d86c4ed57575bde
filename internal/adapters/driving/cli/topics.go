package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
)

var (
	topicsBuildQuery string
	topicsListLimit  int
	topicsShowJSON   bool
	topicsShowDocs   bool
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Build and browse topic maps",
	Long: `Commands for hierarchical topic maps. A build clusters the
corpus (or a query-scoped subset) by embedding similarity and persists
the resulting tree for browsing.`,
}

var topicsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a topic map",
	Long: `Clusters notes into a topic hierarchy and persists the run.
With --query the corpus is narrowed by search first; otherwise the
whole corpus is clustered.`,
	RunE: runTopicsBuild,
}

var topicsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a topic map",
	Long: `Prints a run's topic tree. Without an argument the most recent
whole-corpus run is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTopicsShow,
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted topic runs",
	RunE:  runTopicsList,
}

var topicsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a persisted topic run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopicsDelete,
}

func init() {
	topicsBuildCmd.Flags().StringVarP(&topicsBuildQuery, "query", "q", "", "narrow the corpus by search before clustering")
	topicsShowCmd.Flags().BoolVar(&topicsShowJSON, "json", false, "output the tree as JSON")
	topicsShowCmd.Flags().BoolVar(&topicsShowDocs, "docs", false, "list member documents under each topic")
	topicsListCmd.Flags().IntVarP(&topicsListLimit, "limit", "n", 20, "maximum number of runs")
	topicsCmd.AddCommand(topicsBuildCmd)
	topicsCmd.AddCommand(topicsShowCmd)
	topicsCmd.AddCommand(topicsListCmd)
	topicsCmd.AddCommand(topicsDeleteCmd)
	rootCmd.AddCommand(topicsCmd)
}

func runTopicsBuild(cmd *cobra.Command, _ []string) error {
	if topicService == nil {
		return errors.New("topic service not configured")
	}

	scope := domain.TopicScope{Query: topicsBuildQuery}
	runID, err := topicService.Build(cmd.Context(), scope)
	if err != nil {
		if errors.Is(err, domain.ErrBuildInProgress) {
			return errors.New("a topic build is already running")
		}
		return fmt.Errorf("topic build failed: %w", err)
	}

	status := topicService.Status()
	cmd.Printf("Topic map built: run %s\n", runID)
	cmd.Printf("  Documents: %d used of %d in scope\n", status.DocsUsable, status.DocsTotal)
	cmd.Printf("View it with 'notelens topics show %s'\n", runID)
	return nil
}

func runTopicsShow(cmd *cobra.Command, args []string) error {
	if topicService == nil {
		return errors.New("topic service not configured")
	}

	var runID string
	if len(args) == 1 {
		runID = args[0]
	} else {
		run, err := topicService.LatestRun(cmd.Context(), domain.TopicScope{})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errors.New("no topic run found; build one with 'notelens topics build'")
			}
			return fmt.Errorf("failed to find latest run: %w", err)
		}
		runID = run.RunID
	}

	nodes, err := topicService.Tree(cmd.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return fmt.Errorf("failed to load topic tree: %w", err)
	}

	if topicsShowJSON {
		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal tree: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	outputTopicTree(cmd, runID, nodes)
	return nil
}

func outputTopicTree(cmd *cobra.Command, runID string, nodes []driving.TopicNode) {
	cmd.Printf("Topic map %s (%d topics)\n\n", runID, len(nodes))

	// Nodes arrive ordered by level then id; index children by parent
	// so the tree prints depth-first from the roots.
	children := make(map[int][]int)
	byID := make(map[int]int, len(nodes))
	var roots []int
	for i := range nodes {
		id := nodes[i].Topic.TopicID
		byID[id] = i
		if nodes[i].Topic.ParentID == nil {
			roots = append(roots, id)
		} else {
			children[*nodes[i].Topic.ParentID] = append(children[*nodes[i].Topic.ParentID], id)
		}
	}

	var walk func(id, depth int)
	walk = func(id, depth int) {
		node := nodes[byID[id]]
		indent := strings.Repeat("  ", depth)

		terms := make([]string, 0, len(node.Terms))
		for _, t := range node.Terms {
			terms = append(terms, t.Term)
		}

		cmd.Printf("%s- %s (%d docs)\n", indent, node.Topic.Label, node.Topic.Size)
		if len(terms) > 0 {
			cmd.Printf("%s  terms: %s\n", indent, strings.Join(terms, ", "))
		}
		if topicsShowDocs {
			for _, d := range node.Docs {
				cmd.Printf("%s  doc %d (%.3f)\n", indent, d.DocID, d.Cos)
			}
		}
		for _, child := range children[id] {
			walk(child, depth+1)
		}
	}

	for _, root := range roots {
		walk(root, 0)
	}
}

func runTopicsList(cmd *cobra.Command, _ []string) error {
	if topicService == nil {
		return errors.New("topic service not configured")
	}

	runs, err := topicService.ListRuns(cmd.Context(), topicsListLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		cmd.Println("No topic runs found.")
		return nil
	}

	cmd.Println("Topic runs (newest first):")
	for _, run := range runs {
		scope := "whole corpus"
		if run.Query != "" {
			scope = fmt.Sprintf("query %q", run.Query)
		}
		cmd.Printf("  %s  %s  %d docs  %s/%s  %s\n",
			run.RunID, run.CreatedAt.Format("2006-01-02 15:04"),
			run.DocCount, run.Backend, run.Model, scope)
	}
	return nil
}

func runTopicsDelete(cmd *cobra.Command, args []string) error {
	if topicService == nil {
		return errors.New("topic service not configured")
	}

	runID := args[0]
	if err := topicService.DeleteRun(cmd.Context(), runID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}

	cmd.Printf("Deleted run %s\n", runID)
	return nil
}
