package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// errTopicsUnavailable is returned by topic tools when no topic service
// is wired.
var errTopicsUnavailable = errors.New("mcp: topic service is not available")

// SearchInput is the input schema for the search_notes tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to find notes"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Mode  string `json:"mode,omitempty" jsonschema:"retrieval mode: lexical, semantic or hybrid (default: configured mode)"`
}

// SearchOutput is the output schema for the search_notes tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	NoteID  int64   `json:"note_id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Cosine  float64 `json:"cosine,omitempty"`
	Matched int     `json:"matched,omitempty"`
}

// SimilarInput is the input schema for the similar_notes tool.
type SimilarInput struct {
	NoteID int64 `json:"note_id" jsonschema:"the note whose neighbours to find"`
	Limit  int   `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// TopicMapInput is the input schema for the get_topic_map tool.
type TopicMapInput struct {
	RunID string `json:"run_id,omitempty" jsonschema:"the topic run to read (default: latest whole-corpus run)"`
}

// TopicMapOutput is the output schema for the get_topic_map tool.
type TopicMapOutput struct {
	RunID  string            `json:"run_id"`
	Topics []TopicNodeOutput `json:"topics"`
}

// TopicNodeOutput is one topic of a run's tree.
type TopicNodeOutput struct {
	TopicID  int      `json:"topic_id"`
	ParentID *int     `json:"parent_id,omitempty"`
	Label    string   `json:"label"`
	Level    int      `json:"level"`
	Size     int      `json:"size"`
	Terms    []string `json:"terms,omitempty"`
	NoteIDs  []int64  `json:"note_ids,omitempty"`
}

// BuildTopicMapInput is the input schema for the build_topic_map tool.
type BuildTopicMapInput struct {
	Query string `json:"query,omitempty" jsonschema:"narrow the corpus by search before clustering (default: whole corpus)"`
}

// BuildTopicMapOutput is the output schema for the build_topic_map tool.
type BuildTopicMapOutput struct {
	RunID      string `json:"run_id"`
	DocsUsable int    `json:"docs_usable"`
	DocsTotal  int    `json:"docs_total"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_notes",
		Description: "Search across all indexed notes with hybrid keyword and semantic retrieval",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "similar_notes",
		Description: "Find notes similar to an existing note by embedding similarity",
	}, s.handleSimilar)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_topic_map",
		Description: "Read a persisted topic map: a hierarchy of topics clustering the note corpus",
	}, s.handleGetTopicMap)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_topic_map",
		Description: "Cluster the note corpus (or a query-scoped subset) into a topic hierarchy",
	}, s.handleBuildTopicMap)
}

// handleSearch handles the search_notes tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := domain.SearchOptions{Limit: limit}
	if input.Mode != "" {
		mode := domain.SearchMode(input.Mode)
		if !mode.IsValid() {
			return nil, SearchOutput{}, domain.ErrInvalidInput
		}
		opts.Mode = mode
	}

	results, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, searchOutput(results), nil
}

// handleSimilar handles the similar_notes tool invocation.
func (s *Server) handleSimilar(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SimilarInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.ports.Search.Similar(ctx, input.NoteID, limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, searchOutput(results), nil
}

func searchOutput(results []domain.SearchResult) SearchOutput {
	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			NoteID:  results[i].DocID,
			Title:   results[i].Title,
			Score:   results[i].Score,
			Cosine:  results[i].Cosine,
			Matched: results[i].Matched,
		}
	}
	return output
}

// handleGetTopicMap handles the get_topic_map tool invocation.
func (s *Server) handleGetTopicMap(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TopicMapInput,
) (*mcp.CallToolResult, TopicMapOutput, error) {
	if s.ports.Topics == nil {
		return nil, TopicMapOutput{}, errTopicsUnavailable
	}

	runID := input.RunID
	if runID == "" {
		run, err := s.ports.Topics.LatestRun(ctx, domain.TopicScope{})
		if err != nil {
			return nil, TopicMapOutput{}, err
		}
		runID = run.RunID
	}

	nodes, err := s.ports.Topics.Tree(ctx, runID)
	if err != nil {
		return nil, TopicMapOutput{}, err
	}

	output := TopicMapOutput{
		RunID:  runID,
		Topics: make([]TopicNodeOutput, len(nodes)),
	}
	for i := range nodes {
		terms := make([]string, 0, len(nodes[i].Terms))
		for _, t := range nodes[i].Terms {
			terms = append(terms, t.Term)
		}
		noteIDs := make([]int64, 0, len(nodes[i].Docs))
		for _, d := range nodes[i].Docs {
			noteIDs = append(noteIDs, d.DocID)
		}
		output.Topics[i] = TopicNodeOutput{
			TopicID:  nodes[i].Topic.TopicID,
			ParentID: nodes[i].Topic.ParentID,
			Label:    nodes[i].Topic.Label,
			Level:    nodes[i].Topic.Level,
			Size:     nodes[i].Topic.Size,
			Terms:    terms,
			NoteIDs:  noteIDs,
		}
	}

	return nil, output, nil
}

// handleBuildTopicMap handles the build_topic_map tool invocation.
func (s *Server) handleBuildTopicMap(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildTopicMapInput,
) (*mcp.CallToolResult, BuildTopicMapOutput, error) {
	if s.ports.Topics == nil {
		return nil, BuildTopicMapOutput{}, errTopicsUnavailable
	}

	scope := domain.TopicScope{Query: input.Query}
	runID, err := s.ports.Topics.Build(ctx, scope)
	if err != nil {
		return nil, BuildTopicMapOutput{}, err
	}

	status := s.ports.Topics.Status()
	return nil, BuildTopicMapOutput{
		RunID:      runID,
		DocsUsable: status.DocsUsable,
		DocsTotal:  status.DocsTotal,
	}, nil
}
