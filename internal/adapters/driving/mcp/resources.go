package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for Notelens resources.
	uriScheme = "notelens://"

	// runListLimit caps how many runs the topics resource lists.
	runListLimit = 50
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing topic runs.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "topics",
		Name:        "topic-runs",
		Description: "List of persisted topic map runs, newest first",
		MIMEType:    "application/json",
	}, s.handleTopicRunsResource)

	// Template for a run's topic tree.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "topics/{runId}",
		Name:        "topic-tree",
		Description: "Topic hierarchy of a specific run",
		MIMEType:    "application/json",
	}, s.handleTopicTreeResource)
}

// handleTopicRunsResource returns the list of persisted topic runs.
func (s *Server) handleTopicRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Topics == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	runs, err := s.ports.Topics.ListRuns(ctx, runListLimit)
	if err != nil {
		return nil, fmt.Errorf("listing topic runs: %w", err)
	}

	// Build simplified run list.
	type runInfo struct {
		RunID     string `json:"run_id"`
		Query     string `json:"query,omitempty"`
		DocCount  int    `json:"doc_count"`
		Backend   string `json:"backend"`
		Model     string `json:"model"`
		CreatedAt string `json:"created_at"`
	}

	infos := make([]runInfo, len(runs))
	for i, run := range runs {
		infos[i] = runInfo{
			RunID:     run.RunID,
			Query:     run.Query,
			DocCount:  run.DocCount,
			Backend:   run.Backend.String(),
			Model:     run.Model,
			CreatedAt: run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling topic runs: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleTopicTreeResource returns the topic tree of a specific run.
func (s *Server) handleTopicTreeResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Topics == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract runId from URI: notelens://topics/{runId}
	runID := extractRunID(req.Params.URI)
	if runID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	nodes, err := s.ports.Topics.Tree(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("loading topic tree: %w", err)
	}

	// Build simplified tree.
	type topicInfo struct {
		TopicID  int      `json:"topic_id"`
		ParentID *int     `json:"parent_id,omitempty"`
		Label    string   `json:"label"`
		Level    int      `json:"level"`
		Size     int      `json:"size"`
		Terms    []string `json:"terms,omitempty"`
	}

	infos := make([]topicInfo, len(nodes))
	for i := range nodes {
		terms := make([]string, 0, len(nodes[i].Terms))
		for _, t := range nodes[i].Terms {
			terms = append(terms, t.Term)
		}
		infos[i] = topicInfo{
			TopicID:  nodes[i].Topic.TopicID,
			ParentID: nodes[i].Topic.ParentID,
			Label:    nodes[i].Topic.Label,
			Level:    nodes[i].Topic.Level,
			Size:     nodes[i].Topic.Size,
			Terms:    terms,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling topic tree: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractRunID extracts the run ID from a URI like notelens://topics/{runId}.
func extractRunID(uri string) string {
	const prefix = uriScheme + "topics/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
