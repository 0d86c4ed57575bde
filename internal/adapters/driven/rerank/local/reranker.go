// Package local provides a reranker adapter for a self-hosted
// reranking model server.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// Default configuration values.
const (
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the local reranker.
type Config struct {
	// BaseURL is the rerank server base URL (required).
	BaseURL string

	// Model is the reranking model name (informational).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Reranker scores query/document relevance via a local model server.
type Reranker struct {
	client  *http.Client
	baseURL string
	model   string
}

// rerankRequest is the rerank server request format.
type rerankRequest struct {
	Queries     []string `json:"queries"`
	Documents   []string `json:"documents"`
	Instruction string   `json:"instruction,omitempty"`
}

// rerankResponse is the rerank server response format. Scores are 1:1
// with the request documents.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewReranker creates a new local reranker.
func NewReranker(cfg Config) (*Reranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rerank: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Reranker{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}, nil
}

// Rerank returns one relevance score per document.
func (r *Reranker) Rerank(ctx context.Context, queries, documents []string, instruction string) ([]float64, error) {
	if len(queries) == 0 || len(documents) == 0 {
		return nil, nil
	}

	reqBody := rerankRequest{
		Queries:     queries,
		Documents:   documents,
		Instruction: instruction,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		r.baseURL+"/rerank",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("rerank error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("rerank error (status %d): %s", resp.StatusCode, string(body))
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rerankResp.Error != "" {
		return nil, fmt.Errorf("rerank error: %s", rerankResp.Error)
	}
	if len(rerankResp.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank: got %d scores for %d documents", len(rerankResp.Scores), len(documents))
	}

	return rerankResp.Scores, nil
}

// Ping validates the server is reachable via its health endpoint.
func (r *Reranker) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("rerank: failed to create ping request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("rerank: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rerank: server returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources.
func (r *Reranker) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
