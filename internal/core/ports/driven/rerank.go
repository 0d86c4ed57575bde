package driven

import "context"

// Reranker scores documents against queries through an external
// reranking model. This is an optional service - when nil, fused
// result order stands.
type Reranker interface {
	// Rerank returns one relevance score per document, 1:1 with
	// documents, higher meaning more relevant. The instruction steers
	// the model's notion of relevance.
	Rerank(ctx context.Context, queries, documents []string, instruction string) ([]float64, error)

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
