package driven

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// EmbedRole selects the prompt framing for models that distinguish
// queries from documents. Cloud backends that make no distinction
// ignore it.
type EmbedRole string

// Embedding roles.
const (
	// EmbedRoleQuery marks text that will be searched WITH.
	EmbedRoleQuery EmbedRole = "query"

	// EmbedRoleDocument marks text that will be searched FOR.
	EmbedRoleDocument EmbedRole = "document"
)

// EmbeddingService generates vector embeddings from text.
// This is an optional service - when nil, semantic and hybrid search
// are disabled.
//
// Note: This is separate from EmbeddingStore which persists vectors.
// EmbeddingService generates vectors; EmbeddingStore stores them.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string, role EmbedRole) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input in order. More efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string, role EmbedRole) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g. 768, 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Backend returns the backend family serving this model.
	Backend() domain.Backend

	// Ping validates the service is reachable by making a lightweight
	// test request. Used at startup before committing to a search mode.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
