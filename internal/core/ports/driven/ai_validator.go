package driven

import "github.com/custodia-labs/notelens/internal/core/domain"

// AIConfigValidator validates AI backend configurations.
// Implementations verify that configurations are valid by testing
// connectivity to the underlying services.
type AIConfigValidator interface {
	// ValidateEmbedding validates an embedding configuration by pinging
	// the backend. Returns nil if configuration is valid or not
	// configured.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateRerank validates a rerank configuration by pinging the
	// backend. Returns nil if configuration is valid or not configured.
	ValidateRerank(config *domain.RerankSettings) error
}
