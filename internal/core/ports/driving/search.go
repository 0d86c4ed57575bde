package driving

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// SearchService provides retrieval capabilities to external actors.
type SearchService interface {
	// Search ranks notes against a free-text query. Depending on the
	// mode, lexical and vector retrieval run independently and merge
	// through rank fusion; failures of one path degrade that path to
	// empty rather than failing the query.
	Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Similar returns the nearest neighbours of an existing note by
	// its stored vector. Returns wrapped domain.ErrNoVector when the
	// note has no vector for the active backend and model.
	Similar(ctx context.Context, docID int64, limit int) ([]domain.SearchResult, error)
}
