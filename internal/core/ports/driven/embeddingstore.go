package driven

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// EmbeddingStore persists dense vectors keyed by (note, backend, model).
// Writes are upsert-oriented: concurrent writers to the same key resolve
// last-write-wins, and readers never block writers.
type EmbeddingStore interface {
	// UpsertVectors writes rows, overwriting on key conflict.
	UpsertVectors(ctx context.Context, entries []domain.EmbeddingVector) error

	// GetVector retrieves one row, domain.ErrNotFound when absent.
	GetVector(ctx context.Context, docID int64, ref domain.EmbeddingRef) (*domain.EmbeddingVector, error)

	// GetVectors retrieves rows for the given ids, silently skipping
	// absent ones. Implementations chunk large id sets internally.
	GetVectors(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]domain.EmbeddingVector, error)

	// ScanByDimension returns all rows of one dimensionality. Rows of
	// any other dimensionality are excluded, never an error.
	ScanByDimension(ctx context.Context, ref domain.EmbeddingRef, dim int) ([]domain.EmbeddingVector, error)

	// TruncateDimension re-slices stored vectors to at most maxDim and
	// recomputes norms. Returns the number of rows rewritten.
	TruncateDimension(ctx context.Context, ref domain.EmbeddingRef, maxDim int) (int, error)

	// CountByRef returns the row count for one embedding space.
	CountByRef(ctx context.Context, ref domain.EmbeddingRef) (int, error)

	// Dimensions returns the distinct vector lengths present for one
	// embedding space, ascending.
	Dimensions(ctx context.Context, ref domain.EmbeddingRef) ([]int, error)

	// MissingIDs filters docIDs down to those without a stored vector.
	MissingIDs(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]int64, error)

	// DeleteVectors removes rows for the given ids.
	DeleteVectors(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) error
}
