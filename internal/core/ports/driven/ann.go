package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// AnnIndex provides approximate nearest-neighbour search over one
// embedding space, persisted per dimension. ANN is a pure latency
// optimisation: a missing index is not an error condition for callers,
// they fall back to the exact scan path.
type AnnIndex interface {
	// Build constructs and persists the index for one dimension from
	// the given vectors, replacing any previous file. A build runs to
	// completion once started; progress is pollable via BuildStatus.
	Build(ctx context.Context, dim int, vectors []domain.EmbeddingVector) error

	// BuildStatus reports progress of the running or most recent build.
	BuildStatus() AnnBuildStatus

	// Search queries the persisted index for len(query) dimensions,
	// returning up to k hits. breadth tunes recall versus latency for
	// this one query; <=0 uses the default. Returns wrapped
	// domain.ErrNotFound when no index exists for the dimension.
	Search(ctx context.Context, query []float32, k, breadth int) ([]AnnHit, error)

	// Ready reports whether a persisted index exists for dim.
	Ready(dim int) bool

	// Close releases cached index handles.
	Close() error
}

// AnnHit is one approximate-neighbour result.
type AnnHit struct {
	// DocID is the matched note.
	DocID int64

	// Similarity is 1 - distance in cosine space.
	Similarity float64
}

// AnnBuildStatus is pollable coarse progress for an index build.
type AnnBuildStatus struct {
	// Running indicates a build is in progress.
	Running bool

	// Dim is the dimension being built.
	Dim int

	// Processed and Total count inserted vectors; Errors counts
	// vectors that could not be inserted.
	Processed int
	Total     int
	Errors    int

	// StartedAt is when the build began.
	StartedAt time.Time

	// ETA extrapolates remaining time from throughput so far.
	ETA time.Duration
}
