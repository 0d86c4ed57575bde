package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// EmbedService manages vector coverage for the active embedding space:
// backfilling missing vectors and building the ANN index over them.
type EmbedService interface {
	// Backfill computes and stores vectors for notes that lack them.
	// It runs synchronously; progress is pollable from another
	// goroutine via BackfillStatus.
	Backfill(ctx context.Context) (*BackfillReport, error)

	// BackfillStatus reports progress of the running or most recent
	// backfill.
	BackfillStatus() BackfillStatus

	// Coverage reports how much of the corpus has vectors.
	Coverage(ctx context.Context) (*CoverageReport, error)

	// BuildIndex constructs and persists the ANN index for the active
	// embedding space. Dimension is taken from the stored vectors.
	BuildIndex(ctx context.Context) error

	// IndexStatus reports progress of the running or most recent
	// index build.
	IndexStatus() IndexBuildStatus
}

// IndexBuildStatus is pollable progress for an ANN index build.
type IndexBuildStatus struct {
	// Running indicates a build is in progress.
	Running bool

	// Dim is the dimension being built.
	Dim int

	// Processed, Errors and Total count vectors.
	Processed int
	Errors    int
	Total     int

	// StartedAt is when the build began.
	StartedAt time.Time

	// ETA extrapolates remaining time from throughput so far.
	ETA time.Duration
}

// BackfillStatus is pollable progress for a running backfill.
type BackfillStatus struct {
	// Running indicates a backfill is in progress.
	Running bool

	// Processed, Errors and Total count notes.
	Processed int
	Errors    int
	Total     int

	// StartedAt is when the backfill began.
	StartedAt time.Time

	// ETA extrapolates remaining time from throughput so far.
	ETA time.Duration
}

// BackfillReport summarises a finished backfill.
type BackfillReport struct {
	// Ref is the embedding space that was filled.
	Ref domain.EmbeddingRef

	// Embedded is how many vectors were written; Failed is how many
	// notes errored; Skipped is how many had empty text.
	Embedded int
	Failed   int
	Skipped  int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// CoverageReport describes vector coverage of the corpus.
type CoverageReport struct {
	// Ref is the active embedding space.
	Ref domain.EmbeddingRef

	// TotalNotes is the corpus size; WithVectors is how many notes
	// have a stored vector for Ref.
	TotalNotes  int
	WithVectors int

	// Dimensions lists the distinct vector lengths present for Ref.
	Dimensions []int

	// IndexReady reports whether an ANN index exists for the primary
	// dimension.
	IndexReady bool
}
