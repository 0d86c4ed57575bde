package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/notelens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// blockingEmbedder parks inside EmbedBatch until released.
type blockingEmbedder struct {
	mockEmbedder
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string, role driven.EmbedRole) ([][]float32, error) {
	close(b.started)
	<-b.release
	return b.mockEmbedder.EmbedBatch(ctx, texts, role)
}

func setupEmbedService(t *testing.T) (*EmbedService, *memory.NoteStore, *memory.EmbeddingStore, *mockEmbedder) {
	t.Helper()
	notes := memory.NewNoteStore()
	vectors := memory.NewEmbeddingStore()
	embedder := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := NewEmbedService(notes, vectors, embedder, newTestSettings(t))
	return svc, notes, vectors, embedder
}

func TestBackfill_NoEmbedder(t *testing.T) {
	svc := NewEmbedService(memory.NewNoteStore(), memory.NewEmbeddingStore(), nil, newTestSettings(t))

	_, err := svc.Backfill(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestBackfill_EmbedsMissing(t *testing.T) {
	svc, notes, vectors, _ := setupEmbedService(t)
	ctx := context.Background()

	notes.Put(domain.Note{ID: 1, Fields: []string{"atp synthesis"}})
	notes.Put(domain.Note{ID: 2, Fields: []string{"already covered"}})
	notes.Put(domain.Note{ID: 3, Fields: []string{"krebs cycle"}})
	require.NoError(t, vectors.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(2, searchTestRef, []float32{1, 0}, "old"),
	}))

	report, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, searchTestRef, report.Ref)
	assert.Equal(t, 2, report.Embedded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Skipped)

	// The new vectors carry a hash of the text they embedded.
	note, err := notes.GetNote(ctx, 1)
	require.NoError(t, err)
	row, err := vectors.GetVector(ctx, 1, searchTestRef)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, row.Vec)
	assert.Equal(t, contentHash(noteText(*note)), row.ContentHash)

	_, err = vectors.GetVector(ctx, 3, searchTestRef)
	assert.NoError(t, err)

	// The covered note kept its original vector.
	row, err = vectors.GetVector(ctx, 2, searchTestRef)
	require.NoError(t, err)
	assert.Equal(t, "old", row.ContentHash)

	st := svc.BackfillStatus()
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Processed)
	assert.Zero(t, st.Errors)
}

func TestBackfill_SkipsEmptyText(t *testing.T) {
	svc, notes, vectors, _ := setupEmbedService(t)
	ctx := context.Background()

	notes.Put(domain.Note{ID: 1, Fields: []string{"<div><br></div>"}})
	notes.Put(domain.Note{ID: 2, Fields: []string{"real content"}})

	report, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, 1, report.Skipped)

	_, err = vectors.GetVector(ctx, 1, searchTestRef)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackfill_ProviderFailure(t *testing.T) {
	svc, notes, vectors, embedder := setupEmbedService(t)
	ctx := context.Background()

	notes.Put(domain.Note{ID: 1, Fields: []string{"one"}})
	notes.Put(domain.Note{ID: 2, Fields: []string{"two"}})
	embedder.batchErr = errors.New("provider down")

	report, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Embedded)
	assert.Equal(t, 2, report.Failed)

	n, err := vectors.CountByRef(ctx, searchTestRef)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, svc.BackfillStatus().Errors)
}

func TestBackfill_NothingMissing(t *testing.T) {
	svc, notes, vectors, embedder := setupEmbedService(t)
	ctx := context.Background()

	notes.Put(domain.Note{ID: 1, Fields: []string{"covered"}})
	require.NoError(t, vectors.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, searchTestRef, []float32{1, 0}, ""),
	}))

	report, err := svc.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Embedded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, embedder.calls)
}

func TestBackfill_Exclusive(t *testing.T) {
	notes := memory.NewNoteStore()
	vectors := memory.NewEmbeddingStore()
	notes.Put(domain.Note{ID: 1, Fields: []string{"pending"}})

	embedder := &blockingEmbedder{
		mockEmbedder: mockEmbedder{vec: []float32{1, 0}},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := NewEmbedService(notes, vectors, embedder, newTestSettings(t))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Backfill(context.Background())
		done <- err
	}()

	<-embedder.started
	assert.True(t, svc.BackfillStatus().Running)

	_, err := svc.Backfill(context.Background())
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	close(embedder.release)
	require.NoError(t, <-done)
	assert.False(t, svc.BackfillStatus().Running)
}

func TestCoverage(t *testing.T) {
	notes := memory.NewNoteStore()
	vectors := memory.NewEmbeddingStore()
	embedder := &mockEmbedder{vec: []float32{1, 0, 0, 0}}
	svc := NewEmbedService(notes, vectors, embedder, newTestSettings(t))
	ctx := context.Background()

	notes.Put(domain.Note{ID: 1, Fields: []string{"a"}})
	notes.Put(domain.Note{ID: 2, Fields: []string{"b"}})
	notes.Put(domain.Note{ID: 3, Fields: []string{"c"}})
	require.NoError(t, vectors.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, searchTestRef, []float32{1, 0}, ""),
		domain.NewEmbeddingVector(2, searchTestRef, []float32{0, 1, 0, 0}, ""),
	}))
	svc.SetAnnIndex(&mockAnn{ready: map[int]bool{4: true}})

	report, err := svc.Coverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, searchTestRef, report.Ref)
	assert.Equal(t, 3, report.TotalNotes)
	assert.Equal(t, 2, report.WithVectors)
	assert.Equal(t, []int{2, 4}, report.Dimensions)

	// The backend's own dimension is among the stored ones, so index
	// readiness is judged against it.
	assert.True(t, report.IndexReady)
}

func TestCoverage_NoBackend(t *testing.T) {
	svc := NewEmbedService(memory.NewNoteStore(), memory.NewEmbeddingStore(), nil, newTestSettings(t))

	_, err := svc.Coverage(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestBuildIndex(t *testing.T) {
	svc, _, vectors, _ := setupEmbedService(t)
	ctx := context.Background()

	require.NoError(t, vectors.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, searchTestRef, []float32{1, 0}, ""),
		domain.NewEmbeddingVector(2, searchTestRef, []float32{0, 1}, ""),
		domain.NewEmbeddingVector(3, searchTestRef, []float32{1, 0, 0, 0}, ""),
	}))

	ann := &mockAnn{}
	svc.SetAnnIndex(ann)

	// The attached backend embeds into 2 dimensions, so the build
	// covers the dim-2 rows only.
	require.NoError(t, svc.BuildIndex(ctx))
	assert.Equal(t, 2, ann.builtDim)
	assert.Equal(t, 2, ann.builtRows)
}

func TestBuildIndex_NoAnnConfigured(t *testing.T) {
	svc, _, _, _ := setupEmbedService(t)

	err := svc.BuildIndex(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildIndex_NoVectors(t *testing.T) {
	svc, _, _, _ := setupEmbedService(t)
	svc.SetAnnIndex(&mockAnn{})

	err := svc.BuildIndex(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoVector)
}

func TestBuildIndex_AnnFailure(t *testing.T) {
	svc, _, vectors, _ := setupEmbedService(t)
	ctx := context.Background()

	require.NoError(t, vectors.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, searchTestRef, []float32{1, 0}, ""),
	}))
	boom := errors.New("disk full")
	svc.SetAnnIndex(&mockAnn{buildErr: boom})

	err := svc.BuildIndex(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestIndexStatus(t *testing.T) {
	svc, _, _, _ := setupEmbedService(t)

	// Without an index everything is zero.
	assert.Zero(t, svc.IndexStatus())

	started := time.Now()
	svc.SetAnnIndex(&mockAnn{status: driven.AnnBuildStatus{
		Running:   true,
		Dim:       768,
		Processed: 40,
		Total:     100,
		StartedAt: started,
		ETA:       3 * time.Second,
	}})

	st := svc.IndexStatus()
	assert.True(t, st.Running)
	assert.Equal(t, 768, st.Dim)
	assert.Equal(t, 40, st.Processed)
	assert.Equal(t, 100, st.Total)
	assert.Equal(t, started, st.StartedAt)
	assert.Equal(t, 3*time.Second, st.ETA)
}

func TestPrimaryDimension(t *testing.T) {
	svc, _, _, _ := setupEmbedService(t) // embedder dims = 2

	assert.Equal(t, 2, svc.primaryDimension([]int{2, 4}))
	assert.Equal(t, 4, svc.primaryDimension([]int{3, 4}))
	assert.Zero(t, svc.primaryDimension(nil))

	// Without a backend the largest stored dimension wins.
	svc.embedder = nil
	assert.Equal(t, 4, svc.primaryDimension([]int{2, 4}))
}

func TestContentHash(t *testing.T) {
	a := contentHash("atp synthesis")
	b := contentHash("atp synthesis")
	c := contentHash("krebs cycle")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
