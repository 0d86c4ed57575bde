package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

var testRef = domain.EmbeddingRef{Backend: domain.BackendLocal, Model: "nomic-embed-text"}

func TestEmbeddingStore_UpsertAndGet(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	v := domain.NewEmbeddingVector(1, testRef, []float32{1, 0, 0}, "h1")
	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{v}))

	got, err := store.GetVector(ctx, 1, testRef)
	require.NoError(t, err)
	assert.Equal(t, v.Vec, got.Vec)
	assert.Equal(t, 3, got.Dim)

	// Overwrite on conflict.
	v2 := domain.NewEmbeddingVector(1, testRef, []float32{0, 1}, "h2")
	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{v2}))
	got, err = store.GetVector(ctx, 1, testRef)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dim)
	assert.Equal(t, "h2", got.ContentHash)

	_, err = store.GetVector(ctx, 2, testRef)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddingStore_GetVectors_SkipsAbsent(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, testRef, []float32{1}, ""),
		domain.NewEmbeddingVector(3, testRef, []float32{1}, ""),
	}))

	got, err := store.GetVectors(ctx, []int64{1, 2, 3}, testRef)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEmbeddingStore_ScanByDimension(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(2, testRef, []float32{1, 0}, ""),
		domain.NewEmbeddingVector(1, testRef, []float32{0, 1}, ""),
		domain.NewEmbeddingVector(3, testRef, []float32{1, 0, 0}, ""),
	}))

	rows, err := store.ScanByDimension(ctx, testRef, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].DocID)
	assert.Equal(t, int64(2), rows[1].DocID)

	dims, err := store.Dimensions(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, dims)
}

func TestEmbeddingStore_TruncateDimension(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, testRef, []float32{3, 4, 12}, ""),
		domain.NewEmbeddingVector(2, testRef, []float32{1, 0}, ""),
	}))

	n, err := store.TruncateDimension(ctx, testRef, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetVector(ctx, 1, testRef)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dim)
	assert.InDelta(t, 5.0, got.Norm, 1e-9)
}

func TestEmbeddingStore_MissingIDsAndCount(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, testRef, []float32{1}, ""),
	}))

	missing, err := store.MissingIDs(ctx, []int64{1, 2, 3}, testRef)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, missing)

	count, err := store.CountByRef(ctx, testRef)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	otherRef := domain.EmbeddingRef{Backend: domain.BackendOpenAI, Model: "text-embedding-3-small"}
	count, err = store.CountByRef(ctx, otherRef)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEmbeddingStore_DeleteVectors(t *testing.T) {
	store := NewEmbeddingStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, testRef, []float32{1}, ""),
		domain.NewEmbeddingVector(2, testRef, []float32{1}, ""),
	}))

	require.NoError(t, store.DeleteVectors(ctx, []int64{1}, testRef))

	_, err := store.GetVector(ctx, 1, testRef)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetVector(ctx, 2, testRef)
	assert.NoError(t, err)
}
