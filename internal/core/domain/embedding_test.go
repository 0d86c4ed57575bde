package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEmbeddingVector tests that Dim and Norm are derived from the vector
func TestNewEmbeddingVector(t *testing.T) {
	ref := EmbeddingRef{Backend: BackendLocal, Model: "nomic-embed-text-v1.5"}
	v := NewEmbeddingVector(42, ref, []float32{3, 4}, "abc123")

	assert.Equal(t, int64(42), v.DocID)
	assert.Equal(t, ref, v.Ref)
	assert.Equal(t, 2, v.Dim)
	assert.InDelta(t, 5.0, v.Norm, 1e-9)
	assert.Equal(t, "abc123", v.ContentHash)
	assert.False(t, v.UpdatedAt.IsZero())
}

// TestL2Norm tests norm computation including the zero vector
func TestL2Norm(t *testing.T) {
	assert.InDelta(t, 0, L2Norm(nil), 1e-12)
	assert.InDelta(t, 0, L2Norm([]float32{0, 0, 0}), 1e-12)
	assert.InDelta(t, 1, L2Norm([]float32{1}), 1e-12)
	assert.InDelta(t, math.Sqrt(2), L2Norm([]float32{1, 1}), 1e-9)
}

// TestCosine_Symmetry tests cosine(a,b) == cosine(b,a)
func TestCosine_Symmetry(t *testing.T) {
	a := []float32{0.2, -0.5, 0.9, 0.1}
	b := []float32{-0.3, 0.8, 0.4, 0.7}

	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
}

// TestCosine_SelfSimilarity tests cosine(a,a) ~= 1
func TestCosine_SelfSimilarity(t *testing.T) {
	a := []float32{0.12, 3.4, -2.2, 0.001, 7}
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-6)
}

// TestCosine_Bounds tests that cosine stays within [-1,1]
func TestCosine_Bounds(t *testing.T) {
	a := []float32{1, 0}
	tests := []struct {
		name string
		b    []float32
		want float64
	}{
		{"identical direction", []float32{2, 0}, 1},
		{"orthogonal", []float32{0, 5}, 0},
		{"opposite direction", []float32{-3, 0}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 1.0+1e-9)
			assert.GreaterOrEqual(t, got, -1.0-1e-9)
		})
	}
}

// TestCosine_DimensionMismatch tests that mismatched lengths yield 0, not a panic
func TestCosine_DimensionMismatch(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{1, 2, 3}

	require.NotPanics(t, func() {
		assert.Equal(t, 0.0, Cosine(a, b))
	})
}

// TestCosine_ZeroVector tests that zero-norm inputs yield 0
func TestCosine_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

// TestCosineWithNorms_ReusesNorms tests agreement with the plain form
func TestCosineWithNorms_ReusesNorms(t *testing.T) {
	a := []float32{0.1, 0.9, -0.4}
	b := []float32{0.7, -0.2, 0.5}

	want := Cosine(a, b)
	got := CosineWithNorms(a, L2Norm(a), b, L2Norm(b))
	assert.InDelta(t, want, got, 1e-12)
}
