package domain

import (
	"math"
	"time"
)

// EmbeddingVector is one stored embedding: the dense vector for one
// note in one embedding space. At most one row exists per (DocID, Ref);
// writers overwrite, last write wins.
type EmbeddingVector struct {
	// DocID is the note this vector embeds.
	DocID int64

	// Ref is the embedding space the vector belongs to.
	Ref EmbeddingRef

	// Dim is the vector length.
	Dim int

	// Vec is the dense vector, length Dim.
	Vec []float32

	// Norm is the precomputed L2 norm of Vec.
	Norm float64

	// ContentHash marks the note content the vector was computed from,
	// used to detect stale rows.
	ContentHash string

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time
}

// NewEmbeddingVector builds a vector row, computing Dim and Norm.
func NewEmbeddingVector(docID int64, ref EmbeddingRef, vec []float32, contentHash string) EmbeddingVector {
	return EmbeddingVector{
		DocID:       docID,
		Ref:         ref,
		Dim:         len(vec),
		Vec:         vec,
		Norm:        L2Norm(vec),
		ContentHash: contentHash,
		UpdatedAt:   time.Now(),
	}
}

// L2Norm returns the Euclidean norm of v.
func L2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b []float32) float64 {
	return CosineWithNorms(a, L2Norm(a), b, L2Norm(b))
}

// CosineWithNorms computes cosine similarity reusing precomputed norms.
// Mismatched lengths or zero norms yield 0, never an error: a vector of
// the wrong dimensionality is "no match".
func CosineWithNorms(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
