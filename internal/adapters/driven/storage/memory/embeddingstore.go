package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Ensure EmbeddingStore implements the interface.
var _ driven.EmbeddingStore = (*EmbeddingStore)(nil)

type vectorKey struct {
	docID int64
	ref   domain.EmbeddingRef
}

// EmbeddingStore is an in-memory implementation of driven.EmbeddingStore.
type EmbeddingStore struct {
	mu      sync.RWMutex
	vectors map[vectorKey]domain.EmbeddingVector
}

// NewEmbeddingStore creates a new in-memory embedding store.
func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{
		vectors: make(map[vectorKey]domain.EmbeddingVector),
	}
}

// UpsertVectors writes rows, overwriting on key conflict.
func (s *EmbeddingStore) UpsertVectors(_ context.Context, entries []domain.EmbeddingVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.vectors[vectorKey{docID: e.DocID, ref: e.Ref}] = e
	}
	return nil
}

// GetVector retrieves one row.
func (s *EmbeddingStore) GetVector(_ context.Context, docID int64, ref domain.EmbeddingRef) (*domain.EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[vectorKey{docID: docID, ref: ref}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

// GetVectors retrieves rows for the given ids, skipping absent ones.
func (s *EmbeddingStore) GetVectors(_ context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]domain.EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.EmbeddingVector
	for _, id := range docIDs {
		if v, ok := s.vectors[vectorKey{docID: id, ref: ref}]; ok {
			result = append(result, v)
		}
	}
	return result, nil
}

// ScanByDimension returns all rows of one dimensionality.
func (s *EmbeddingStore) ScanByDimension(_ context.Context, ref domain.EmbeddingRef, dim int) ([]domain.EmbeddingVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.EmbeddingVector
	for k, v := range s.vectors {
		if k.ref == ref && v.Dim == dim {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DocID < result[j].DocID })
	return result, nil
}

// TruncateDimension re-slices stored vectors to at most maxDim.
func (s *EmbeddingStore) TruncateDimension(_ context.Context, ref domain.EmbeddingRef, maxDim int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rewritten := 0
	for k, v := range s.vectors {
		if k.ref != ref || v.Dim <= maxDim {
			continue
		}
		v.Vec = v.Vec[:maxDim]
		v.Dim = maxDim
		v.Norm = domain.L2Norm(v.Vec)
		s.vectors[k] = v
		rewritten++
	}
	return rewritten, nil
}

// CountByRef returns the row count for one embedding space.
func (s *EmbeddingStore) CountByRef(_ context.Context, ref domain.EmbeddingRef) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for k := range s.vectors {
		if k.ref == ref {
			count++
		}
	}
	return count, nil
}

// Dimensions returns the distinct vector lengths for one space, ascending.
func (s *EmbeddingStore) Dimensions(_ context.Context, ref domain.EmbeddingRef) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]bool)
	for k, v := range s.vectors {
		if k.ref == ref {
			seen[v.Dim] = true
		}
	}
	dims := make([]int, 0, len(seen))
	for d := range seen {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims, nil
}

// MissingIDs filters docIDs down to those without a stored vector.
func (s *EmbeddingStore) MissingIDs(_ context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []int64
	for _, id := range docIDs {
		if _, ok := s.vectors[vectorKey{docID: id, ref: ref}]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// DeleteVectors removes rows for the given ids.
func (s *EmbeddingStore) DeleteVectors(_ context.Context, docIDs []int64, ref domain.EmbeddingRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range docIDs {
		delete(s.vectors, vectorKey{docID: id, ref: ref})
	}
	return nil
}
