package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// embeddingStore implements driven.EmbeddingStore. Vectors are stored
// as raw little-endian float32 blobs with their precomputed L2 norm, at
// most one row per (doc, backend, model).
type embeddingStore struct {
	store *Store
}

var _ driven.EmbeddingStore = (*embeddingStore)(nil)

// UpsertVectors writes rows, overwriting on key conflict.
func (s *embeddingStore) UpsertVectors(ctx context.Context, entries []domain.EmbeddingVector) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (doc_id, backend, model, dim, vec, norm, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, backend, model) DO UPDATE SET
			dim = excluded.dim,
			vec = excluded.vec,
			norm = excluded.norm,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			e.DocID, e.Ref.Backend.String(), e.Ref.Model,
			e.Dim, float32SliceToBytes(e.Vec), e.Norm, e.ContentHash, updatedAt,
		); err != nil {
			return fmt.Errorf("saving vector for doc %d: %w", e.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetVector retrieves one row.
func (s *embeddingStore) GetVector(ctx context.Context, docID int64, ref domain.EmbeddingRef) (*domain.EmbeddingVector, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT doc_id, backend, model, dim, vec, norm, content_hash, updated_at
		FROM embeddings
		WHERE doc_id = ? AND backend = ? AND model = ?
	`, docID, ref.Backend.String(), ref.Model)

	v, err := scanVector(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// GetVectors retrieves rows for the given ids, chunked to respect the
// bound-parameter limit and silently skipping absent ids.
func (s *embeddingStore) GetVectors(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]domain.EmbeddingVector, error) {
	var result []domain.EmbeddingVector
	for _, chunk := range chunkIDs(docIDs, idChunkSize) {
		args := append([]any{ref.Backend.String(), ref.Model}, idArgs(chunk)...)
		rows, err := s.store.db.QueryContext(ctx, `
			SELECT doc_id, backend, model, dim, vec, norm, content_hash, updated_at
			FROM embeddings
			WHERE backend = ? AND model = ? AND doc_id IN (`+placeholders(len(chunk))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying vectors: %w", err)
		}

		vecs, err := collectVectors(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, vecs...)
	}
	return result, nil
}

// ScanByDimension returns all rows of one dimensionality in stable
// doc-id order. Rows of any other dimensionality never surface.
func (s *embeddingStore) ScanByDimension(ctx context.Context, ref domain.EmbeddingRef, dim int) ([]domain.EmbeddingVector, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT doc_id, backend, model, dim, vec, norm, content_hash, updated_at
		FROM embeddings
		WHERE backend = ? AND model = ? AND dim = ?
		ORDER BY doc_id
	`, ref.Backend.String(), ref.Model, dim)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	return collectVectors(rows)
}

// TruncateDimension re-slices stored vectors to at most maxDim and
// recomputes their norms. Returns the number of rows rewritten.
func (s *embeddingStore) TruncateDimension(ctx context.Context, ref domain.EmbeddingRef, maxDim int) (int, error) {
	if maxDim <= 0 {
		return 0, fmt.Errorf("truncate to %d dimensions: %w", maxDim, domain.ErrInvalidInput)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT doc_id, backend, model, dim, vec, norm, content_hash, updated_at
		FROM embeddings
		WHERE backend = ? AND model = ? AND dim > ?
	`, ref.Backend.String(), ref.Model, maxDim)
	if err != nil {
		return 0, fmt.Errorf("scanning oversized vectors: %w", err)
	}
	oversized, err := collectVectors(rows)
	if err != nil {
		return 0, err
	}
	if len(oversized) == 0 {
		return 0, nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE embeddings SET dim = ?, vec = ?, norm = ?, updated_at = ?
		WHERE doc_id = ? AND backend = ? AND model = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, v := range oversized {
		truncated := v.Vec[:maxDim]
		norm := domain.L2Norm(truncated)
		if _, err := stmt.ExecContext(ctx,
			maxDim, float32SliceToBytes(truncated), norm, now,
			v.DocID, ref.Backend.String(), ref.Model,
		); err != nil {
			return 0, fmt.Errorf("truncating vector for doc %d: %w", v.DocID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(oversized), nil
}

// CountByRef returns the row count for one embedding space.
func (s *embeddingStore) CountByRef(ctx context.Context, ref domain.EmbeddingRef) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings WHERE backend = ? AND model = ?
	`, ref.Backend.String(), ref.Model).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}

// Dimensions returns the distinct vector lengths present, ascending.
func (s *embeddingStore) Dimensions(ctx context.Context, ref domain.EmbeddingRef) ([]int, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT dim FROM embeddings
		WHERE backend = ? AND model = ?
		ORDER BY dim
	`, ref.Backend.String(), ref.Model)
	if err != nil {
		return nil, fmt.Errorf("querying dimensions: %w", err)
	}
	defer rows.Close()

	var dims []int //nolint:prealloc // size unknown from query
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning dimension: %w", err)
		}
		dims = append(dims, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dimensions: %w", err)
	}
	return dims, nil
}

// MissingIDs filters docIDs down to those without a stored vector.
func (s *embeddingStore) MissingIDs(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) ([]int64, error) {
	var missing []int64
	for _, chunk := range chunkIDs(docIDs, idChunkSize) {
		args := append([]any{ref.Backend.String(), ref.Model}, idArgs(chunk)...)
		rows, err := s.store.db.QueryContext(ctx, `
			SELECT doc_id FROM embeddings
			WHERE backend = ? AND model = ? AND doc_id IN (`+placeholders(len(chunk))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying stored ids: %w", err)
		}

		present := make(map[int64]struct{}, len(chunk))
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning id: %w", err)
			}
			present[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating ids: %w", err)
		}
		rows.Close()

		for _, id := range chunk {
			if _, ok := present[id]; !ok {
				missing = append(missing, id)
			}
		}
	}
	return missing, nil
}

// DeleteVectors removes rows for the given ids.
func (s *embeddingStore) DeleteVectors(ctx context.Context, docIDs []int64, ref domain.EmbeddingRef) error {
	for _, chunk := range chunkIDs(docIDs, idChunkSize) {
		args := append([]any{ref.Backend.String(), ref.Model}, idArgs(chunk)...)
		if _, err := s.store.db.ExecContext(ctx, `
			DELETE FROM embeddings
			WHERE backend = ? AND model = ? AND doc_id IN (`+placeholders(len(chunk))+`)
		`, args...); err != nil {
			return fmt.Errorf("deleting vectors: %w", err)
		}
	}
	return nil
}

// scanVector reads one embedding row.
func scanVector(row *sql.Row) (*domain.EmbeddingVector, error) {
	var v domain.EmbeddingVector
	var backend string
	var blob []byte
	var updatedAt sql.NullTime
	if err := row.Scan(&v.DocID, &backend, &v.Ref.Model, &v.Dim, &blob, &v.Norm, &v.ContentHash, &updatedAt); err != nil {
		return nil, err
	}
	v.Ref.Backend = domain.Backend(backend)
	v.Vec = bytesToFloat32Slice(blob)
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

// collectVectors drains a multi-row embedding query.
func collectVectors(rows *sql.Rows) ([]domain.EmbeddingVector, error) {
	defer rows.Close()

	var result []domain.EmbeddingVector //nolint:prealloc // size unknown from query
	for rows.Next() {
		var v domain.EmbeddingVector
		var backend string
		var blob []byte
		var updatedAt sql.NullTime
		if err := rows.Scan(&v.DocID, &backend, &v.Ref.Model, &v.Dim, &blob, &v.Norm, &v.ContentHash, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		v.Ref.Backend = domain.Backend(backend)
		v.Vec = bytesToFloat32Slice(blob)
		if updatedAt.Valid {
			v.UpdatedAt = updatedAt.Time
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return result, nil
}
