package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// topicStore implements driven.TopicStore. A run and its full tree land
// in one transaction; deleting a run cascades through the tree via
// foreign keys.
type topicStore struct {
	store *Store
}

var _ driven.TopicStore = (*topicStore)(nil)

// SaveRun writes a run with its full tree in one transaction. Saving a
// run id that already exists replaces the previous tree.
func (s *topicStore) SaveRun(ctx context.Context, run domain.TopicRun, topics []domain.Topic, terms []domain.TopicTerm, docs []domain.TopicDoc) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Replace semantics: the cascade clears any previous tree.
	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_runs WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("clearing previous run: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO topic_runs (run_id, scope_hash, backend, model, doc_count, params_json, query, query_embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.ScopeHash, run.Backend.String(), run.Model, run.DocCount,
		run.ParamsJSON, run.Query, float32SliceToBytes(run.QueryEmbedding), createdAt); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	topicStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO topics (run_id, topic_id, parent_id, label, level, size, score, query_cos, centroid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing topic insert: %w", err)
	}
	defer topicStmt.Close()

	for _, t := range topics {
		if _, err := topicStmt.ExecContext(ctx,
			run.RunID, t.TopicID, nullInt(t.ParentID), t.Label, t.Level, t.Size,
			nullFloat(t.Score), nullFloat(t.QueryCos), float32SliceToBytes(t.Centroid),
		); err != nil {
			return fmt.Errorf("saving topic %d: %w", t.TopicID, err)
		}
	}

	termStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO topic_terms (run_id, topic_id, term, score, term_rank)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing term insert: %w", err)
	}
	defer termStmt.Close()

	for _, t := range terms {
		if _, err := termStmt.ExecContext(ctx, run.RunID, t.TopicID, t.Term, t.Score, t.Rank); err != nil {
			return fmt.Errorf("saving term %q for topic %d: %w", t.Term, t.TopicID, err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO topic_docs (run_id, topic_id, doc_id, weight, cos)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing doc insert: %w", err)
	}
	defer docStmt.Close()

	for _, d := range docs {
		if _, err := docStmt.ExecContext(ctx, run.RunID, d.TopicID, d.DocID, d.Weight, d.Cos); err != nil {
			return fmt.Errorf("saving doc %d for topic %d: %w", d.DocID, d.TopicID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetRun retrieves one run by id.
func (s *topicStore) GetRun(ctx context.Context, runID string) (*domain.TopicRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, scope_hash, backend, model, doc_count, params_json, query, query_embedding, created_at
		FROM topic_runs WHERE run_id = ?
	`, runID)
	return scanRun(row)
}

// LatestRun retrieves the most recent run for a scope hash.
func (s *topicStore) LatestRun(ctx context.Context, scopeHash string) (*domain.TopicRun, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, scope_hash, backend, model, doc_count, params_json, query, query_embedding, created_at
		FROM topic_runs WHERE scope_hash = ?
		ORDER BY created_at DESC, run_id
		LIMIT 1
	`, scopeHash)
	return scanRun(row)
}

// ListRuns returns runs newest first.
func (s *topicStore) ListRuns(ctx context.Context, limit int) ([]domain.TopicRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, scope_hash, backend, model, doc_count, params_json, query, query_embedding, created_at
		FROM topic_runs
		ORDER BY created_at DESC, run_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.TopicRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.TopicRun
		var backend string
		var queryBlob []byte
		var createdAt sql.NullTime
		if err := rows.Scan(&run.RunID, &run.ScopeHash, &backend, &run.Model, &run.DocCount,
			&run.ParamsJSON, &run.Query, &queryBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Backend = domain.Backend(backend)
		run.QueryEmbedding = bytesToFloat32Slice(queryBlob)
		if createdAt.Valid {
			run.CreatedAt = createdAt.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// GetTopics returns a run's topics ordered by level then topic id.
func (s *topicStore) GetTopics(ctx context.Context, runID string) ([]domain.Topic, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, topic_id, parent_id, label, level, size, score, query_cos, centroid
		FROM topics WHERE run_id = ?
		ORDER BY level, topic_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic //nolint:prealloc // size unknown from query
	for rows.Next() {
		var t domain.Topic
		var parentID sql.NullInt64
		var score, queryCos sql.NullFloat64
		var centroid []byte
		if err := rows.Scan(&t.RunID, &t.TopicID, &parentID, &t.Label, &t.Level, &t.Size,
			&score, &queryCos, &centroid); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		if parentID.Valid {
			p := int(parentID.Int64)
			t.ParentID = &p
		}
		if score.Valid {
			v := score.Float64
			t.Score = &v
		}
		if queryCos.Valid {
			v := queryCos.Float64
			t.QueryCos = &v
		}
		t.Centroid = bytesToFloat32Slice(centroid)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}

// GetTerms returns one topic's terms in rank order.
func (s *topicStore) GetTerms(ctx context.Context, runID string, topicID int) ([]domain.TopicTerm, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, topic_id, term, score, term_rank
		FROM topic_terms WHERE run_id = ? AND topic_id = ?
		ORDER BY term_rank
	`, runID, topicID)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	var terms []domain.TopicTerm //nolint:prealloc // size unknown from query
	for rows.Next() {
		var t domain.TopicTerm
		if err := rows.Scan(&t.RunID, &t.TopicID, &t.Term, &t.Score, &t.Rank); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating terms: %w", err)
	}
	return terms, nil
}

// GetDocs returns one topic's document assignments ordered by doc id.
func (s *topicStore) GetDocs(ctx context.Context, runID string, topicID int) ([]domain.TopicDoc, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, topic_id, doc_id, weight, cos
		FROM topic_docs WHERE run_id = ? AND topic_id = ?
		ORDER BY doc_id
	`, runID, topicID)
	if err != nil {
		return nil, fmt.Errorf("querying topic docs: %w", err)
	}
	defer rows.Close()

	var docs []domain.TopicDoc //nolint:prealloc // size unknown from query
	for rows.Next() {
		var d domain.TopicDoc
		if err := rows.Scan(&d.RunID, &d.TopicID, &d.DocID, &d.Weight, &d.Cos); err != nil {
			return nil, fmt.Errorf("scanning topic doc: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topic docs: %w", err)
	}
	return docs, nil
}

// DeleteRun removes a run; the tree goes with it via the cascade.
func (s *topicStore) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM topic_runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	return nil
}

// scanRun reads one run row.
func scanRun(row *sql.Row) (*domain.TopicRun, error) {
	var run domain.TopicRun
	var backend string
	var queryBlob []byte
	var createdAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.ScopeHash, &backend, &run.Model, &run.DocCount,
		&run.ParamsJSON, &run.Query, &queryBlob, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Backend = domain.Backend(backend)
	run.QueryEmbedding = bytesToFloat32Slice(queryBlob)
	if createdAt.Valid {
		run.CreatedAt = createdAt.Time
	}
	return &run, nil
}

// nullInt widens an optional int for binding.
func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullFloat widens an optional float for binding.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
