package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// noteStore implements driven.NoteStore over the notes table and its
// FTS5 index.
type noteStore struct {
	store *Store
}

var _ driven.NoteStore = (*noteStore)(nil)

// GetNote retrieves a note by id.
func (s *noteStore) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, fields, updated_at FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

// FirstField returns a note's first field.
func (s *noteStore) FirstField(ctx context.Context, id int64) (string, error) {
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return "", err
	}
	return note.FirstField(), nil
}

// LastField returns a note's last field.
func (s *noteStore) LastField(ctx context.Context, id int64) (string, error) {
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return "", err
	}
	return note.LastField(), nil
}

// FullTextSearch runs one match expression against the FTS5 index.
// Results come back in bm25 order: ascending, more negative = more
// relevant.
func (s *noteStore) FullTextSearch(ctx context.Context, expr string, limit int) ([]driven.LexicalHit, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT rowid, bm25(notes_fts) FROM notes_fts
		WHERE notes_fts MATCH ?
		ORDER BY bm25(notes_fts)
		LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, fmt.Errorf("querying fts index: %w", err)
	}
	defer rows.Close()

	var hits []driven.LexicalHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var h driven.LexicalHit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// MatchCount returns how many notes match the expression.
func (s *noteStore) MatchCount(ctx context.Context, expr string) (int, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, nil
	}
	var count int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notes_fts WHERE notes_fts MATCH ?
	`, expr).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting matches: %w", err)
	}
	return count, nil
}

// TermDocFreq returns the term's document frequency from the fts5vocab
// table, without running a query.
func (s *noteStore) TermDocFreq(ctx context.Context, term string) (int, error) {
	var df int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT doc FROM notes_vocab WHERE term = ?
	`, strings.ToLower(term)).Scan(&df)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("vocabulary lookup: %w", err)
	}
	return df, nil
}

// DocCount returns the total number of notes.
func (s *noteStore) DocCount(ctx context.Context) (int, error) {
	var count int
	if err := s.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting notes: %w", err)
	}
	return count, nil
}

// ListIDs pages through all note ids in ascending order.
func (s *noteStore) ListIDs(ctx context.Context, limit, offset int) ([]int64, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id FROM notes ORDER BY id LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var ids []int64 //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

// NoteStore extends the read-only note gateway with the write surface
// used by corpus owners (imports, tests). The engine itself only ever
// sees driven.NoteStore.
type NoteStore struct {
	noteStore
}

// UpsertNotes writes notes and keeps the full-text index in step, all
// in one transaction.
func (s *NoteStore) UpsertNotes(ctx context.Context, notes []domain.Note) error {
	if len(notes) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO notes (id, fields, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer upsert.Close()

	ftsDelete, err := tx.PrepareContext(ctx, `DELETE FROM notes_fts WHERE rowid = ?`)
	if err != nil {
		return fmt.Errorf("preparing fts delete: %w", err)
	}
	defer ftsDelete.Close()

	ftsInsert, err := tx.PrepareContext(ctx, `INSERT INTO notes_fts (rowid, body) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsInsert.Close()

	for _, n := range notes {
		fieldsJSON, err := json.Marshal(n.Fields)
		if err != nil {
			return fmt.Errorf("marshalling fields for note %d: %w", n.ID, err)
		}
		updatedAt := n.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}

		if _, err := upsert.ExecContext(ctx, n.ID, string(fieldsJSON), updatedAt); err != nil {
			return fmt.Errorf("saving note %d: %w", n.ID, err)
		}
		// The index is contentless, so replacing an entry is an
		// explicit delete plus insert.
		if _, err := ftsDelete.ExecContext(ctx, n.ID); err != nil {
			return fmt.Errorf("clearing index entry for note %d: %w", n.ID, err)
		}
		if _, err := ftsInsert.ExecContext(ctx, n.ID, strings.Join(n.Fields, "\n")); err != nil {
			return fmt.Errorf("indexing note %d: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteNotes removes notes and their index entries.
func (s *NoteStore) DeleteNotes(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, chunk := range chunkIDs(ids, idChunkSize) {
		args := idArgs(chunk)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notes_fts WHERE rowid IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return fmt.Errorf("clearing index entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notes WHERE id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return fmt.Errorf("deleting notes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// scanNote reads one note row.
func scanNote(row *sql.Row) (*domain.Note, error) {
	var note domain.Note
	var fieldsJSON string
	var updatedAt sql.NullTime
	if err := row.Scan(&note.ID, &fieldsJSON, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning note: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &note.Fields); err != nil {
		return nil, fmt.Errorf("unmarshaling fields: %w", err)
	}
	if updatedAt.Valid {
		note.UpdatedAt = updatedAt.Time
	}
	return &note, nil
}
