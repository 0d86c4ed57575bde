package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Ensure NoteStore implements the interface.
var _ driven.NoteStore = (*NoteStore)(nil)

// NoteStore is an in-memory implementation of driven.NoteStore. Its
// full-text search is a naive substring matcher over lowercased field
// text, scored by occurrence count under the bm25 sign convention
// (more negative = more relevant).
type NoteStore struct {
	mu    sync.RWMutex
	notes map[int64]domain.Note
}

// NewNoteStore creates a new in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{
		notes: make(map[int64]domain.Note),
	}
}

// Put seeds or replaces a note.
func (s *NoteStore) Put(n domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
}

// GetNote retrieves a note by id.
func (s *NoteStore) GetNote(_ context.Context, id int64) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

// FirstField returns a note's first field.
func (s *NoteStore) FirstField(_ context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return n.FirstField(), nil
}

// LastField returns a note's last field.
func (s *NoteStore) LastField(_ context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return n.LastField(), nil
}

// FullTextSearch matches the expression against every note. Supports
// the expression shapes the engine emits: bare terms, quoted phrases
// and OR-joined alternatives.
func (s *NoteStore) FullTextSearch(_ context.Context, expr string, limit int) ([]driven.LexicalHit, error) {
	alts := parseExpr(expr)
	if len(alts) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.LexicalHit
	for id, n := range s.notes {
		text := noteHaystack(n)
		count := 0
		for _, alt := range alts {
			count += strings.Count(text, alt)
		}
		if count > 0 {
			hits = append(hits, driven.LexicalHit{ID: id, Score: -float64(count)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// MatchCount returns how many notes match the expression.
func (s *NoteStore) MatchCount(_ context.Context, expr string) (int, error) {
	alts := parseExpr(expr)
	if len(alts) == 0 {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notes {
		text := noteHaystack(n)
		for _, alt := range alts {
			if strings.Contains(text, alt) {
				count++
				break
			}
		}
	}
	return count, nil
}

// TermDocFreq returns how many notes contain the term as a whole word.
func (s *NoteStore) TermDocFreq(_ context.Context, term string) (int, error) {
	term = strings.ToLower(term)

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notes {
		for _, w := range strings.FieldsFunc(noteHaystack(n), isSeparator) {
			if w == term {
				count++
				break
			}
		}
	}
	return count, nil
}

// DocCount returns the total number of notes.
func (s *NoteStore) DocCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes), nil
}

// ListIDs pages through note ids in ascending order.
func (s *NoteStore) ListIDs(_ context.Context, limit, offset int) ([]int64, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.notes))
	for id := range s.notes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// parseExpr splits a match expression into lowercased alternatives,
// stripping quotes and undoing the doubled-quote escape.
func parseExpr(expr string) []string {
	var alts []string
	for _, part := range strings.Split(expr, " OR ") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, `"`) && strings.HasSuffix(part, `"`) && len(part) >= 2 {
			part = strings.ReplaceAll(part[1:len(part)-1], `""`, `"`)
		}
		if part == "" {
			continue
		}
		alts = append(alts, strings.ToLower(part))
	}
	return alts
}

func noteHaystack(n domain.Note) string {
	return strings.ToLower(strings.Join(n.Fields, "\n"))
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
}
