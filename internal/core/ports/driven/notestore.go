package driven

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// NoteStore is the read-only gateway to the note corpus and its
// full-text index. The engine never mutates notes through it.
type NoteStore interface {
	// GetNote retrieves a note by id.
	GetNote(ctx context.Context, id int64) (*domain.Note, error)

	// FirstField returns a note's first field.
	FirstField(ctx context.Context, id int64) (string, error)

	// LastField returns a note's last field.
	LastField(ctx context.Context, id int64) (string, error)

	// FullTextSearch runs one match expression against the full-text
	// index, returning up to limit hits ordered by ascending score
	// (more negative = more relevant, the bm25 convention).
	FullTextSearch(ctx context.Context, expr string, limit int) ([]LexicalHit, error)

	// MatchCount returns how many notes match the expression. Used for
	// phrase document frequency.
	MatchCount(ctx context.Context, expr string) (int, error)

	// TermDocFreq returns how many notes contain the exact term,
	// served from the index vocabulary without running a query.
	TermDocFreq(ctx context.Context, term string) (int, error)

	// DocCount returns the total number of notes.
	DocCount(ctx context.Context) (int, error)

	// ListIDs pages through all note ids in stable ascending order.
	ListIDs(ctx context.Context, limit, offset int) ([]int64, error)
}

// LexicalHit is one full-text result row. Score follows the bm25
// convention: more negative = more relevant.
type LexicalHit struct {
	// ID is the matched note.
	ID int64

	// Score is the raw lexical relevance score.
	Score float64
}
