package domain

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// Mode selects which retrieval paths run. Zero value falls back
	// to the configured default mode.
	Mode SearchMode

	// Rerank re-orders the head of the result list through the
	// reranking service when one is configured.
	Rerank bool
}

// SearchResult represents a single ranked note.
type SearchResult struct {
	// DocID is the matched note.
	DocID int64

	// Title is the note's first field.
	Title string

	// Score is the final blended relevance score in [0,1].
	Score float64

	// LexScore is the best raw lexical score the note achieved.
	// More negative means more relevant; 0 when the note never
	// matched lexically.
	LexScore float64

	// Cosine is the best cosine similarity across query sub-units,
	// 0 when the note was not a vector candidate.
	Cosine float64

	// Matched is the count of query terms the note matched literally.
	Matched int
}
