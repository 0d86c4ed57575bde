package driven

// KeywordExtractor derives a bounded set of salient terms and phrases
// from free text. Extraction is pure CPU work with no I/O.
type KeywordExtractor interface {
	// Extract returns up to max keywords, most salient first.
	// Phrases are space-separated words.
	Extract(text string, max int) []Keyword
}

// Keyword is one extracted term or phrase.
type Keyword struct {
	// Text is the term, lowercased with hyphens preserved.
	Text string

	// Score is the extractor's heuristic salience.
	Score float64

	// Phrase marks multi-word terms.
	Phrase bool

	// NounLikely marks terms the extractor judges to be nouns, used
	// upstream for term weighting.
	NounLikely bool
}
