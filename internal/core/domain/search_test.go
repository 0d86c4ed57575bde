package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSearchOptions_DefaultValues tests SearchOptions with zero values
func TestSearchOptions_DefaultValues(t *testing.T) {
	opts := SearchOptions{}

	assert.Equal(t, 0, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Equal(t, SearchMode(""), opts.Mode)
	assert.False(t, opts.Rerank)
}

// TestSearchResult_Fields tests SearchResult structure fields
func TestSearchResult_Fields(t *testing.T) {
	r := SearchResult{
		DocID:    101,
		Title:    "Beta blockers",
		Score:    0.87,
		LexScore: -12.5,
		Cosine:   0.71,
		Matched:  2,
	}

	assert.Equal(t, int64(101), r.DocID)
	assert.Equal(t, "Beta blockers", r.Title)
	assert.InDelta(t, 0.87, r.Score, 1e-12)
	assert.InDelta(t, -12.5, r.LexScore, 1e-12)
	assert.InDelta(t, 0.71, r.Cosine, 1e-12)
	assert.Equal(t, 2, r.Matched)
}
