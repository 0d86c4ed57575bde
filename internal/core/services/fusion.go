package services

import (
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// fusionHit is one row of a ranked list entering fusion. raw follows
// the lexical convention: lower is better. Callers fusing lists ranked
// by a higher-is-better score negate it on the way in.
type fusionHit struct {
	id  int64
	raw float64
}

// rankedList pairs an ordered candidate list with its fusion weight.
type rankedList struct {
	weight float64
	hits   []fusionHit
}

// fusedHit is one fused candidate: the summed reciprocal-rank score and
// the best raw score seen across the input lists.
type fusedHit struct {
	id      int64
	score   float64
	bestRaw float64
}

// fuseRankedLists merges ranked lists with weighted reciprocal rank
// fusion: score(id) = sum over lists of weight/(k + rank), rank
// starting at 1. An id absent from a list contributes nothing for that
// list. Output is every id seen in any list, sorted by fused score
// descending; ties break on best raw score ascending, then id.
func fuseRankedLists(lists []rankedList, k float64) []fusedHit {
	type acc struct {
		score   float64
		bestRaw float64
	}
	accs := make(map[int64]*acc)
	for _, list := range lists {
		if list.weight <= 0 {
			continue
		}
		for rank, hit := range list.hits {
			a := accs[hit.id]
			if a == nil {
				a = &acc{bestRaw: math.Inf(1)}
				accs[hit.id] = a
			}
			a.score += list.weight / (k + float64(rank+1))
			if hit.raw < a.bestRaw {
				a.bestRaw = hit.raw
			}
		}
	}

	out := make([]fusedHit, 0, len(accs))
	for id, a := range accs {
		out = append(out, fusedHit{id: id, score: a.score, bestRaw: a.bestRaw})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].bestRaw != out[j].bestRaw {
			return out[i].bestRaw < out[j].bestRaw
		}
		return out[i].id < out[j].id
	})
	return out
}

// idf is the clamped inverse document frequency of a term with df
// matches in a corpus of docCount documents. Never negative, so very
// common terms bottom out at zero instead of turning punitive.
func idf(docCount, df int) float64 {
	if docCount <= 0 {
		return 0
	}
	v := math.Log((float64(docCount) - float64(df) + 0.5) / (float64(df) + 0.5))
	return math.Max(0, v)
}

// termWeight computes the fusion weight of one extracted query term:
// a base of 1, plus capped IDF, plus flat boosts for hyphenated terms,
// long terms, and noun-likely terms. Rare specific nouns end up
// dominating fusion, which is what makes multi-term queries rank
// documents matching the distinctive term above ones matching only the
// common term.
func termWeight(kw driven.Keyword, df, docCount int, cfg domain.FusionSettings) float64 {
	w := 1.0
	w += math.Min(cfg.IDFCap, idf(docCount, df))
	if strings.Contains(kw.Text, "-") {
		w += cfg.HyphenBoost
	}
	if len([]rune(kw.Text)) >= cfg.LongTermLen {
		w += cfg.LongTermBoost
	}
	if kw.NounLikely {
		w += cfg.NounBoost
	}
	return w
}
