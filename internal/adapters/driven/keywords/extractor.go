// Package keywords implements a heuristic keyword and phrase extractor
// tuned for technical and biomedical text. It is pure CPU work with no
// external service.
package keywords

import (
	"sort"
	"strings"
	"unicode"

	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Candidate thresholds. Unigrams need a strong standalone signal;
// bigrams start from a phrase base and need a stronger one.
const (
	unigramThreshold = 2.2
	bigramThreshold  = 3.0
)

var stopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	words := strings.Fields(`
		a an and are as at by for from has have he her his i in is it its
		of on or she that the their then there these they this those to
		was were will with without within into over under out across
		after before along during plus minus per via yes no not
		treat treats treated treating type types
		one two three four five six seven eight nine ten`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// nounSuffixes mark nominalizations and technical entity names:
// conditions, procedures, enzymes, drug classes.
var nounSuffixes = []string{
	"itis", "emia", "osis", "oma", "pathy", "algia", "uria", "plasty",
	"scopy", "graphy", "ectomy", "otomy", "ostomy", "ology", "logy",
	"gen", "genic", "ase", "ose", "in", "ide", "one", "olol", "pril",
	"sartan", "azole", "caine", "dopa", "mycin", "cycline", "cillin",
	"mab", "ia", "sia",
}

var adjSuffixes = []string{"ic", "al", "oid"}

// Extractor is the default driven.KeywordExtractor implementation.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

type candidate struct {
	text       string
	score      float64
	phrase     bool
	nounLikely bool
}

// Extract returns up to max keywords, most salient first. Bigram
// phrases are preferred; unigrams already covered by a kept phrase are
// dropped.
func (e *Extractor) Extract(text string, max int) []driven.Keyword {
	if max <= 0 {
		return nil
	}
	tokens := tokenize(text)

	var unigrams []candidate
	for _, tok := range tokens {
		if s := scoreUnigram(tok); s >= unigramThreshold {
			unigrams = append(unigrams, candidate{
				text:       strings.ToLower(tok),
				score:      s,
				nounLikely: nounLikely(tok),
			})
		}
	}

	var bigrams []candidate
	for i := 0; i+1 < len(tokens); i++ {
		t1, t2 := tokens[i], tokens[i+1]
		if s := scoreBigram(t1, t2); s >= bigramThreshold {
			bigrams = append(bigrams, candidate{
				text:       strings.ToLower(t1) + " " + strings.ToLower(t2),
				score:      s,
				phrase:     true,
				nounLikely: nounLikely(t2),
			})
		}
	}
	sort.SliceStable(bigrams, func(i, j int) bool { return bigrams[i].score > bigrams[j].score })

	// Drop unigrams contained in any kept phrase.
	phraseWords := make(map[string]struct{})
	for _, b := range bigrams {
		for _, w := range strings.Fields(b.text) {
			phraseWords[w] = struct{}{}
		}
	}
	merged := bigrams
	for _, u := range unigrams {
		if _, covered := phraseWords[u.text]; !covered {
			merged = append(merged, u)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].score > merged[j].score })

	seen := make(map[string]struct{}, len(merged))
	out := make([]driven.Keyword, 0, max)
	for _, c := range merged {
		if _, dup := seen[c.text]; dup {
			continue
		}
		seen[c.text] = struct{}{}
		out = append(out, driven.Keyword{
			Text:       c.text,
			Score:      c.score,
			Phrase:     c.phrase,
			NounLikely: c.nounLikely,
		})
		if len(out) >= max {
			break
		}
	}
	return out
}

// normalizeHyphens maps unicode dash variants to ASCII hyphen-minus.
func normalizeHyphens(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '‐', '‑', '‒', '–', '—', '―',
			'−', '⁃', '﹘', '﹣', '－':
			return '-'
		}
		return r
	}, s)
}

// tokenize splits on non-word runes, keeping hyphens that sit between
// two word characters so terms like "5α-reductase" survive intact.
func tokenize(text string) []string {
	runes := []rune(normalizeHyphens(text))
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

	var tokens []string
	var buf []rune
	for i, r := range runes {
		if isWord(r) {
			buf = append(buf, r)
			continue
		}
		if r == '-' && i > 0 && i < len(runes)-1 && isWord(runes[i-1]) && isWord(runes[i+1]) {
			buf = append(buf, r)
			continue
		}
		if len(buf) > 0 {
			tokens = append(tokens, string(buf))
			buf = nil
		}
	}
	if len(buf) > 0 {
		tokens = append(tokens, string(buf))
	}
	return tokens
}

// isRoman reports whether token looks like a roman numeral.
func isRoman(token string) bool {
	t := strings.ToUpper(token)
	if t == "" || len(t) > 6 {
		return false
	}
	for _, r := range t {
		if !strings.ContainsRune("IVXLCDM", r) {
			return false
		}
	}
	return true
}

func isStopword(token string) bool {
	_, ok := stopwords[strings.ToLower(token)]
	return ok
}

// isMedNoun reports whether token carries a technical or
// nominalization suffix. Hyphenated enzyme names count regardless of
// the final part's length.
func isMedNoun(token string) bool {
	t := strings.ToLower(token)
	if strings.Contains(t, "-") {
		for _, part := range strings.Split(t, "-") {
			if strings.HasSuffix(part, "ase") || strings.HasSuffix(part, "gen") {
				return true
			}
		}
	}
	for _, suf := range nounSuffixes {
		min := len(suf) + 1
		if min < 4 {
			min = 4
		}
		if strings.HasSuffix(t, suf) && len(t) >= min {
			return true
		}
	}
	return false
}

func isAdjLike(token string) bool {
	t := strings.ToLower(token)
	for _, suf := range adjSuffixes {
		if strings.HasSuffix(t, suf) && len(t) >= 4 {
			return true
		}
	}
	return false
}

func isVerbal(token string) bool {
	t := strings.ToLower(token)
	return strings.HasSuffix(t, "ing") || strings.HasSuffix(t, "ed") || strings.HasSuffix(t, "s")
}

// nounLikely backs the term-weighting noun signal: hyphenated,
// technical-suffixed, or long without a verbal suffix.
func nounLikely(token string) bool {
	if strings.Contains(token, "-") || isMedNoun(token) {
		return true
	}
	return len([]rune(token)) >= 5 && !isVerbal(token)
}

func properCaseLong(token string) bool {
	runes := []rune(token)
	if len(runes) < 7 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsLetter(r) && !unicode.IsLower(r) {
			return false
		}
	}
	return true
}

func scoreUnigram(token string) float64 {
	if isStopword(token) || isRoman(token) {
		return -1.0
	}
	score := 0.0
	if strings.Contains(token, "-") {
		score += 2.0
	}
	if isMedNoun(token) {
		score += 2.0
	}
	if properCaseLong(token) {
		score += 1.8
	}
	if len([]rune(token)) >= 8 {
		score += 0.4
	}
	if isVerbal(token) {
		score -= 0.6
	}
	return score
}

func scoreBigram(t1, t2 string) float64 {
	if isStopword(t1) || isStopword(t2) || isRoman(t1) || isRoman(t2) {
		return -1.0
	}
	score := 2.2
	if isAdjLike(t1) && isMedNoun(t2) {
		score += 2.2
	}
	if len([]rune(t1)) >= 6 {
		score += 0.2
	}
	if len([]rune(t2)) >= 6 {
		score += 0.4
	}
	return score
}
