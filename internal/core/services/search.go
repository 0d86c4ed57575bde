package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
	"github.com/custodia-labs/notelens/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

const (
	defaultLimit = 50

	// maxQueryTerms bounds how many extracted terms get their own
	// full-text query.
	maxQueryTerms = 8

	// maxQueryUnits bounds how many sub-units of a query are embedded
	// separately.
	maxQueryUnits = 4

	// scanChunkSize bounds the work between yield points in the exact
	// vector scan.
	scanChunkSize = 512
)

// SearchService orchestrates retrieval over the note corpus. Lexical
// and vector candidates are gathered independently, fused per path
// with reciprocal rank fusion, and blended into one final score.
// Either path failing degrades that path to empty; the query only
// fails when no evidence source is left.
type SearchService struct {
	notes      driven.NoteStore
	vectors    driven.EmbeddingStore
	extractor  driven.KeywordExtractor
	settings   driving.SettingsService
	queryCache *QueryEmbeddingCache

	embedder driven.EmbeddingService // optional
	ann      driven.AnnIndex         // optional
	reranker driven.Reranker         // optional
}

// NewSearchService creates a search service. Embedding, ANN, and
// reranking are attached separately when configured.
func NewSearchService(
	notes driven.NoteStore,
	vectors driven.EmbeddingStore,
	extractor driven.KeywordExtractor,
	settings driving.SettingsService,
) *SearchService {
	return &SearchService{
		notes:      notes,
		vectors:    vectors,
		extractor:  extractor,
		settings:   settings,
		queryCache: NewQueryEmbeddingCache(),
	}
}

// SetEmbeddingService attaches an embedding backend, enabling the
// semantic and hybrid modes.
func (s *SearchService) SetEmbeddingService(embedder driven.EmbeddingService) {
	s.embedder = embedder
}

// SetAnnIndex attaches an approximate-neighbour index.
func (s *SearchService) SetAnnIndex(ann driven.AnnIndex) {
	s.ann = ann
}

// SetReranker attaches a reranking backend.
func (s *SearchService) SetReranker(reranker driven.Reranker) {
	s.reranker = reranker
}

// lexicalEvidence is the outcome of the lexical retrieval path.
type lexicalEvidence struct {
	// order is the fused candidate ranking, best first.
	order []int64

	// best maps id to its best (lowest) raw lexical score.
	best map[int64]float64

	// matched maps id to the number of query terms it matched.
	matched map[int64]int
}

// vectorEvidence is the outcome of the vector retrieval path.
type vectorEvidence struct {
	// order is the candidate ranking, best first.
	order []int64

	// cos maps id to its best cosine across query sub-units.
	cos map[int64]float64
}

// Search runs a query against the corpus in the requested mode.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	cfg := s.currentSettings()

	limit := opts.Limit
	if limit <= 0 {
		limit = cfg.Search.Limit
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	mode := s.effectiveMode(opts.Mode, cfg)
	if mode == domain.SearchModeSemantic && s.embedder == nil {
		return nil, fmt.Errorf("semantic search: %w", domain.ErrEmbeddingUnavailable)
	}

	logger.Section("Search Execution")
	logger.Debug("query=%q mode=%s limit=%d offset=%d", query, mode, limit, offset)

	// Candidate headroom for fusion, rerank, and pagination.
	internalLimit := limit * 2
	if internalLimit < limit+offset {
		internalLimit = limit + offset
	}

	runLexical := mode == domain.SearchModeLexical || mode == domain.SearchModeHybrid
	runVector := mode == domain.SearchModeSemantic ||
		(mode == domain.SearchModeHybrid && s.embedder != nil)

	var (
		wg     sync.WaitGroup
		lex    *lexicalEvidence
		vec    *vectorEvidence
		lexErr error
		vecErr error
	)

	if runLexical {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lex, lexErr = s.lexicalCandidates(ctx, query, internalLimit, cfg)
		}()
	}
	if runVector {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, vecErr = s.vectorCandidates(ctx, query, internalLimit, cfg)
		}()
	}
	wg.Wait()

	// Per-path degradation: one path failing leaves the other's
	// results; both failing fails the query.
	if lexErr != nil {
		if !runVector || vecErr != nil {
			return nil, fmt.Errorf("lexical retrieval: %w", lexErr)
		}
		logger.Warn("Lexical retrieval failed, using vector results only: %v", lexErr)
		lex = nil
	}
	if vecErr != nil {
		if mode == domain.SearchModeSemantic {
			return nil, fmt.Errorf("vector retrieval: %w", vecErr)
		}
		logger.Warn("Vector retrieval failed, using lexical results only: %v", vecErr)
		vec = nil
	}

	ranked := s.scoreCandidates(mode, lex, vec, internalLimit, cfg)
	logger.Debug("candidates=%d", len(ranked))

	results := s.hydrateResults(ctx, ranked)

	if (opts.Rerank || cfg.Rerank.Enabled) && s.reranker != nil {
		results = s.applyRerank(ctx, query, results, cfg.Rerank)
	}

	return paginate(results, offset, limit), nil
}

// Similar returns the nearest neighbours of a note by its stored
// vector for the active embedding space.
func (s *SearchService) Similar(ctx context.Context, docID int64, limit int) ([]domain.SearchResult, error) {
	cfg := s.currentSettings()
	if limit <= 0 {
		limit = cfg.Search.Limit
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	ref := s.activeRef(cfg)
	if ref.IsZero() {
		return nil, fmt.Errorf("similar notes: %w", domain.ErrEmbeddingUnavailable)
	}

	row, err := s.vectors.GetVector(ctx, docID, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("note %d in %s: %w", docID, ref, domain.ErrNoVector)
		}
		return nil, fmt.Errorf("load vector for note %d: %w", docID, err)
	}

	// One extra candidate covers the note itself.
	hits, err := s.nearestByVector(ctx, ref, row.Vec, limit+1, cfg)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}

	ranked := make([]domain.SearchResult, 0, limit)
	for _, h := range hits {
		if h.DocID == docID {
			continue
		}
		ranked = append(ranked, domain.SearchResult{
			DocID:  h.DocID,
			Score:  clamp01(h.Similarity),
			Cosine: h.Similarity,
		})
		if len(ranked) == limit {
			break
		}
	}
	return s.hydrateResults(ctx, ranked), nil
}

// currentSettings loads settings, falling back to defaults so a broken
// config file degrades behaviour instead of breaking search.
func (s *SearchService) currentSettings() domain.AppSettings {
	return loadSettings(s.settings)
}

// effectiveMode resolves the mode a query actually runs in. Hybrid
// degrades to lexical when no embedding backend is attached.
func (s *SearchService) effectiveMode(requested domain.SearchMode, cfg domain.AppSettings) domain.SearchMode {
	mode := requested
	if mode == "" {
		mode = cfg.Search.Mode
	}
	if !mode.IsValid() {
		mode = domain.SearchModeLexical
	}
	if mode == domain.SearchModeHybrid && s.embedder == nil {
		logger.Debug("No embedding backend attached, degrading hybrid to lexical")
		return domain.SearchModeLexical
	}
	return mode
}

// activeRef is the embedding space queries run against: the attached
// backend when present, otherwise the configured one.
func (s *SearchService) activeRef(cfg domain.AppSettings) domain.EmbeddingRef {
	if s.embedder != nil {
		return domain.EmbeddingRef{Backend: s.embedder.Backend(), Model: s.embedder.ModelName()}
	}
	return cfg.Embedding.Ref()
}

// lexicalCandidates extracts query terms, runs one full-text query per
// term, and fuses the per-term lists with term-weighted reciprocal
// rank fusion. When every per-term query comes back empty, a widened
// OR query over all words is tried before giving up.
func (s *SearchService) lexicalCandidates(ctx context.Context, query string, limit int, cfg domain.AppSettings) (*lexicalEvidence, error) {
	docCount, err := s.notes.DocCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("doc count: %w", err)
	}

	keywords := s.extractor.Extract(query, maxQueryTerms)
	if len(keywords) == 0 {
		keywords = []driven.Keyword{{Text: strings.ToLower(query)}}
	}

	fetchLimit := lexicalFetchLimit(limit, cfg.Fusion)

	lists := make([]rankedList, 0, len(keywords)+1)
	memberships := make([]map[int64]struct{}, 0, len(keywords))
	best := make(map[int64]float64)
	tried := make(map[string]struct{}, len(keywords))

	collect := func(weight float64, hits []driven.LexicalHit) {
		list := rankedList{weight: weight, hits: make([]fusionHit, len(hits))}
		members := make(map[int64]struct{}, len(hits))
		for i, h := range hits {
			list.hits[i] = fusionHit{id: h.ID, raw: h.Score}
			members[h.ID] = struct{}{}
			if b, ok := best[h.ID]; !ok || h.Score < b {
				best[h.ID] = h.Score
			}
		}
		lists = append(lists, list)
		memberships = append(memberships, members)
	}

	for _, kw := range keywords {
		expr := matchExpr(kw)
		tried[expr] = struct{}{}

		df := s.termDocFreq(ctx, kw, expr)
		weight := termWeight(kw, df, docCount, cfg.Fusion)

		hits, err := s.notes.FullTextSearch(ctx, expr, fetchLimit)
		if err != nil {
			logger.Warn("Term query %q failed: %v", kw.Text, err)
			continue
		}
		logger.Debug("term=%q df=%d weight=%.2f hits=%d", kw.Text, df, weight, len(hits))
		if len(hits) == 0 {
			continue
		}
		collect(weight, hits)
	}

	if len(lists) == 0 {
		// Widened fallback: any single word may match.
		expr := orExpr(keywords)
		if _, done := tried[expr]; expr != "" && !done {
			hits, err := s.notes.FullTextSearch(ctx, expr, fetchLimit)
			if err != nil {
				return nil, fmt.Errorf("fallback query: %w", err)
			}
			logger.Debug("fallback=%q hits=%d", expr, len(hits))
			if len(hits) > 0 {
				collect(1, hits)
			}
		}
	}

	fused := fuseRankedLists(lists, cfg.Fusion.RRFK)

	matched := make(map[int64]int, len(best))
	for _, members := range memberships {
		for id := range members {
			matched[id]++
		}
	}

	order := make([]int64, 0, min(limit, len(fused)))
	for _, f := range fused {
		order = append(order, f.id)
		if len(order) == limit {
			break
		}
	}
	return &lexicalEvidence{order: order, best: best, matched: matched}, nil
}

// termDocFreq looks up a term's document frequency: phrases through a
// match count, single words through the index vocabulary. A failed
// lookup counts as df=0, which the IDF cap keeps harmless.
func (s *SearchService) termDocFreq(ctx context.Context, kw driven.Keyword, expr string) int {
	var (
		df  int
		err error
	)
	if kw.Phrase {
		df, err = s.notes.MatchCount(ctx, expr)
	} else {
		df, err = s.notes.TermDocFreq(ctx, kw.Text)
	}
	if err != nil {
		logger.Debug("df lookup for %q failed: %v", kw.Text, err)
		return 0
	}
	return df
}

// vectorCandidates embeds each query sub-unit through the cache,
// gathers nearest neighbours per unit, and fuses the per-unit lists
// with equal weight. The best cosine per candidate is kept for
// scoring and display.
func (s *SearchService) vectorCandidates(ctx context.Context, query string, limit int, cfg domain.AppSettings) (*vectorEvidence, error) {
	ref := s.activeRef(cfg)
	units := splitQueryUnits(query)

	lists := make([]rankedList, 0, len(units))
	maxCos := make(map[int64]float64)
	var firstErr error

	for _, unit := range units {
		qv, err := s.queryCache.Get(ctx, unit, s.embedder)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("Embedding query unit failed: %v", err)
			continue
		}

		hits, err := s.nearestByVector(ctx, ref, qv, limit, cfg)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("Vector retrieval for unit failed: %v", err)
			continue
		}

		list := rankedList{weight: 1, hits: make([]fusionHit, len(hits))}
		for i, h := range hits {
			list.hits[i] = fusionHit{id: h.DocID, raw: -h.Similarity}
			if c, ok := maxCos[h.DocID]; !ok || h.Similarity > c {
				maxCos[h.DocID] = h.Similarity
			}
		}
		lists = append(lists, list)
	}

	if len(lists) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return &vectorEvidence{cos: maxCos}, nil
	}

	fused := fuseRankedLists(lists, cfg.Fusion.RRFK)
	order := make([]int64, 0, min(limit, len(fused)))
	for _, f := range fused {
		order = append(order, f.id)
		if len(order) == limit {
			break
		}
	}
	return &vectorEvidence{order: order, cos: maxCos}, nil
}

// nearestByVector returns the top-k neighbours of one query vector,
// through the ANN index when one is ready for this dimension and the
// exact scan otherwise. ANN trouble of any kind falls back to the
// exact path.
func (s *SearchService) nearestByVector(ctx context.Context, ref domain.EmbeddingRef, query []float32, k int, cfg domain.AppSettings) ([]driven.AnnHit, error) {
	if s.ann != nil && cfg.Ann.Enabled && s.ann.Ready(len(query)) {
		hits, err := s.ann.Search(ctx, query, annCandidateCount(k), cfg.Ann.Breadth)
		if err == nil {
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits, nil
		}
		logger.Debug("ANN search unavailable, falling back to exact scan: %v", err)
	}
	return s.exactScan(ctx, ref, query, k)
}

// exactScan computes cosine against every stored vector of the query's
// dimensionality, yielding between chunks so long scans do not starve
// concurrent work.
func (s *SearchService) exactScan(ctx context.Context, ref domain.EmbeddingRef, query []float32, k int) ([]driven.AnnHit, error) {
	qnorm := domain.L2Norm(query)
	if qnorm == 0 {
		return nil, nil
	}

	rows, err := s.vectors.ScanByDimension(ctx, ref, len(query))
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}

	hits := make([]driven.AnnHit, 0, len(rows))
	for i, row := range rows {
		if i > 0 && i%scanChunkSize == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				runtime.Gosched()
			}
		}
		cos := domain.CosineWithNorms(query, qnorm, row.Vec, row.Norm)
		hits = append(hits, driven.AnnHit{DocID: row.DocID, Similarity: cos})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// scoreCandidates turns path evidence into one ranked, scored list.
// Semantic ordering is cosine; lexical ordering is the fused ranking;
// hybrid unions both candidate sets and orders by the blended score.
func (s *SearchService) scoreCandidates(mode domain.SearchMode, lex *lexicalEvidence, vec *vectorEvidence, limit int, cfg domain.AppSettings) []domain.SearchResult {
	switch {
	case lex == nil && vec == nil:
		return nil

	case mode == domain.SearchModeSemantic || lex == nil:
		out := make([]domain.SearchResult, 0, min(limit, len(vec.order)))
		for _, id := range vec.order {
			cos := vec.cos[id]
			out = append(out, domain.SearchResult{
				DocID:  id,
				Score:  clamp01(cos),
				Cosine: cos,
			})
			if len(out) == limit {
				break
			}
		}
		return out

	case mode == domain.SearchModeLexical || vec == nil:
		out := make([]domain.SearchResult, 0, min(limit, len(lex.order)))
		for _, id := range lex.order {
			out = append(out, domain.SearchResult{
				DocID:    id,
				Score:    modulateScore(0, lex.best[id], lex.matched[id], cfg.Modulator),
				LexScore: lex.best[id],
				Matched:  lex.matched[id],
			})
			if len(out) == limit {
				break
			}
		}
		return out

	default:
		seen := make(map[int64]struct{}, len(lex.order)+len(vec.order))
		out := make([]domain.SearchResult, 0, len(lex.order)+len(vec.order))
		add := func(id int64) {
			if _, ok := seen[id]; ok {
				return
			}
			seen[id] = struct{}{}
			cos := vec.cos[id]
			out = append(out, domain.SearchResult{
				DocID:    id,
				Score:    modulateScore(cos, lex.best[id], lex.matched[id], cfg.Modulator),
				LexScore: lex.best[id],
				Cosine:   cos,
				Matched:  lex.matched[id],
			})
		}
		for _, id := range lex.order {
			add(id)
		}
		for _, id := range vec.order {
			add(id)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			if out[i].LexScore != out[j].LexScore {
				return out[i].LexScore < out[j].LexScore
			}
			return out[i].DocID < out[j].DocID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out
	}
}

// hydrateResults attaches note titles, dropping results whose note has
// disappeared since retrieval.
func (s *SearchService) hydrateResults(ctx context.Context, ranked []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		note, err := s.notes.GetNote(ctx, r.DocID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("Hydrating note %d failed: %v", r.DocID, err)
			}
			continue
		}
		r.Title = noteTitle(*note)
		out = append(out, r)
	}
	return out
}

// applyRerank re-orders the head of the result list with the reranking
// model. Scores are kept as fused; only the order changes. Any rerank
// failure leaves the fused order standing.
func (s *SearchService) applyRerank(ctx context.Context, query string, results []domain.SearchResult, cfg domain.RerankSettings) []domain.SearchResult {
	topN := cfg.TopN
	if topN <= 0 || topN > len(results) {
		topN = len(results)
	}
	if topN < 2 {
		return results
	}

	head := results[:topN]
	docs := make([]string, len(head))
	for i, r := range head {
		note, err := s.notes.GetNote(ctx, r.DocID)
		if err != nil {
			continue
		}
		docs[i] = noteText(*note)
	}

	scores, err := s.reranker.Rerank(ctx, []string{query}, docs, cfg.Instruction)
	if err != nil {
		logger.Warn("Rerank failed, keeping fused order: %v", err)
		return results
	}
	if len(scores) != len(docs) {
		logger.Warn("Rerank returned %d scores for %d documents, keeping fused order", len(scores), len(docs))
		return results
	}

	idx := make([]int, len(head))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	reordered := make([]domain.SearchResult, 0, len(results))
	for _, i := range idx {
		reordered = append(reordered, head[i])
	}
	return append(reordered, results[topN:]...)
}

// paginate applies offset and limit to a result list.
func paginate(results []domain.SearchResult, offset, limit int) []domain.SearchResult {
	if offset >= len(results) {
		return []domain.SearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

// lexicalFetchLimit sizes per-term full-text queries: generous enough
// for fusion to work with, scaled with the requested result count,
// capped by configuration.
func lexicalFetchLimit(limit int, cfg domain.FusionSettings) int {
	n := limit * 20
	if n < 500 {
		n = 500
	}
	if cfg.MaxFetch > 0 && n > cfg.MaxFetch {
		n = cfg.MaxFetch
	}
	return n
}

// annCandidateCount oversizes ANN requests to compensate for
// approximate recall before truncating back to k.
func annCandidateCount(k int) int {
	n := 3 * k
	if n < 200 {
		n = 200
	}
	if n > 1000 {
		n = 1000
	}
	return n
}

// matchExpr renders one keyword as a full-text match expression.
// Phrases and terms with punctuation are quoted so the index treats
// them as token sequences.
func matchExpr(kw driven.Keyword) string {
	needsQuote := kw.Phrase
	if !needsQuote {
		for _, r := range kw.Text {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				needsQuote = true
				break
			}
		}
	}
	if needsQuote {
		return `"` + strings.ReplaceAll(kw.Text, `"`, `""`) + `"`
	}
	return kw.Text
}

// orExpr widens a term set to an OR query over every distinct word.
func orExpr(keywords []driven.Keyword) string {
	seen := make(map[string]struct{})
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		for _, w := range strings.Fields(kw.Text) {
			w = strings.Trim(w, `"`)
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
		}
	}
	return strings.Join(words, " OR ")
}

// splitQueryUnits breaks a query into independently embedded units on
// sentence boundaries. Multi-sentence queries retrieve per sentence
// and fuse, which keeps one long clause from washing out the others.
func splitQueryUnits(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == '.' || r == '?' || r == '!' || r == ';' || r == '\n'
	})
	units := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if len([]rune(f)) < 3 {
			continue
		}
		units = append(units, f)
		if len(units) == maxQueryUnits {
			break
		}
	}
	if len(units) <= 1 {
		return []string{strings.TrimSpace(query)}
	}
	return units
}
