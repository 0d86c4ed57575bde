package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
	"github.com/custodia-labs/notelens/internal/logger"
)

// Ensure TopicService implements the interface.
var _ driving.TopicService = (*TopicService)(nil)

const (
	defaultMaxTopicDocs = 400
	defaultRunListLimit = 20
)

// TopicService builds hierarchical topic maps over the note corpus and
// serves persisted runs. Builds are exclusive and run through a fixed
// state machine whose progress is pollable while a build is running.
type TopicService struct {
	notes     driven.NoteStore
	vectors   driven.EmbeddingStore
	topics    driven.TopicStore
	clusterer driven.Clusterer
	settings  driving.SettingsService

	search   driving.SearchService   // optional, resolves query scopes
	embedder driven.EmbeddingService // optional, embeds run queries

	mu       sync.RWMutex
	building bool
	status   domain.TopicBuildStatus
}

// NewTopicService creates a topic service.
func NewTopicService(
	notes driven.NoteStore,
	vectors driven.EmbeddingStore,
	topics driven.TopicStore,
	clusterer driven.Clusterer,
	settings driving.SettingsService,
) *TopicService {
	return &TopicService{
		notes:     notes,
		vectors:   vectors,
		topics:    topics,
		clusterer: clusterer,
		settings:  settings,
	}
}

// SetSearchService attaches search, enabling query-scoped builds.
func (s *TopicService) SetSearchService(search driving.SearchService) {
	s.search = search
}

// SetEmbeddingService attaches an embedding backend, enabling run
// query vectors and per-topic query cosines.
func (s *TopicService) SetEmbeddingService(embedder driven.EmbeddingService) {
	s.embedder = embedder
}

// Build runs one topic-map build and returns the persisted run id.
func (s *TopicService) Build(ctx context.Context, scope domain.TopicScope) (string, error) {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return "", domain.ErrBuildInProgress
	}
	s.building = true
	runID := uuid.New().String()
	s.status = domain.TopicBuildStatus{
		State:     domain.TopicStatePreparing,
		Message:   "resolving document scope",
		RunID:     runID,
		StartedAt: time.Now(),
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.building = false
		s.mu.Unlock()
	}()

	logger.Section("Topic Map Build")
	logger.Info("Starting topic build %s", runID)

	if err := s.build(ctx, runID, scope); err != nil {
		s.setError(err)
		logger.Warn("Topic build %s failed: %v", runID, err)
		return "", err
	}

	s.setState(domain.TopicStateComplete, "run persisted")
	logger.Info("Topic build %s complete", runID)
	return runID, nil
}

// Status reports progress of the running or most recent build.
func (s *TopicService) Status() domain.TopicBuildStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LatestRun finds the newest persisted run for a scope.
func (s *TopicService) LatestRun(ctx context.Context, scope domain.TopicScope) (*domain.TopicRun, error) {
	return s.topics.LatestRun(ctx, scope.Hash())
}

// ListRuns returns persisted runs, newest first.
func (s *TopicService) ListRuns(ctx context.Context, limit int) ([]domain.TopicRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	return s.topics.ListRuns(ctx, limit)
}

// Tree returns a run's topic tree with terms and document assignments
// attached, ordered by level then topic id.
func (s *TopicService) Tree(ctx context.Context, runID string) ([]driving.TopicNode, error) {
	if _, err := s.topics.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	topics, err := s.topics.GetTopics(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("topics for run %s: %w", runID, err)
	}

	nodes := make([]driving.TopicNode, 0, len(topics))
	for _, t := range topics {
		terms, err := s.topics.GetTerms(ctx, runID, t.TopicID)
		if err != nil {
			return nil, fmt.Errorf("terms for topic %d: %w", t.TopicID, err)
		}
		docs, err := s.topics.GetDocs(ctx, runID, t.TopicID)
		if err != nil {
			return nil, fmt.Errorf("docs for topic %d: %w", t.TopicID, err)
		}
		nodes = append(nodes, driving.TopicNode{Topic: t, Terms: terms, Docs: docs})
	}
	return nodes, nil
}

// DeleteRun removes a persisted run and its tree.
func (s *TopicService) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.topics.GetRun(ctx, runID); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return s.topics.DeleteRun(ctx, runID)
}

// build walks the state machine for one run.
func (s *TopicService) build(ctx context.Context, runID string, scope domain.TopicScope) error {
	cfg := loadSettings(s.settings)

	ref := s.activeRef(cfg)
	if ref.IsZero() {
		return fmt.Errorf("topic build needs an embedding backend, configure one with 'settings setup': %w", domain.ErrEmbeddingUnavailable)
	}
	if s.clusterer == nil {
		return fmt.Errorf("no clustering backend wired, set topics.script: %w", domain.ErrClusterFailed)
	}

	maxDocs := cfg.Topics.MaxDocs
	if maxDocs <= 0 {
		maxDocs = defaultMaxTopicDocs
	}

	ids, err := s.resolveScope(ctx, scope, maxDocs)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: scope matched no notes", domain.ErrNoUsableDocuments)
	}
	s.setCounts(len(ids), 0)

	// Load cleaned text per note; notes that vanished or clean to
	// empty are dropped here.
	s.setState(domain.TopicStateLoadingText, fmt.Sprintf("loading text for %d notes", len(ids)))
	texts := make(map[int64]string, len(ids))
	for i, id := range ids {
		if i > 0 && i%scanChunkSize == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		note, err := s.notes.GetNote(ctx, id)
		if err != nil {
			continue
		}
		if t := noteText(*note); t != "" {
			texts[id] = t
		}
	}

	s.setState(domain.TopicStateLoadingEmbeddings, fmt.Sprintf("loading %s vectors", ref))
	rows, err := s.vectors.GetVectors(ctx, ids, ref)
	if err != nil {
		return fmt.Errorf("loading vectors for %s: %w", ref, err)
	}
	vecs := make(map[int64][]float32, len(rows))
	for _, r := range rows {
		vecs[r.DocID] = r.Vec
	}
	dim := dominantDimension(rows)

	// Keep only documents with both text and a vector of the dominant
	// dimensionality, in stable ascending id order.
	s.setState(domain.TopicStateAssembling, "assembling documents")
	slices.Sort(ids)
	docs := make([]driven.ClusterDocument, 0, len(ids))
	embeds := make([][]float32, 0, len(ids))
	for _, id := range ids {
		t, okText := texts[id]
		v, okVec := vecs[id]
		if !okText || !okVec || len(v) != dim {
			continue
		}
		docs = append(docs, driven.ClusterDocument{ID: id, Text: t})
		embeds = append(embeds, v)
	}
	s.setCounts(len(ids), len(docs))
	if len(docs) == 0 {
		return fmt.Errorf("%w: %d notes in scope but none has both text and a %s vector, run 'embed backfill' first", domain.ErrNoUsableDocuments, len(ids), ref)
	}
	logger.Info("Assembled %d/%d usable documents (dim=%d)", len(docs), len(ids), dim)

	var queryVec []float32
	if scope.Query != "" && s.embedder != nil {
		qv, err := s.embedder.Embed(ctx, scope.Query, driven.EmbedRoleQuery)
		if err != nil {
			logger.Warn("Embedding run query failed, query cosines will be empty: %v", err)
		} else {
			queryVec = qv
		}
	}

	params := deriveClusterParams(len(docs))
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	run := domain.TopicRun{
		RunID:          runID,
		ScopeHash:      scope.Hash(),
		Backend:        ref.Backend,
		Model:          ref.Model,
		DocCount:       len(docs),
		ParamsJSON:     string(paramsJSON),
		Query:          scope.Query,
		QueryEmbedding: queryVec,
		CreatedAt:      time.Now(),
	}

	if len(docs) == 1 {
		logger.Info("Single usable document, persisting fallback topic")
		return s.persistFallback(ctx, run, docs, embeds, queryVec)
	}

	s.setState(domain.TopicStateClustering, fmt.Sprintf("clustering %d documents", len(docs)))
	result, err := s.clusterer.Cluster(ctx, driven.ClusterRequest{
		Documents:  docs,
		Embeddings: embeds,
		Params:     params,
	}, s.onClusterProgress)
	if err != nil {
		return fmt.Errorf("clustering failed, check the topics.python and topics.script settings: %w", err)
	}
	if err := validateClusterResult(result); err != nil {
		return err
	}

	s.setState(domain.TopicStatePersisting, "persisting topic tree")
	vecByID := make(map[int64][]float32, len(docs))
	for i, d := range docs {
		vecByID[d.ID] = embeds[i]
	}
	topics, terms, topicDocs := assembleTopicRows(runID, result, vecByID, queryVec)
	if len(topics) == 0 {
		logger.Warn("Clustering produced no persistable topics, substituting fallback")
		return s.persistFallback(ctx, run, docs, embeds, queryVec)
	}

	if err := s.topics.SaveRun(ctx, run, topics, terms, topicDocs); err != nil {
		return fmt.Errorf("persisting run %s: %w", runID, err)
	}

	return s.verifyHierarchy(ctx, runID)
}

// resolveScope turns a scope into a bounded id set: explicit ids win,
// then query-scoped search, then the whole corpus.
func (s *TopicService) resolveScope(ctx context.Context, scope domain.TopicScope, maxDocs int) ([]int64, error) {
	switch {
	case len(scope.DocIDs) > 0:
		ids := slices.Clone(scope.DocIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)
		if len(ids) > maxDocs {
			ids = ids[:maxDocs]
		}
		return ids, nil

	case scope.Query != "":
		if s.search == nil {
			return nil, fmt.Errorf("%w: query-scoped build needs the search service", domain.ErrInvalidInput)
		}
		// Lexical scope resolution: deterministic and independent of
		// embedding availability.
		results, err := s.search.Search(ctx, scope.Query, domain.SearchOptions{
			Limit: maxDocs,
			Mode:  domain.SearchModeLexical,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving query scope: %w", err)
		}
		ids := make([]int64, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.DocID)
		}
		return ids, nil

	default:
		ids, err := s.notes.ListIDs(ctx, maxDocs, 0)
		if err != nil {
			return nil, fmt.Errorf("listing notes: %w", err)
		}
		return ids, nil
	}
}

// activeRef is the embedding space builds run against.
func (s *TopicService) activeRef(cfg domain.AppSettings) domain.EmbeddingRef {
	if s.embedder != nil {
		return domain.EmbeddingRef{Backend: s.embedder.Backend(), Model: s.embedder.ModelName()}
	}
	return cfg.Embedding.Ref()
}

// onClusterProgress folds streamed clusterer events into the pollable
// status.
func (s *TopicService) onClusterProgress(p driven.ClusterProgress) {
	switch p.Type {
	case "stage":
		s.setMessage(p.Stage)
	case "embedding_progress":
		s.setMessage(fmt.Sprintf("embedding %d/%d", p.Completed, p.Total))
	case "warning":
		logger.Warn("Clusterer: %s", p.Message)
	case "hierarchy_debug":
		logger.Debug("hierarchy: topics=%d parents=%d/%d maxLevel=%d",
			p.TotalTopics, p.ParentsEmitted, p.ParentsExpected, p.MaxLevel)
	}
}

// persistFallback writes the degenerate single-topic run used when
// clustering is impossible or produced nothing persistable: topic id
// 0, every document a member, no parent, no terms.
func (s *TopicService) persistFallback(ctx context.Context, run domain.TopicRun, docs []driven.ClusterDocument, embeds [][]float32, queryVec []float32) error {
	s.setState(domain.TopicStatePersisting, "persisting single-topic fallback")

	centroid := meanVector(embeds)
	var queryCos *float64
	if queryVec != nil && centroid != nil {
		c := domain.Cosine(queryVec, centroid)
		queryCos = &c
	}

	topic := domain.Topic{
		RunID:    run.RunID,
		TopicID:  domain.FallbackTopicID,
		Label:    "All notes",
		Level:    0,
		Size:     len(docs),
		QueryCos: queryCos,
		Centroid: centroid,
	}

	topicDocs := make([]domain.TopicDoc, len(docs))
	for i, d := range docs {
		cos := 0.0
		if centroid != nil {
			cos = domain.Cosine(embeds[i], centroid)
		}
		topicDocs[i] = domain.TopicDoc{
			RunID:   run.RunID,
			TopicID: domain.FallbackTopicID,
			DocID:   d.ID,
			Cos:     cos,
		}
	}

	if err := s.topics.SaveRun(ctx, run, []domain.Topic{topic}, nil, topicDocs); err != nil {
		return fmt.Errorf("persisting fallback run %s: %w", run.RunID, err)
	}
	return nil
}

// verifyHierarchy re-reads the just-persisted run and checks parent
// integrity. A broken hierarchy corrupts every downstream consumer, so
// this failure is fatal and never silently degraded.
func (s *TopicService) verifyHierarchy(ctx context.Context, runID string) error {
	topics, err := s.topics.GetTopics(ctx, runID)
	if err != nil {
		return fmt.Errorf("verifying run %s: %w", runID, err)
	}

	present := make(map[int]struct{}, len(topics))
	for _, t := range topics {
		present[t.TopicID] = struct{}{}
	}

	hasParent := false
	for _, t := range topics {
		if t.ParentID == nil {
			continue
		}
		hasParent = true
		if _, ok := present[*t.ParentID]; !ok {
			return fmt.Errorf("%w: run %s topic %d references missing parent %d", domain.ErrHierarchyIntegrity, runID, t.TopicID, *t.ParentID)
		}
	}
	if !hasParent && len(topics) > 1 {
		return fmt.Errorf("%w: run %s has %d topics but no parent links", domain.ErrHierarchyIntegrity, runID, len(topics))
	}
	return nil
}

// setState, setMessage, setCounts and setError mutate the pollable
// status under the service lock.
func (s *TopicService) setState(state domain.TopicBuildState, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.Message = message
}

func (s *TopicService) setMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Message = message
}

func (s *TopicService) setCounts(total, usable int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.DocsTotal = total
	s.status.DocsUsable = usable
}

func (s *TopicService) setError(err error) {
	logger.Error("topic build failed: %v", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = domain.TopicStateError
	s.status.Err = err.Error()
}

// validateClusterResult rejects results without at least one
// non-outlier topic holding at least one member.
func validateClusterResult(result *driven.ClusterResult) error {
	if result == nil {
		return fmt.Errorf("%w: clusterer returned no payload", domain.ErrClusterFailed)
	}
	for _, t := range result.Topics {
		if t.TopicID == domain.OutlierTopicID {
			continue
		}
		if len(t.Docs) > 0 || t.Size > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: no non-outlier topic with members (topics=%d outliers=%d), try a larger scope", domain.ErrClusterFailed, len(result.Topics), result.Meta.Outliers)
}

// assembleTopicRows converts the clusterer payload into persistence
// rows: outlier topics are dropped, member assignments are restricted
// to the run's input set, centroids are means of member vectors, and
// cosines against centroid and run query are attached.
func assembleTopicRows(runID string, result *driven.ClusterResult, vecByID map[int64][]float32, queryVec []float32) ([]domain.Topic, []domain.TopicTerm, []domain.TopicDoc) {
	var (
		topics []domain.Topic
		terms  []domain.TopicTerm
		docs   []domain.TopicDoc
	)

	for _, ct := range result.Topics {
		if ct.TopicID == domain.OutlierTopicID {
			continue
		}

		memberVecs := make([][]float32, 0, len(ct.Docs))
		members := make([]driven.ClusteredTopicDoc, 0, len(ct.Docs))
		for _, d := range ct.Docs {
			v, ok := vecByID[d.ID]
			if !ok {
				// Outside the input set, excluded.
				continue
			}
			members = append(members, d)
			memberVecs = append(memberVecs, v)
		}

		centroid := meanVector(memberVecs)

		var queryCos *float64
		if queryVec != nil && centroid != nil {
			c := domain.Cosine(queryVec, centroid)
			queryCos = &c
		}

		label := ct.Label
		if label == "" {
			label = fmt.Sprintf("topic %d", ct.TopicID)
		}
		size := ct.Size
		if size == 0 {
			size = len(members)
		}

		topics = append(topics, domain.Topic{
			RunID:    runID,
			TopicID:  ct.TopicID,
			ParentID: ct.ParentID,
			Label:    label,
			Level:    ct.Level,
			Size:     size,
			Score:    ct.Score,
			QueryCos: queryCos,
			Centroid: centroid,
		})

		for _, t := range ct.Terms {
			terms = append(terms, domain.TopicTerm{
				RunID:   runID,
				TopicID: ct.TopicID,
				Term:    t.Term,
				Score:   t.Score,
				Rank:    t.Rank,
			})
		}

		for i, d := range members {
			cos := 0.0
			if centroid != nil {
				cos = domain.Cosine(memberVecs[i], centroid)
			}
			weight := 0.0
			if d.Weight != nil {
				weight = *d.Weight
			}
			docs = append(docs, domain.TopicDoc{
				RunID:   runID,
				TopicID: ct.TopicID,
				DocID:   d.ID,
				Weight:  weight,
				Cos:     cos,
			})
		}
	}

	return topics, terms, docs
}

// deriveClusterParams scales clustering hyperparameters with document
// count: more documents get coarser clustering so topic counts stay
// readable, tiny corpora get floors loosened so clustering is possible
// at all.
func deriveClusterParams(docCount int) driven.ClusterParams {
	p := driven.ClusterParams{
		UMAP: driven.UMAPParams{
			NNeighbors:  15,
			NComponents: 15,
			MinDist:     0.0,
			Metric:      "cosine",
			RandomState: 42,
		},
		HDBSCAN: driven.HDBSCANParams{
			MinClusterSize:         8,
			Metric:                 "euclidean",
			ClusterSelectionMethod: "eom",
		},
		Vectorizer: driven.VectorizerParams{
			NgramRange: [2]int{1, 3},
			MinDf:      1,
		},
		TopNTerms: 10,
		Hierarchy: driven.HierarchyParams{
			UseCTFIDF: true,
			Linkage:   "average",
		},
	}

	switch {
	case docCount >= 40000:
		p.UMAP.NNeighbors = 50
		p.HDBSCAN.MinClusterSize = 60
		p.Vectorizer.MinDf = 5
	case docCount >= 20000:
		p.UMAP.NNeighbors = 40
		p.HDBSCAN.MinClusterSize = 40
		p.Vectorizer.MinDf = 4
	case docCount >= 10000:
		p.UMAP.NNeighbors = 30
		p.HDBSCAN.MinClusterSize = 25
		p.Vectorizer.MinDf = 3
	case docCount >= 5000:
		p.UMAP.NNeighbors = 25
		p.HDBSCAN.MinClusterSize = 15
		p.Vectorizer.MinDf = 2
	case docCount >= 1500:
		p.UMAP.NNeighbors = 20
		p.HDBSCAN.MinClusterSize = 10
		p.Vectorizer.MinDf = 2
	}

	// Small corpora: neighbour and cluster floors must fit the data.
	if docCount <= p.UMAP.NNeighbors {
		p.UMAP.NNeighbors = max(2, docCount-1)
	}
	if docCount < 4*p.HDBSCAN.MinClusterSize {
		p.HDBSCAN.MinClusterSize = max(2, docCount/4)
	}
	if docCount <= p.UMAP.NComponents {
		p.UMAP.NComponents = max(2, docCount-2)
	}

	p.MinTopicSize = p.HDBSCAN.MinClusterSize
	return p
}

// dominantDimension picks the most common vector length in a row set.
func dominantDimension(rows []domain.EmbeddingVector) int {
	counts := make(map[int]int)
	for _, r := range rows {
		counts[r.Dim]++
	}
	best, bestCount := 0, 0
	for dim, n := range counts {
		if n > bestCount || (n == bestCount && dim > best) {
			best, bestCount = dim, n
		}
	}
	return best
}

// meanVector is the elementwise mean of equal-length vectors; vectors
// of any other length are skipped. Nil when nothing is usable.
func meanVector(vecs [][]float32) []float32 {
	dim := 0
	for _, v := range vecs {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)
	n := 0
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i, x := range sum {
		out[i] = float32(x / float64(n))
	}
	return out
}
