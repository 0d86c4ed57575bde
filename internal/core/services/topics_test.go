package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/notelens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// mockClusterer implements driven.Clusterer for testing.
type mockClusterer struct {
	result *driven.ClusterResult
	err    error
	calls  int
	gotReq driven.ClusterRequest
}

func (m *mockClusterer) Cluster(_ context.Context, req driven.ClusterRequest, onProgress func(driven.ClusterProgress)) (*driven.ClusterResult, error) {
	m.calls++
	m.gotReq = req
	if onProgress != nil {
		onProgress(driven.ClusterProgress{Type: "stage", Stage: "reducing"})
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// blockingClusterer parks inside Cluster until released.
type blockingClusterer struct {
	started chan struct{}
	release chan struct{}
	result  *driven.ClusterResult
}

func (b *blockingClusterer) Cluster(_ context.Context, _ driven.ClusterRequest, _ func(driven.ClusterProgress)) (*driven.ClusterResult, error) {
	close(b.started)
	<-b.release
	return b.result, nil
}

// mockSearchService implements driving.SearchService for scope
// resolution tests.
type mockSearchService struct {
	results  []domain.SearchResult
	err      error
	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	m.gotQuery = query
	m.gotOpts = opts
	return m.results, m.err
}

func (m *mockSearchService) Similar(_ context.Context, _ int64, _ int) ([]domain.SearchResult, error) {
	return nil, nil
}

func setupTopicService(t *testing.T) (*TopicService, *memory.NoteStore, *memory.EmbeddingStore, *memory.TopicStore, *mockClusterer) {
	t.Helper()
	notes := memory.NewNoteStore()
	vectors := memory.NewEmbeddingStore()
	topics := memory.NewTopicStore()
	clusterer := &mockClusterer{}
	svc := NewTopicService(notes, vectors, topics, clusterer, newTestSettings(t))
	svc.SetEmbeddingService(&mockEmbedder{vec: []float32{1, 0}})
	return svc, notes, vectors, topics, clusterer
}

func seedClusterCorpus(t *testing.T, notes *memory.NoteStore, vectors *memory.EmbeddingStore, vecs map[int64][]float32) {
	t.Helper()
	rows := make([]domain.EmbeddingVector, 0, len(vecs))
	for id, v := range vecs {
		notes.Put(domain.Note{ID: id, Fields: []string{"note", "body text"}})
		rows = append(rows, domain.NewEmbeddingVector(id, searchTestRef, v, ""))
	}
	require.NoError(t, vectors.UpsertVectors(context.Background(), rows))
}

func floatPtr(v float64) *float64 { return &v }

func TestTopicBuild_SingleDocumentFallback(t *testing.T) {
	svc, notes, vectors, topics, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{7: {1, 0}})

	runID, err := svc.Build(context.Background(), domain.TopicScope{})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	// Clustering never ran.
	assert.Zero(t, clusterer.calls)

	run, err := topics.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.DocCount)
	assert.Equal(t, domain.BackendLocal, run.Backend)
	assert.Equal(t, "test-embed", run.Model)

	got, err := topics.GetTopics(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.FallbackTopicID, got[0].TopicID)
	assert.Equal(t, "All notes", got[0].Label)
	assert.Equal(t, 0, got[0].Level)
	assert.Equal(t, 1, got[0].Size)
	assert.Nil(t, got[0].ParentID)
	assert.Nil(t, got[0].QueryCos)

	terms, err := topics.GetTerms(context.Background(), runID, domain.FallbackTopicID)
	require.NoError(t, err)
	assert.Empty(t, terms)

	docs, err := topics.GetDocs(context.Background(), runID, domain.FallbackTopicID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(7), docs[0].DocID)
	assert.InDelta(t, 1.0, docs[0].Cos, 1e-6)

	assert.Equal(t, domain.TopicStateComplete, svc.Status().State)
}

func TestTopicBuild_NoEmbeddingBackend(t *testing.T) {
	notes := memory.NewNoteStore()
	notes.Put(domain.Note{ID: 1, Fields: []string{"note"}})
	svc := NewTopicService(notes, memory.NewEmbeddingStore(), memory.NewTopicStore(), &mockClusterer{}, newTestSettings(t))

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, domain.TopicStateError, svc.Status().State)
}

func TestTopicBuild_EmptyScope(t *testing.T) {
	svc, _, _, _, _ := setupTopicService(t)

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrNoUsableDocuments)
}

func TestTopicBuild_NoUsableDocuments(t *testing.T) {
	svc, notes, _, _, _ := setupTopicService(t)
	notes.Put(domain.Note{ID: 1, Fields: []string{"text but no vector"}})
	notes.Put(domain.Note{ID: 2, Fields: []string{"also unvectored"}})

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrNoUsableDocuments)
	assert.Equal(t, domain.TopicStateError, svc.Status().State)
}

func TestTopicBuild_ClusterFlow(t *testing.T) {
	svc, notes, vectors, topics, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0.9, 0.1},
		3: {0, 1},
		4: {0.1, 0.9},
	})

	parent := 100
	clusterer.result = &driven.ClusterResult{
		Topics: []driven.ClusteredTopic{
			{TopicID: domain.OutlierTopicID, Label: "outliers"},
			{
				TopicID: 0, ParentID: &parent, Level: 0, Label: "energy", Size: 2,
				Score: floatPtr(0.7),
				Terms: []driven.ClusteredTerm{
					{Term: "atp", Score: 0.9, Rank: 0},
					{Term: "cycle", Score: 0.5, Rank: 1},
				},
				Docs: []driven.ClusteredTopicDoc{
					{ID: 1, Weight: floatPtr(0.8)},
					{ID: 2},
					{ID: 99}, // outside the input set
				},
			},
			{
				TopicID: 1, ParentID: &parent, Level: 0, Label: "",
				Docs: []driven.ClusteredTopicDoc{{ID: 3}, {ID: 4}},
			},
			{TopicID: parent, Level: 1, Label: "root", Size: 4},
		},
		Meta: driven.ClusterMeta{NrTopics: 3},
	}

	runID, err := svc.Build(context.Background(), domain.TopicScope{})
	require.NoError(t, err)

	// The clusterer received every usable document with its vector,
	// and parameters loosened for the tiny corpus.
	require.Equal(t, 1, clusterer.calls)
	assert.Len(t, clusterer.gotReq.Documents, 4)
	assert.Len(t, clusterer.gotReq.Embeddings, 4)
	assert.Equal(t, 3, clusterer.gotReq.Params.UMAP.NNeighbors)
	assert.Equal(t, 2, clusterer.gotReq.Params.HDBSCAN.MinClusterSize)
	assert.Equal(t, 2, clusterer.gotReq.Params.UMAP.NComponents)

	got, err := topics.GetTopics(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Level then id ordering; the outlier bucket was dropped.
	assert.Equal(t, 0, got[0].TopicID)
	assert.Equal(t, 1, got[1].TopicID)
	assert.Equal(t, parent, got[2].TopicID)
	require.NotNil(t, got[0].ParentID)
	assert.Equal(t, parent, *got[0].ParentID)

	// Empty labels fall back to a numbered one; zero sizes to the
	// member count.
	assert.Equal(t, "topic 1", got[1].Label)
	assert.Equal(t, 2, got[1].Size)

	terms, err := topics.GetTerms(context.Background(), runID, 0)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "atp", terms[0].Term)

	// Assignments outside the input set are dropped.
	docs, err := topics.GetDocs(context.Background(), runID, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(1), docs[0].DocID)
	assert.Equal(t, 0.8, docs[0].Weight)
	assert.Greater(t, docs[0].Cos, 0.9)

	assert.Equal(t, domain.TopicStateComplete, svc.Status().State)
	assert.Equal(t, 4, svc.Status().DocsUsable)
}

func TestTopicBuild_HierarchyViolation(t *testing.T) {
	svc, notes, vectors, _, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
	})

	// Two persisted roots with no links: not a hierarchy.
	clusterer.result = &driven.ClusterResult{
		Topics: []driven.ClusteredTopic{
			{TopicID: 0, Label: "a", Docs: []driven.ClusteredTopicDoc{{ID: 1}}},
			{TopicID: 1, Label: "b", Docs: []driven.ClusteredTopicDoc{{ID: 2}}},
		},
	}

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrHierarchyIntegrity)
	assert.Equal(t, domain.TopicStateError, svc.Status().State)
}

func TestTopicBuild_UnresolvedParent(t *testing.T) {
	svc, notes, vectors, _, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
	})

	missing := 42
	clusterer.result = &driven.ClusterResult{
		Topics: []driven.ClusteredTopic{
			{TopicID: 0, ParentID: &missing, Label: "orphan", Docs: []driven.ClusteredTopicDoc{{ID: 1}, {ID: 2}}},
		},
	}

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrHierarchyIntegrity)
}

func TestTopicBuild_OnlyOutliers(t *testing.T) {
	svc, notes, vectors, _, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
	})

	clusterer.result = &driven.ClusterResult{
		Topics: []driven.ClusteredTopic{
			{TopicID: domain.OutlierTopicID, Size: 2, Docs: []driven.ClusteredTopicDoc{{ID: 1}, {ID: 2}}},
		},
		Meta: driven.ClusterMeta{Outliers: 2},
	}

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrClusterFailed)
}

func TestTopicBuild_ClustererError(t *testing.T) {
	svc, notes, vectors, _, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0, 1},
	})

	boom := errors.New("python exploded")
	clusterer.err = boom

	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.TopicStateError, svc.Status().State)
}

func TestTopicBuild_Exclusive(t *testing.T) {
	svc, notes, vectors, _, _ := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		1: {1, 0},
		2: {0.9, 0.1},
	})

	blocking := &blockingClusterer{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result: &driven.ClusterResult{
			Topics: []driven.ClusteredTopic{
				{TopicID: 0, Label: "all", Docs: []driven.ClusteredTopicDoc{{ID: 1}, {ID: 2}}},
			},
		},
	}
	svc.clusterer = blocking

	done := make(chan error, 1)
	go func() {
		_, err := svc.Build(context.Background(), domain.TopicScope{})
		done <- err
	}()

	<-blocking.started
	_, err := svc.Build(context.Background(), domain.TopicScope{})
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	close(blocking.release)
	require.NoError(t, <-done)
}

func TestTopicBuild_ExplicitDocIDs(t *testing.T) {
	svc, notes, vectors, _, clusterer := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		2: {1, 0},
		4: {0, 1},
	})

	clusterer.result = &driven.ClusterResult{
		Topics: []driven.ClusteredTopic{
			{TopicID: 0, Label: "all", Docs: []driven.ClusteredTopicDoc{{ID: 2}, {ID: 4}}},
		},
	}

	// Duplicates collapse; ids without notes drop out of the usable set.
	_, err := svc.Build(context.Background(), domain.TopicScope{DocIDs: []int64{4, 2, 2, 9}})
	require.NoError(t, err)

	require.Len(t, clusterer.gotReq.Documents, 2)
	assert.Equal(t, int64(2), clusterer.gotReq.Documents[0].ID)
	assert.Equal(t, int64(4), clusterer.gotReq.Documents[1].ID)
}

func TestTopicBuild_QueryScope(t *testing.T) {
	svc, notes, vectors, topics, _ := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{
		5: {1, 0},
	})

	search := &mockSearchService{results: []domain.SearchResult{{DocID: 5}}}
	svc.SetSearchService(search)

	runID, err := svc.Build(context.Background(), domain.TopicScope{Query: "mitochondria"})
	require.NoError(t, err)

	// Scope resolution ran lexically with the build's document cap.
	assert.Equal(t, "mitochondria", search.gotQuery)
	assert.Equal(t, domain.SearchModeLexical, search.gotOpts.Mode)
	assert.Equal(t, 400, search.gotOpts.Limit)

	run, err := topics.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "mitochondria", run.Query)
	assert.Equal(t, []float32{1, 0}, run.QueryEmbedding)

	got, err := topics.GetTopics(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].QueryCos)
	assert.InDelta(t, 1.0, *got[0].QueryCos, 1e-6)
}

func TestTopicBuild_QueryScopeWithoutSearch(t *testing.T) {
	svc, notes, vectors, _, _ := setupTopicService(t)
	seedClusterCorpus(t, notes, vectors, map[int64][]float32{1: {1, 0}})

	_, err := svc.Build(context.Background(), domain.TopicScope{Query: "anything"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTopicTree(t *testing.T) {
	svc, _, _, topics, _ := setupTopicService(t)
	ctx := context.Background()

	parent := 1
	require.NoError(t, topics.SaveRun(ctx,
		domain.TopicRun{RunID: "run-1"},
		[]domain.Topic{
			{RunID: "run-1", TopicID: 1, Level: 1, Label: "root"},
			{RunID: "run-1", TopicID: 0, ParentID: &parent, Level: 0, Label: "leaf"},
		},
		[]domain.TopicTerm{{RunID: "run-1", TopicID: 0, Term: "atp", Rank: 0}},
		[]domain.TopicDoc{{RunID: "run-1", TopicID: 0, DocID: 3}},
	))

	nodes, err := svc.Tree(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "leaf", nodes[0].Topic.Label)
	require.Len(t, nodes[0].Terms, 1)
	assert.Equal(t, "atp", nodes[0].Terms[0].Term)
	require.Len(t, nodes[0].Docs, 1)
	assert.Equal(t, int64(3), nodes[0].Docs[0].DocID)
	assert.Empty(t, nodes[1].Terms)

	_, err = svc.Tree(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopicDeleteRun(t *testing.T) {
	svc, _, _, topics, _ := setupTopicService(t)
	ctx := context.Background()

	require.NoError(t, topics.SaveRun(ctx, domain.TopicRun{RunID: "run-1"}, nil, nil, nil))
	require.NoError(t, svc.DeleteRun(ctx, "run-1"))

	err := svc.DeleteRun(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeriveClusterParams_Thresholds(t *testing.T) {
	tests := []struct {
		docs           int
		nNeighbors     int
		minClusterSize int
		minDf          int
	}{
		{300, 15, 8, 1},
		{1500, 20, 10, 2},
		{5000, 25, 15, 2},
		{10000, 30, 25, 3},
		{20000, 40, 40, 4},
		{40000, 50, 60, 5},
	}
	for _, tt := range tests {
		p := deriveClusterParams(tt.docs)
		assert.Equal(t, tt.nNeighbors, p.UMAP.NNeighbors, "docs=%d", tt.docs)
		assert.Equal(t, tt.minClusterSize, p.HDBSCAN.MinClusterSize, "docs=%d", tt.docs)
		assert.Equal(t, tt.minDf, p.Vectorizer.MinDf, "docs=%d", tt.docs)
		assert.Equal(t, p.HDBSCAN.MinClusterSize, p.MinTopicSize, "docs=%d", tt.docs)
	}
}

func TestDeriveClusterParams_SmallCorpus(t *testing.T) {
	p := deriveClusterParams(10)
	assert.Equal(t, 9, p.UMAP.NNeighbors)
	assert.Equal(t, 2, p.HDBSCAN.MinClusterSize)
	assert.Equal(t, 8, p.UMAP.NComponents)
	assert.Equal(t, 2, p.MinTopicSize)

	// Floors hold even for the minimum clusterable corpus.
	p = deriveClusterParams(2)
	assert.GreaterOrEqual(t, p.UMAP.NNeighbors, 2)
	assert.GreaterOrEqual(t, p.HDBSCAN.MinClusterSize, 2)
	assert.GreaterOrEqual(t, p.UMAP.NComponents, 2)
}

func TestValidateClusterResult(t *testing.T) {
	assert.ErrorIs(t, validateClusterResult(nil), domain.ErrClusterFailed)

	empty := &driven.ClusterResult{Topics: []driven.ClusteredTopic{
		{TopicID: domain.OutlierTopicID, Size: 5},
	}}
	assert.ErrorIs(t, validateClusterResult(empty), domain.ErrClusterFailed)

	ok := &driven.ClusterResult{Topics: []driven.ClusteredTopic{
		{TopicID: domain.OutlierTopicID, Size: 5},
		{TopicID: 0, Size: 3},
	}}
	assert.NoError(t, validateClusterResult(ok))
}

func TestDominantDimension(t *testing.T) {
	rows := []domain.EmbeddingVector{
		{Dim: 768}, {Dim: 768}, {Dim: 1536},
	}
	assert.Equal(t, 768, dominantDimension(rows))

	// Ties prefer the larger dimension.
	rows = []domain.EmbeddingVector{{Dim: 768}, {Dim: 1536}}
	assert.Equal(t, 1536, dominantDimension(rows))

	assert.Equal(t, 0, dominantDimension(nil))
}

func TestMeanVector(t *testing.T) {
	got := meanVector([][]float32{{1, 0}, {0, 1}})
	assert.Equal(t, []float32{0.5, 0.5}, got)

	// Vectors of a different length are skipped.
	got = meanVector([][]float32{{1, 0}, {1, 1, 1}, {3, 0}})
	assert.Equal(t, []float32{2, 0}, got)

	assert.Nil(t, meanVector(nil))
	assert.Nil(t, meanVector([][]float32{{}}))
}
