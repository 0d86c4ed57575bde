package sqlite

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	// Create a temporary directory for the test database
	tempDir, err := os.MkdirTemp("", "notelens-test-*")
	require.NoError(t, err)

	// Create store in temp directory
	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	// Return cleanup function
	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

func testRef() domain.EmbeddingRef {
	return domain.EmbeddingRef{Backend: domain.BackendOpenAI, Model: "text-embedding-3-small"}
}

func seedNotes(t *testing.T, store *Store, notes ...domain.Note) {
	t.Helper()
	require.NoError(t, store.Notes().UpsertNotes(context.Background(), notes))
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.FileExists(t, store.Path())
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "notelens-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store1, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	// Reopening must not re-run applied migrations.
	store2, err := NewStore(tempDir)
	require.NoError(t, err)
	assert.NoError(t, store2.Close())
}

// ==================== Note Store Tests ====================

func TestNoteStore_UpsertAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store, domain.Note{
		ID:     1,
		Fields: []string{"Finasteride", "treats androgenetic alopecia"},
	})

	note, err := store.NoteStore().GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Finasteride", "treats androgenetic alopecia"}, note.Fields)

	first, err := store.NoteStore().FirstField(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Finasteride", first)

	last, err := store.NoteStore().LastField(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "treats androgenetic alopecia", last)
}

func TestNoteStore_GetMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.NoteStore().GetNote(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoteStore_FullTextSearch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store,
		domain.Note{ID: 1, Fields: []string{"alpha", "the mitochondria is the powerhouse of the cell"}},
		domain.Note{ID: 2, Fields: []string{"beta", "cells divide by mitosis"}},
		domain.Note{ID: 3, Fields: []string{"gamma", "unrelated text about geography"}},
	)

	hits, err := store.NoteStore().FullTextSearch(ctx, "mitochondria", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
	// bm25 convention: more negative means more relevant.
	assert.Less(t, hits[0].Score, 0.0)
}

func TestNoteStore_FullTextSearchOrdering(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store,
		domain.Note{ID: 1, Fields: []string{"enzyme", "enzyme enzyme enzyme kinetics"}},
		domain.Note{ID: 2, Fields: []string{"note", "one mention of enzyme among much much longer other text here"}},
	)

	hits, err := store.NoteStore().FullTextSearch(ctx, "enzyme", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.LessOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestNoteStore_UpsertReplacesIndexEntry(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store, domain.Note{ID: 1, Fields: []string{"old content about zebras"}})
	seedNotes(t, store, domain.Note{ID: 1, Fields: []string{"new content about lions"}})

	hits, err := store.NoteStore().FullTextSearch(ctx, "zebras", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.NoteStore().FullTextSearch(ctx, "lions", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
}

func TestNoteStore_MatchCountAndVocab(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store,
		domain.Note{ID: 1, Fields: []string{"the heart pumps blood"}},
		domain.Note{ID: 2, Fields: []string{"blood carries oxygen"}},
		domain.Note{ID: 3, Fields: []string{"neurons carry signals"}},
	)

	count, err := store.NoteStore().MatchCount(ctx, "blood")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	df, err := store.NoteStore().TermDocFreq(ctx, "blood")
	require.NoError(t, err)
	assert.Equal(t, 2, df)

	df, err = store.NoteStore().TermDocFreq(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, 0, df)
}

func TestNoteStore_ListIDsAndDocCount(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store,
		domain.Note{ID: 5, Fields: []string{"e"}},
		domain.Note{ID: 1, Fields: []string{"a"}},
		domain.Note{ID: 3, Fields: []string{"c"}},
	)

	count, err := store.NoteStore().DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	ids, err := store.NoteStore().ListIDs(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	ids, err = store.NoteStore().ListIDs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}

func TestNoteStore_DeleteNotes(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedNotes(t, store,
		domain.Note{ID: 1, Fields: []string{"keep this aardvark"}},
		domain.Note{ID: 2, Fields: []string{"drop this aardvark"}},
	)
	require.NoError(t, store.Notes().DeleteNotes(ctx, []int64{2}))

	_, err := store.NoteStore().GetNote(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	hits, err := store.NoteStore().FullTextSearch(ctx, "aardvark", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].ID)
}

// ==================== Embedding Store Tests ====================

func TestEmbeddingStore_UpsertAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	vec := domain.NewEmbeddingVector(1, ref, []float32{0.1, 0.2, 0.3}, "hash-1")
	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{vec}))

	got, err := store.EmbeddingStore().GetVector(ctx, 1, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Ref)
	assert.Equal(t, 3, got.Dim)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, got.Vec, 1e-6)
	assert.InDelta(t, vec.Norm, got.Norm, 1e-9)
	assert.Equal(t, "hash-1", got.ContentHash)
}

func TestEmbeddingStore_UpsertOverwrites(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	first := domain.NewEmbeddingVector(1, ref, []float32{1, 0}, "old")
	second := domain.NewEmbeddingVector(1, ref, []float32{0, 1, 0}, "new")
	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{first}))
	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{second}))

	got, err := store.EmbeddingStore().GetVector(ctx, 1, ref)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Dim)
	assert.Equal(t, "new", got.ContentHash)

	count, err := store.EmbeddingStore().CountByRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmbeddingStore_GetVectorMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.EmbeddingStore().GetVector(context.Background(), 7, testRef())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddingStore_RefsAreDistinct(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	openai := testRef()
	gemini := domain.EmbeddingRef{Backend: domain.BackendGemini, Model: "text-embedding-004"}

	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, openai, []float32{1, 0}, ""),
	}))

	_, err := store.EmbeddingStore().GetVector(ctx, 1, gemini)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmbeddingStore_GetVectorsSkipsAbsent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, ref, []float32{1, 0}, ""),
		domain.NewEmbeddingVector(3, ref, []float32{0, 1}, ""),
	}))

	got, err := store.EmbeddingStore().GetVectors(ctx, []int64{1, 2, 3, 4}, ref)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestEmbeddingStore_GetVectorsLargeIDSet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	// More ids than one statement's parameter budget, forcing chunking.
	ids := make([]int64, 2000)
	rows := make([]domain.EmbeddingVector, 2000)
	for i := range ids {
		ids[i] = int64(i + 1)
		rows[i] = domain.NewEmbeddingVector(int64(i+1), ref, []float32{float32(i), 1}, "")
	}
	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, rows))

	got, err := store.EmbeddingStore().GetVectors(ctx, ids, ref)
	require.NoError(t, err)
	assert.Len(t, got, 2000)
}

func TestEmbeddingStore_ScanByDimension(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, ref, []float32{1, 0, 0, 0}, ""),
		domain.NewEmbeddingVector(2, ref, []float32{0, 1}, ""),
		domain.NewEmbeddingVector(3, ref, []float32{0, 0, 1, 0}, ""),
	}))

	rows, err := store.EmbeddingStore().ScanByDimension(ctx, ref, 4)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].DocID)
	assert.Equal(t, int64(3), rows[1].DocID)

	dims, err := store.EmbeddingStore().Dimensions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, dims)
}

func TestEmbeddingStore_TruncateDimension(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, ref, []float32{3, 4, 12}, ""),
		domain.NewEmbeddingVector(2, ref, []float32{1, 0}, ""),
	}))

	rewritten, err := store.EmbeddingStore().TruncateDimension(ctx, ref, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rewritten)

	got, err := store.EmbeddingStore().GetVector(ctx, 1, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dim)
	assert.InDeltaSlice(t, []float32{3, 4}, got.Vec, 1e-6)
	assert.InDelta(t, 5.0, got.Norm, 1e-9)

	// Already-small vectors stay untouched.
	got, err = store.EmbeddingStore().GetVector(ctx, 2, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dim)
}

func TestEmbeddingStore_TruncateDimensionInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.EmbeddingStore().TruncateDimension(context.Background(), testRef(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbeddingStore_MissingIDsAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	ref := testRef()

	require.NoError(t, store.EmbeddingStore().UpsertVectors(ctx, []domain.EmbeddingVector{
		domain.NewEmbeddingVector(1, ref, []float32{1}, ""),
		domain.NewEmbeddingVector(3, ref, []float32{1}, ""),
	}))

	missing, err := store.EmbeddingStore().MissingIDs(ctx, []int64{1, 2, 3, 4}, ref)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, missing)

	require.NoError(t, store.EmbeddingStore().DeleteVectors(ctx, []int64{1}, ref))
	missing, err = store.EmbeddingStore().MissingIDs(ctx, []int64{1, 2, 3, 4}, ref)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, missing)
}

// ==================== Topic Store Tests ====================

func sampleRun(runID, scopeHash string, createdAt time.Time) domain.TopicRun {
	return domain.TopicRun{
		RunID:      runID,
		ScopeHash:  scopeHash,
		Backend:    domain.BackendOpenAI,
		Model:      "text-embedding-3-small",
		DocCount:   2,
		ParamsJSON: `{"top_n_terms":10}`,
		Query:      "cell biology",
		CreatedAt:  createdAt,
	}
}

func TestTopicStore_SaveAndGetRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := sampleRun("run-1", "scope-a", time.Now().UTC().Truncate(time.Second))
	run.QueryEmbedding = []float32{0.5, 0.5}

	parent := 1
	score := 0.9
	topics := []domain.Topic{
		{RunID: "run-1", TopicID: 1, Label: "biology", Level: 1, Size: 2, Centroid: []float32{1, 0}},
		{RunID: "run-1", TopicID: 0, ParentID: &parent, Label: "cells", Level: 0, Size: 2, Score: &score, Centroid: []float32{0, 1}},
	}
	terms := []domain.TopicTerm{
		{RunID: "run-1", TopicID: 0, Term: "mitosis", Score: 0.8, Rank: 0},
		{RunID: "run-1", TopicID: 0, Term: "nucleus", Score: 0.6, Rank: 1},
	}
	docs := []domain.TopicDoc{
		{RunID: "run-1", TopicID: 0, DocID: 10, Weight: 1, Cos: 0.95},
		{RunID: "run-1", TopicID: 0, DocID: 11, Weight: 0.7, Cos: 0.85},
	}

	require.NoError(t, store.TopicStore().SaveRun(ctx, run, topics, terms, docs))

	got, err := store.TopicStore().GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "scope-a", got.ScopeHash)
	assert.Equal(t, domain.BackendOpenAI, got.Backend)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, got.QueryEmbedding, 1e-6)

	gotTopics, err := store.TopicStore().GetTopics(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotTopics, 2)
	// Ordered by level then topic id, so the leaf comes first.
	assert.Equal(t, 0, gotTopics[0].TopicID)
	require.NotNil(t, gotTopics[0].ParentID)
	assert.Equal(t, 1, *gotTopics[0].ParentID)
	require.NotNil(t, gotTopics[0].Score)
	assert.InDelta(t, 0.9, *gotTopics[0].Score, 1e-9)
	assert.Nil(t, gotTopics[1].ParentID)

	gotTerms, err := store.TopicStore().GetTerms(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, gotTerms, 2)
	assert.Equal(t, "mitosis", gotTerms[0].Term)

	gotDocs, err := store.TopicStore().GetDocs(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, gotDocs, 2)
	assert.Equal(t, int64(10), gotDocs[0].DocID)
}

func TestTopicStore_SaveRunReplaces(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := sampleRun("run-1", "scope-a", time.Now().UTC())
	require.NoError(t, store.TopicStore().SaveRun(ctx, run,
		[]domain.Topic{{RunID: "run-1", TopicID: 0, Label: "old"}}, nil, nil))
	require.NoError(t, store.TopicStore().SaveRun(ctx, run,
		[]domain.Topic{{RunID: "run-1", TopicID: 0, Label: "new"}}, nil, nil))

	topics, err := store.TopicStore().GetTopics(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "new", topics[0].Label)
}

func TestTopicStore_LatestRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-old", "scope-a", base.Add(-time.Hour)), nil, nil, nil))
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-new", "scope-a", base), nil, nil, nil))
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-other", "scope-b", base.Add(time.Hour)), nil, nil, nil))

	latest, err := store.TopicStore().LatestRun(ctx, "scope-a")
	require.NoError(t, err)
	assert.Equal(t, "run-new", latest.RunID)

	_, err = store.TopicStore().LatestRun(ctx, "scope-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopicStore_ListRuns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-1", "a", base.Add(-2*time.Hour)), nil, nil, nil))
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-2", "b", base.Add(-time.Hour)), nil, nil, nil))
	require.NoError(t, store.TopicStore().SaveRun(ctx, sampleRun("run-3", "c", base), nil, nil, nil))

	runs, err := store.TopicStore().ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
}

func TestTopicStore_DeleteRunCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := sampleRun("run-1", "scope-a", time.Now().UTC())
	require.NoError(t, store.TopicStore().SaveRun(ctx, run,
		[]domain.Topic{{RunID: "run-1", TopicID: 0, Label: "t"}},
		[]domain.TopicTerm{{RunID: "run-1", TopicID: 0, Term: "x", Rank: 0}},
		[]domain.TopicDoc{{RunID: "run-1", TopicID: 0, DocID: 1}}))

	require.NoError(t, store.TopicStore().DeleteRun(ctx, "run-1"))

	_, err := store.TopicStore().GetRun(ctx, "run-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	topics, err := store.TopicStore().GetTopics(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, topics)

	terms, err := store.TopicStore().GetTerms(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestTopicStore_DeleteRunCascadesOnFreshConnection(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := sampleRun("run-1", "scope-a", time.Now().UTC())
	require.NoError(t, store.TopicStore().SaveRun(ctx, run,
		[]domain.Topic{{RunID: "run-1", TopicID: 0, Label: "t"}},
		[]domain.TopicTerm{{RunID: "run-1", TopicID: 0, Term: "x", Rank: 0}},
		[]domain.TopicDoc{{RunID: "run-1", TopicID: 0, DocID: 1}}))

	// Force the delete onto a connection the pool has not handed out
	// before. The cascade must hold on every connection, which is why
	// foreign_keys lives in the DSN rather than a one-off PRAGMA.
	store.db.SetMaxIdleConns(0)

	require.NoError(t, store.TopicStore().DeleteRun(ctx, "run-1"))

	for _, table := range []string{"topics", "topic_terms", "topic_docs"} {
		var n int
		require.NoError(t, store.db.QueryRow(
			"SELECT COUNT(*) FROM "+table+" WHERE run_id = ?", "run-1").Scan(&n))
		assert.Zero(t, n, table)
	}
}

// ==================== Blob Codec Tests ====================

func TestFloat32BlobRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	assert.InDeltaSlice(t, in, out, 1e-6)

	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
