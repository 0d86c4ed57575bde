package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"time"
)

// OutlierTopicID marks the clusterer's bucket of unassigned documents.
// Outlier rows are never persisted.
const OutlierTopicID = -1

// FallbackTopicID is the single topic of a degenerate run where
// clustering was impossible or produced nothing usable.
const FallbackTopicID = 0

// TopicScope describes the document set a topic run is built over.
type TopicScope struct {
	// Query narrows the corpus by search; empty means the whole corpus.
	Query string

	// DocIDs pins an explicit document set. When set, Query is kept
	// only as display context.
	DocIDs []int64
}

// Hash returns a deterministic digest of the scope, used to find the
// latest run for an equivalent scope.
func (s TopicScope) Hash() string {
	h := sha256.New()
	h.Write([]byte("q:" + s.Query))
	ids := slices.Clone(s.DocIDs)
	slices.Sort(ids)
	for _, id := range ids {
		h.Write([]byte("|" + strconv.FormatInt(id, 10)))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// TopicRun is one completed topic-map build over a scope. A run and its
// full tree are written in one transaction; superseded runs for the
// same scope are retained for history.
type TopicRun struct {
	// RunID is the unique run identifier (UUID).
	RunID string

	// ScopeHash is TopicScope.Hash() of the run's input scope.
	ScopeHash string

	// Backend and Model name the embedding space the run used.
	Backend Backend
	Model   string

	// DocCount is the number of documents clustered.
	DocCount int

	// ParamsJSON is the serialized clustering parameter set.
	ParamsJSON string

	// Query is the optional run-level query, and QueryEmbedding its
	// vector; QueryCos on topics is computed against it.
	Query          string
	QueryEmbedding []float32

	// CreatedAt is when the run was persisted.
	CreatedAt time.Time
}

// Topic is one node of a run's topic tree. TopicID is unique within
// the run. A nil ParentID marks a root.
type Topic struct {
	RunID   string
	TopicID int

	// ParentID references another TopicID in the same run, nil for
	// roots. Every non-nil ParentID must resolve within the run.
	ParentID *int

	// Label is the human-readable topic name.
	Label string

	// Level is the depth in the hierarchy, 0 for leaves.
	Level int

	// Size is the number of member documents.
	Size int

	// Score is the clusterer's topic quality score, when provided.
	Score *float64

	// QueryCos is the centroid's cosine against the run query vector,
	// when the run has one.
	QueryCos *float64

	// Centroid is the mean of member vectors.
	Centroid []float32
}

// TopicTerm is one representative term of a topic. Rank orders terms
// by descending importance and is deterministic for a given run.
type TopicTerm struct {
	RunID   string
	TopicID int
	Term    string
	Score   float64
	Rank    int
}

// TopicDoc assigns one document to one topic. Every DocID must belong
// to the run's input set.
type TopicDoc struct {
	RunID   string
	TopicID int
	DocID   int64

	// Weight is the clusterer's membership weight.
	Weight float64

	// Cos is the document's cosine against the topic centroid.
	Cos float64
}

// TopicBuildState is one stage of the topic build state machine.
type TopicBuildState string

// Build states in order of progression. TopicStateError is reachable
// from every other state.
const (
	TopicStatePreparing         TopicBuildState = "preparing"
	TopicStateLoadingText       TopicBuildState = "loading_text"
	TopicStateLoadingEmbeddings TopicBuildState = "loading_embeddings"
	TopicStateAssembling        TopicBuildState = "assembling_documents"
	TopicStateClustering        TopicBuildState = "clustering"
	TopicStatePersisting        TopicBuildState = "persisting"
	TopicStateComplete          TopicBuildState = "complete"
	TopicStateError             TopicBuildState = "error"
)

// Terminal returns true when the build has finished, successfully or not.
func (s TopicBuildState) Terminal() bool {
	return s == TopicStateComplete || s == TopicStateError
}

// TopicBuildStatus is pollable coarse progress for a running build.
type TopicBuildStatus struct {
	// State is the current build stage.
	State TopicBuildState

	// Message is a human-readable description of the current stage.
	Message string

	// RunID is set once the run record is created.
	RunID string

	// DocsTotal is the size of the resolved input set; DocsUsable is
	// how many survived text+vector assembly.
	DocsTotal  int
	DocsUsable int

	// StartedAt is when the build began.
	StartedAt time.Time

	// Err carries the failure message when State is error.
	Err string
}
