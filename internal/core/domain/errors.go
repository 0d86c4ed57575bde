package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding backend is not configured.
	// Semantic and hybrid search are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrRerankUnavailable indicates the reranking service is not configured.
	ErrRerankUnavailable = errors.New("rerank service unavailable")

	// ErrNoVector indicates a note has no stored vector for the active
	// backend and model.
	ErrNoVector = errors.New("no stored vector")

	// ErrDimensionMismatch indicates a vector's length disagrees with the
	// index or query it was offered to.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrRateLimited indicates a provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrBuildInProgress indicates a long-running build is already active.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrNoUsableDocuments indicates a topic build found no documents with
	// both usable text and a stored vector.
	ErrNoUsableDocuments = errors.New("no usable documents")

	// ErrClusterFailed indicates the external clustering process failed or
	// returned an unusable result.
	ErrClusterFailed = errors.New("clustering failed")

	// ErrHierarchyIntegrity indicates a persisted topic hierarchy is
	// inconsistent. Deliberately fatal: a broken tree corrupts every
	// downstream consumer, so it is never silently degraded.
	ErrHierarchyIntegrity = errors.New("topic hierarchy integrity violation")
)
