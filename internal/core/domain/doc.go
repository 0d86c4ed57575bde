// Package domain defines the core business entities for Notelens.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Note: A short structured text record with ordered fields
//   - EmbeddingVector: A stored dense vector for one note in one embedding space
//   - Backend / EmbeddingRef: The closed set of embedding backends
//   - TopicRun, Topic, TopicTerm, TopicDoc: A persisted hierarchical topic map
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
