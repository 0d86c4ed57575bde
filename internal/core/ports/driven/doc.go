// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - NoteStore: Read-only access to notes and their full-text index
//   - EmbeddingStore: Vector persistence per (note, backend, model)
//   - TopicStore: Topic run/tree persistence
//   - KeywordExtractor: Salient-term extraction for lexical retrieval
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it,
//     semantic and hybrid search are disabled.
//   - AnnIndex: Approximate nearest-neighbour search. Without it,
//     vector retrieval uses exact scans.
//   - Reranker: Result reranking. Without it, the fused order stands.
//   - Clusterer: External topic clustering. Without it, topic builds
//     fail with an actionable error; search is unaffected.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
