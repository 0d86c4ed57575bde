// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - NoteStore: Read access to the note corpus and its FTS5 full-text index
//   - EmbeddingStore: Vector persistence per (note, backend, model)
//   - TopicStore: Topic run and tree persistence
//
// Vectors are stored as raw little-endian float32 blobs alongside their
// precomputed L2 norm, so cosine scans never recompute norms. Full-text
// relevance uses the bm25() convention: ascending scores, more negative
// meaning more relevant. Per-term document frequencies come from an
// fts5vocab table instead of running queries.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.notelens/data/notelens.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
