// Package memory implements a per-user long-term memory store with
// semantic search and soft versioning.
//
// A memory is an atomic natural-language fact ("Lives in Paris") owned by
// one user. Facts are never edited in place: when new information replaces
// an old fact, the old record is soft-invalidated (is_current=false,
// superseded_at stamped) and a fresh record is created. Superseded records
// stay queryable so historical questions ("where did I live before?") can
// still be answered.
//
// Architecture:
//   - Index: vector storage backend (chromem-go locally, pluggable)
//   - Embedder: text-to-vector conversion (ONNX all-MiniLM locally)
//   - Store: record lifecycle (create, soft-invalidate, erase) and
//     ranked retrieval on top of Index
//   - Reconciler: turns conversational content into store mutations
//     via an external Decider (ADD / UPDATE / SUPERSEDE / NOOP)
//   - Coordinator: fire-and-forget background reconciliation with an
//     explicit drain barrier for shutdown
//
// Writes run in background jobs that may overlap; every store mutation is
// independently idempotent or tolerant of lost-update races, so no global
// lock is taken. See Coordinator for the drain contract.
package memory
