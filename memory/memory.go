package memory

import (
	"context"
)

// Document is the unit the Index persists: an opaque id, the raw fact text,
// its embedding, and flat string metadata. The Store owns the mapping
// between MemoryRecord fields and Document metadata keys; the Index treats
// metadata as opaque.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Candidate is a Document returned from a similarity query together with
// its cosine distance to the query vector (0 = identical, 2 = opposite).
// Candidates arrive in the index's own ranking order (closest first).
type Candidate struct {
	Document
	Distance float32
}

// Index is the vector storage backend interface. It partitions all
// operations by user: implementations may shard physically per user as
// long as every document also carries the user_id metadata field.
//
// Implementations: chromem.Index (local, embedded), pgvector (production).
type Index interface {
	// Upsert persists documents, overwriting any existing ids.
	Upsert(ctx context.Context, userID int, docs []Document) error

	// Query returns up to n candidates for the user, ranked by similarity.
	// An empty or uninitialized partition yields an empty result, not an
	// error.
	Query(ctx context.Context, userID int, vector []float32, n int) ([]Candidate, error)

	// Fetch retrieves one document by id. A missing document is reported
	// via ok=false, not an error.
	Fetch(ctx context.Context, userID int, id string) (doc Document, ok bool, err error)

	// FetchAll returns every document for the user, unordered.
	FetchAll(ctx context.Context, userID int) ([]Document, error)

	// Delete permanently removes the listed documents.
	Delete(ctx context.Context, userID int, ids ...string) error

	// DeleteAll permanently removes every document for the user.
	DeleteAll(ctx context.Context, userID int) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to a fixed-dimension vector. The dimension must
// match the Store's configured dimension for every call.
//
// Implementations: mock.Embedder (testing), onnx.Embedder (local, offline),
// cached.Embedder (ristretto wrapper around either).
type Embedder interface {
	// Embed converts a single text to an embedding vector. Deterministic
	// for identical input within a session.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Turn is one message of a conversation transcript.
type Turn struct {
	Role    string `json:"role"` // RoleUser or RoleAssistant
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Decider is the reconciliation decision collaborator. Given the recent
// transcript and the memories retrieved for the latest user utterance
// (referenced by their position in the slice), it returns the actions to
// apply and a short human-readable summary of its intent.
//
// Decide must not mutate the store itself: the Reconciler applies the
// returned actions, keeping the decision independently testable.
type Decider interface {
	Decide(ctx context.Context, transcript []Turn, existing []RetrievedMemory) ([]Action, string, error)
}

// CandidateFact is one extracted, not-yet-stored fact.
type CandidateFact struct {
	Text       string
	Categories []string
	Sentiment  string // "happy", "sad" or "neutral"
}

// Extractor is the optional upstream filter that decides whether a
// transcript contains anything memory-worthy before reconciliation runs.
type Extractor interface {
	// Extract returns hasInfo=false when the transcript holds nothing
	// worth remembering; candidates may be empty even when hasInfo is true.
	Extract(ctx context.Context, transcript []Turn, existingCategories []string) (hasInfo bool, candidates []CandidateFact, err error)
}
