// Package chromem implements the memory.Index interface on top of
// chromem-go, a pure Go embedded vector database with cosine similarity.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/recall/memory"
)

// Index stores memory documents in chromem-go. Each user gets their own
// collection for namespace isolation; every document additionally carries
// the user_id metadata field so the logical layout stays a single
// collection partitioned by user.
type Index struct {
	db          *chromem.DB
	dims        int
	collections map[int]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-memory index. Contents are lost on process exit; use
// NewPersistent for durable storage.
func New(dims int) *Index {
	return &Index{
		db:          chromem.NewDB(),
		dims:        dims,
		collections: make(map[int]*chromem.Collection),
	}
}

// NewPersistent creates an index persisted under path. Collections are
// reloaded from disk, so memories survive process restarts.
func NewPersistent(path string, dims int) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent db at %s: %w", path, err)
	}
	return &Index{
		db:          db,
		dims:        dims,
		collections: make(map[int]*chromem.Collection),
	}, nil
}

func collectionName(userID int) string {
	return fmt.Sprintf("user_%d", userID)
}

// getOrCreateCollection returns the user's collection, creating it lazily.
// A missing collection is never a hard failure.
func (x *Index) getOrCreateCollection(userID int) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[userID]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, exists := x.collections[userID]; exists {
		return col, nil
	}

	// No embedding func: callers always provide embeddings themselves.
	col, err := x.db.GetOrCreateCollection(collectionName(userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection for user %d: %w", userID, err)
	}
	x.collections[userID] = col
	return col, nil
}

// Upsert persists documents, overwriting existing ids.
func (x *Index) Upsert(ctx context.Context, userID int, docs []memory.Document) error {
	col, err := x.getOrCreateCollection(userID)
	if err != nil {
		return err
	}

	out := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		meta := make(map[string]string, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["user_id"] = strconv.Itoa(userID)
		out = append(out, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  meta,
		})
	}

	if err := col.AddDocuments(ctx, out, 1); err != nil {
		return fmt.Errorf("add %d documents: %w", len(out), err)
	}
	log.Printf("[CHROMEM] Upserted %d document(s) for user %d", len(out), userID)
	return nil
}

// Query returns up to n candidates ranked by similarity. Distances are
// cosine distances (0 identical, 2 opposite).
func (x *Index) Query(ctx context.Context, userID int, vector []float32, n int) ([]memory.Candidate, error) {
	col, err := x.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if n > count {
		n = count
	}

	where := map[string]string{"user_id": strconv.Itoa(userID)}
	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	candidates := make([]memory.Candidate, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, memory.Candidate{
			Document: memory.Document{
				ID:        res.ID,
				Content:   res.Content,
				Embedding: res.Embedding,
				Metadata:  res.Metadata,
			},
			// chromem reports cosine similarity in [-1,1].
			Distance: 1 - res.Similarity,
		})
	}
	return candidates, nil
}

// Fetch retrieves one document by id.
func (x *Index) Fetch(ctx context.Context, userID int, id string) (memory.Document, bool, error) {
	col, err := x.getOrCreateCollection(userID)
	if err != nil {
		return memory.Document{}, false, err
	}

	doc, err := col.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing id as an error; treat it as not found.
		return memory.Document{}, false, nil
	}
	return memory.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	}, true, nil
}

// FetchAll returns every document for the user, unordered.
//
// chromem has no listing API, so this queries the whole collection with a
// fixed basis vector; the ranking that produces is irrelevant here.
func (x *Index) FetchAll(ctx context.Context, userID int) ([]memory.Document, error) {
	col, err := x.getOrCreateCollection(userID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	probe := make([]float32, x.dims)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}

	docs := make([]memory.Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, memory.Document{
			ID:        res.ID,
			Content:   res.Content,
			Embedding: res.Embedding,
			Metadata:  res.Metadata,
		})
	}
	return docs, nil
}

// Delete permanently removes the listed documents. Missing ids are ignored.
func (x *Index) Delete(ctx context.Context, userID int, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := x.getOrCreateCollection(userID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// DeleteAll drops the user's entire collection.
func (x *Index) DeleteAll(ctx context.Context, userID int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.db.GetCollection(collectionName(userID), nil) == nil {
		delete(x.collections, userID)
		return nil // nothing stored for this user
	}
	if err := x.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection for user %d: %w", userID, err)
	}
	delete(x.collections, userID)
	log.Printf("[CHROMEM] Deleted collection for user %d", userID)
	return nil
}

// Close releases resources. chromem keeps its working set in memory (and,
// for persistent indexes, already on disk), so there is nothing to flush.
func (x *Index) Close() error {
	return nil
}
