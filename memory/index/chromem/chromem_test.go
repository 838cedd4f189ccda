package chromem_test

import (
	"context"
	"testing"

	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/index/chromem"
)

const dims = 4

// unit returns a 4-dim unit vector pointing along the given axis.
func unit(axis int) []float32 {
	vec := make([]float32, dims)
	vec[axis] = 1
	return vec
}

func doc(id, content string, embedding []float32) memory.Document {
	return memory.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"is_current": "1"},
	}
}

func TestIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	err := index.Upsert(ctx, 1, []memory.Document{
		doc("a", "exact match", unit(0)),
		doc("b", "orthogonal", unit(1)),
	})
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	candidates, err := index.Query(ctx, 1, unit(0), 10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}
	// Ranked closest-first with cosine distances.
	if candidates[0].ID != "a" || candidates[0].Distance > 0.001 {
		t.Errorf("Expected a first with distance ~0, got %s at %v", candidates[0].ID, candidates[0].Distance)
	}
	if candidates[1].ID != "b" || candidates[1].Distance < 0.99 || candidates[1].Distance > 1.01 {
		t.Errorf("Expected b second with distance ~1, got %s at %v", candidates[1].ID, candidates[1].Distance)
	}
	if candidates[0].Metadata["user_id"] != "1" {
		t.Errorf("Expected user_id metadata, got %v", candidates[0].Metadata)
	}
}

func TestIndex_QueryEmptyUser(t *testing.T) {
	index := chromem.New(dims)
	candidates, err := index.Query(context.Background(), 42, unit(0), 10)
	if err != nil {
		t.Fatalf("Query on empty user errored: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("Expected no candidates, got %d", len(candidates))
	}
}

func TestIndex_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	if err := index.Upsert(ctx, 1, []memory.Document{doc("a", "v1", unit(0))}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Upsert(ctx, 1, []memory.Document{doc("a", "v2", unit(0))}); err != nil {
		t.Fatalf("Failed to re-upsert: %v", err)
	}

	got, ok, err := index.Fetch(ctx, 1, "a")
	if err != nil || !ok {
		t.Fatalf("Failed to fetch: ok=%v err=%v", ok, err)
	}
	if got.Content != "v2" {
		t.Errorf("Expected overwritten content v2, got %q", got.Content)
	}

	docs, err := index.FetchAll(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to fetch all: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected 1 document after overwrite, got %d", len(docs))
	}
}

func TestIndex_FetchMissing(t *testing.T) {
	index := chromem.New(dims)
	_, ok, err := index.Fetch(context.Background(), 1, "nope")
	if err != nil {
		t.Fatalf("Expected missing id to be ok=false, not an error: %v", err)
	}
	if ok {
		t.Error("Expected ok=false for missing id")
	}
}

func TestIndex_FetchAll(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	err := index.Upsert(ctx, 1, []memory.Document{
		doc("a", "one", unit(0)),
		doc("b", "two", unit(1)),
		doc("c", "three", unit(2)),
	})
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	docs, err := index.FetchAll(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to fetch all: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(docs))
	}
	seen := make(map[string]bool)
	for _, d := range docs {
		seen[d.ID] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("Missing document %s", id)
		}
	}
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	err := index.Upsert(ctx, 1, []memory.Document{
		doc("a", "one", unit(0)),
		doc("b", "two", unit(1)),
	})
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Delete(ctx, 1, "a"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	_, ok, _ := index.Fetch(ctx, 1, "a")
	if ok {
		t.Error("Expected a to be gone")
	}
	_, ok, _ = index.Fetch(ctx, 1, "b")
	if !ok {
		t.Error("Expected b to survive")
	}
}

func TestIndex_DeleteAll(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	if err := index.Upsert(ctx, 1, []memory.Document{doc("a", "one", unit(0))}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.DeleteAll(ctx, 1); err != nil {
		t.Fatalf("Failed to delete all: %v", err)
	}
	docs, err := index.FetchAll(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to fetch all: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected empty index, got %d documents", len(docs))
	}

	// Erasing a user that never stored anything is a no-op.
	if err := index.DeleteAll(ctx, 99); err != nil {
		t.Errorf("DeleteAll on unknown user errored: %v", err)
	}
}

func TestIndex_UserIsolation(t *testing.T) {
	ctx := context.Background()
	index := chromem.New(dims)

	if err := index.Upsert(ctx, 1, []memory.Document{doc("a", "alice", unit(0))}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Upsert(ctx, 2, []memory.Document{doc("b", "bob", unit(0))}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	candidates, err := index.Query(ctx, 1, unit(0), 10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "a" {
		t.Fatalf("Expected only alice's document, got %+v", candidates)
	}

	if err := index.DeleteAll(ctx, 1); err != nil {
		t.Fatalf("Failed to erase user 1: %v", err)
	}
	docs, err := index.FetchAll(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to fetch user 2: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Erasing user 1 touched user 2, got %d documents", len(docs))
	}
}

func TestIndex_PersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	index, err := chromem.NewPersistent(dir, dims)
	if err != nil {
		t.Fatalf("Failed to open persistent index: %v", err)
	}
	if err := index.Upsert(ctx, 1, []memory.Document{doc("a", "durable fact", unit(0))}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if err := index.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	reopened, err := chromem.NewPersistent(dir, dims)
	if err != nil {
		t.Fatalf("Failed to reopen persistent index: %v", err)
	}
	docs, err := reopened.FetchAll(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to fetch after reopen: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "durable fact" {
		t.Fatalf("Expected the stored document to survive reopen, got %+v", docs)
	}
}
