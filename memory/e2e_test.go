package memory_test

import (
	"context"
	"testing"

	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
	"github.com/becomeliminal/recall/memory/index/chromem"
)

// TestMovedCities walks the full lifecycle against a real chromem index:
// a fact is learned, later corrected, and both versions stay reachable
// through the right visibility rules.
func TestMovedCities(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(chromem.New(testDims), testConfig())
	embedder := mock.NewWithDimensions(testDims)

	// Pin everything location-related onto the same direction so the mock
	// embedder behaves like a real model would for these texts.
	locationVec := testVector()
	for _, text := range []string{
		"I live in Paris", "Lives in Paris",
		"I moved to Berlin", "Lives in Berlin",
		"where do I live?", "where did I live before?",
	} {
		embedder.Pin(text, locationVec)
	}

	// Turn 1: the fact is new, the decider adds it.
	decider := &scriptedDecider{actions: []memory.Action{
		{Kind: memory.ActionAdd, Text: "Lives in Paris", Categories: []string{"location"}},
	}}
	rec := memory.NewReconciler(store, embedder, decider, nil)
	if _, err := rec.ReconcileTurn(ctx, 1, userTurn("I live in Paris")); err != nil {
		t.Fatalf("Failed to reconcile first turn: %v", err)
	}

	// Turn 2: the fact changed, the decider updates memory 0.
	decider.actions = []memory.Action{
		{Kind: memory.ActionUpdate, LocalIndex: 0, Text: "Lives in Berlin", Categories: []string{"location"}},
	}
	if _, err := rec.ReconcileTurn(ctx, 1, userTurn("I moved to Berlin")); err != nil {
		t.Fatalf("Failed to reconcile second turn: %v", err)
	}
	if len(decider.gotExisting) != 1 || decider.gotExisting[0].Text != "Lives in Paris" {
		t.Fatalf("Second turn should see the Paris memory, got %+v", decider.gotExisting)
	}

	// "where do I live?" has no historical trigger: only Berlin comes back.
	query := "where do I live?"
	if memory.IsHistoricalQuery(query) {
		t.Fatalf("%q misclassified as historical", query)
	}
	vec, _ := embedder.Embed(ctx, query)
	results := store.Search(ctx, vec, 1, memory.SearchOptions{IncludeOld: false})
	if len(results) != 1 || results[0].Text != "Lives in Berlin" {
		t.Fatalf("Expected only Berlin, got %+v", results)
	}

	// "where did I live before?" trips the heuristic and widens to history.
	query = "where did I live before?"
	if !memory.IsHistoricalQuery(query) {
		t.Fatalf("%q not classified as historical", query)
	}
	vec, _ = embedder.Embed(ctx, query)
	results = store.Search(ctx, vec, 1, memory.SearchOptions{IncludeOld: true})
	if len(results) != 2 {
		t.Fatalf("Expected Paris and Berlin, got %+v", results)
	}
	for _, res := range results {
		switch res.Text {
		case "Lives in Paris":
			if res.IsCurrent {
				t.Error("Paris should be tagged superseded")
			}
		case "Lives in Berlin":
			if !res.IsCurrent {
				t.Error("Berlin should be current")
			}
		default:
			t.Errorf("Unexpected memory %q", res.Text)
		}
	}
}
