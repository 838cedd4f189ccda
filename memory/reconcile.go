package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// ActionKind enumerates the reconciliation action vocabulary.
type ActionKind string

const (
	// ActionAdd creates a new current record. No precondition.
	ActionAdd ActionKind = "add"

	// ActionUpdate supersedes an existing record and creates a replacement.
	// Invalidation always runs first so a reader never observes two current
	// answers to the same fact, at the cost of a brief window with none.
	ActionUpdate ActionKind = "update"

	// ActionSupersede invalidates a record without a replacement, for
	// facts that became obsolete outright.
	ActionSupersede ActionKind = "supersede"

	// ActionNoop records that nothing in the turn warranted a change.
	ActionNoop ActionKind = "noop"
)

// Action is one tagged reconciliation decision. LocalIndex references a
// position in the existing-memories snapshot handed to the Decider; Text
// and Categories describe the new fact for add/update.
type Action struct {
	Kind       ActionKind
	LocalIndex int
	Text       string
	Categories []string
}

// Reconciler drives Decider decisions against the Store. The
// existing-memories snapshot it hands out is inherently racy with other
// background writers, so stale or out-of-range references are expected and
// treated as no-ops rather than errors.
type Reconciler struct {
	store     *Store
	embedder  Embedder
	decider   Decider
	extractor Extractor // optional
}

// NewReconciler creates a Reconciler. The extractor is optional; when set,
// turns it deems not memory-worthy skip the decision step entirely.
func NewReconciler(store *Store, embedder Embedder, decider Decider, extractor Extractor) *Reconciler {
	return &Reconciler{
		store:     store,
		embedder:  embedder,
		decider:   decider,
		extractor: extractor,
	}
}

// ReconcileTurn merges the latest conversational content into the user's
// memory set: embed the latest user utterance, retrieve the closest current
// memories as a snapshot, let the Decider choose actions, then apply them.
// Returns a short human-readable summary of what happened.
func (r *Reconciler) ReconcileTurn(ctx context.Context, userID int, transcript []Turn) (string, error) {
	latest := latestUserMessage(transcript)
	if latest == "" {
		return "nothing to reconcile", nil
	}

	if r.extractor != nil {
		cats, err := r.store.ListCategories(ctx, userID)
		if err != nil {
			log.Printf("[RECONCILE] Listing categories failed, extracting without them: %v", err)
		}
		hasInfo, _, err := r.extractor.Extract(ctx, transcript, cats)
		if err != nil {
			log.Printf("[RECONCILE] Extraction failed, proceeding to decision step: %v", err)
		} else if !hasInfo {
			return "no memory-worthy content", nil
		}
	}

	vector, err := r.embedder.Embed(ctx, latest)
	if err != nil {
		return "", fmt.Errorf("embed latest message: %w", err)
	}

	snapshot := r.store.Search(ctx, vector, userID, SearchOptions{})

	actions, summary, err := r.decider.Decide(ctx, transcript, snapshot)
	if err != nil {
		return "", fmt.Errorf("decide actions: %w", err)
	}

	applied := r.Apply(ctx, userID, actions, snapshot)
	if summary == "" {
		summary = applied
	}
	return summary, nil
}

// Apply executes decided actions in order against the store. Each action is
// applied independently: a failure is logged and later actions still run.
// Returns a summary synthesized from the applied counts.
func (r *Reconciler) Apply(ctx context.Context, userID int, actions []Action, snapshot []RetrievedMemory) string {
	var added, updated, superseded, skipped int

	for i, action := range actions {
		switch action.Kind {
		case ActionAdd:
			if err := r.addRecord(ctx, userID, action.Text, action.Categories); err != nil {
				log.Printf("[RECONCILE] Action %d (add) failed: %v", i, err)
				continue
			}
			added++

		case ActionUpdate:
			target, ok := snapshotTarget(snapshot, action.LocalIndex)
			if !ok {
				log.Printf("[RECONCILE] Action %d (update) references stale index %d, skipping", i, action.LocalIndex)
				skipped++
				continue
			}
			// Invalidate before adding the replacement: the two steps are
			// not atomic, and no-current-answer beats two-current-answers.
			if err := r.store.SoftInvalidate(ctx, userID, target.PointID); err != nil {
				log.Printf("[RECONCILE] Action %d (update) invalidate failed: %v", i, err)
				continue
			}
			if err := r.addRecord(ctx, userID, action.Text, action.Categories); err != nil {
				log.Printf("[RECONCILE] Action %d (update) replacement failed: %v", i, err)
				continue
			}
			updated++

		case ActionSupersede:
			target, ok := snapshotTarget(snapshot, action.LocalIndex)
			if !ok {
				log.Printf("[RECONCILE] Action %d (supersede) references stale index %d, skipping", i, action.LocalIndex)
				skipped++
				continue
			}
			if err := r.store.SoftInvalidate(ctx, userID, target.PointID); err != nil {
				log.Printf("[RECONCILE] Action %d (supersede) failed: %v", i, err)
				continue
			}
			superseded++

		case ActionNoop:
			// Explicit decision that nothing changes.

		default:
			log.Printf("[RECONCILE] Action %d has unknown kind %q, skipping", i, action.Kind)
			skipped++
		}
	}

	return summarizeApplied(added, updated, superseded, skipped)
}

func (r *Reconciler) addRecord(ctx context.Context, userID int, text string, categories []string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty memory text")
	}
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %q: %w", text, err)
	}
	return r.store.Create(ctx, []MemoryRecord{{
		UserID:     userID,
		Text:       text,
		Categories: categories,
		Embedding:  vector,
		CreatedAt:  time.Now(),
	}})
}

// snapshotTarget resolves a local index against the snapshot. Out-of-range
// references and entries already known superseded resolve to nothing.
func snapshotTarget(snapshot []RetrievedMemory, idx int) (RetrievedMemory, bool) {
	if idx < 0 || idx >= len(snapshot) {
		return RetrievedMemory{}, false
	}
	target := snapshot[idx]
	if !target.IsCurrent {
		return RetrievedMemory{}, false
	}
	return target, true
}

func latestUserMessage(transcript []Turn) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == RoleUser {
			return transcript[i].Content
		}
	}
	return ""
}

func summarizeApplied(added, updated, superseded, skipped int) string {
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", updated))
	}
	if superseded > 0 {
		parts = append(parts, fmt.Sprintf("%d superseded", superseded))
	}
	if skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", skipped))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
