package memory

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDimensions matches all-MiniLM-L6-v2, the reference embedding model.
const DefaultDimensions = 384

// MemoryRecord is the unit of persisted knowledge.
//
// Records are immutable except for the one allowed transition: IsCurrent
// true -> false with SupersededAt stamped. A "richer" version of a fact is
// always a brand-new record plus invalidation of the old one.
type MemoryRecord struct {
	// ID is assigned by the store on creation and never changes.
	ID string

	// UserID partitions all queries and deletions. Required, nonzero.
	UserID int

	// Text is the atomic fact, a short natural-language statement.
	Text string

	// Categories are short labels; order is irrelevant.
	Categories []string

	// Embedding represents Text in the configured embedding space. Its
	// length must equal the store's dimension.
	Embedding []float32

	// CreatedAt is the logical moment the fact became true/known. Also
	// drives recency ordering via a derived numeric sort key.
	CreatedAt time.Time

	// SavedAt is the wall-clock time the record was written.
	SavedAt time.Time

	// IsCurrent marks the record active (true) or superseded (false).
	// Once false it never becomes true again.
	IsCurrent bool

	// SupersededAt is set exactly when IsCurrent transitions to false.
	// Zero while current.
	SupersededAt time.Time
}

// RetrievedMemory is the read-side projection of a MemoryRecord plus a
// normalized similarity score in [0,1] (1 = identical). Constructed per
// query, never persisted.
type RetrievedMemory struct {
	PointID    string
	UserID     int
	Text       string
	Categories []string
	CreatedAt  time.Time
	Score      float64
	IsCurrent  bool
}

// String renders the memory for prompt injection, tagging superseded
// records so the model can separate current from historical state.
func (r RetrievedMemory) String() string {
	tag := ""
	if !r.IsCurrent {
		tag = " [OLD/SUPERSEDED]"
	}
	saved := "unknown"
	if !r.CreatedAt.IsZero() {
		saved = r.CreatedAt.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%s%s (Categories: %s) [Saved: %s] Relevance: %.2f",
		r.Text, tag, strings.Join(r.Categories, ", "), saved, r.Score)
}

// hasCategoryOverlap reports whether the record's category set intersects
// the filter. Comparison is case-sensitive on trimmed labels.
func hasCategoryOverlap(stored, filter []string) bool {
	for _, f := range filter {
		f = strings.TrimSpace(f)
		for _, s := range stored {
			if strings.TrimSpace(s) == f {
				return true
			}
		}
	}
	return false
}
