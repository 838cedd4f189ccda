package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys used to flatten MemoryRecord fields into Index documents.
// Values are strings because vector-index metadata filters only support
// flat scalar comparisons.
const (
	metaUserID       = "user_id"
	metaCategories   = "categories" // comma-joined
	metaDate         = "date"       // CreatedAt, RFC3339
	metaTimestamp    = "timestamp"  // CreatedAt unix seconds, numeric sort key
	metaSavedAt      = "saved_at"   // RFC3339
	metaIsCurrent    = "is_current" // "1" active, "0" superseded
	metaSupersededAt = "superseded_at"
)

// Config holds Store configuration.
type Config struct {
	// Dimensions is the store-wide embedding vector size.
	// Default: 384 (all-MiniLM-L6-v2).
	Dimensions int

	// MinScore is the relevance floor: candidates scoring below it are
	// discarded. The boundary itself is retained (filter is score < floor).
	// Default: 0.5
	MinScore float64

	// DefaultTopK is the result count when a search does not specify one.
	// Default: 5
	DefaultTopK int
}

// DefaultConfig returns sensible defaults for the local stack.
var DefaultConfig = &Config{
	Dimensions:  DefaultDimensions,
	MinScore:    0.5,
	DefaultTopK: 5,
}

// Store implements the memory record lifecycle and ranked retrieval on top
// of a vector Index. It is safe for concurrent use as long as the Index is.
type Store struct {
	index  Index
	config *Config
}

// NewStore creates a Store backed by the given index.
func NewStore(index Index, config *Config) *Store {
	if config == nil {
		config = DefaultConfig
	}
	return &Store{index: index, config: config}
}

// Dimensions returns the store-wide embedding dimension.
func (s *Store) Dimensions() int {
	return s.config.Dimensions
}

// Create persists a batch of records. Missing ids are assigned, SavedAt is
// stamped, and a zero CreatedAt defaults to now. The whole batch is
// validated before anything is written so a malformed record never reaches
// the index.
func (s *Store) Create(ctx context.Context, records []MemoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	userID := records[0].UserID
	docs := make([]Document, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.UserID == 0 {
			return fmt.Errorf("record %d: user id is required", i)
		}
		if r.UserID != userID {
			return fmt.Errorf("record %d: mixed user ids in one batch (%d and %d)", i, userID, r.UserID)
		}
		if len(r.Embedding) != s.config.Dimensions {
			return fmt.Errorf("record %d: embedding dimension %d, store requires %d", i, len(r.Embedding), s.config.Dimensions)
		}
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.SavedAt = now
		r.IsCurrent = true
		r.SupersededAt = time.Time{}
		docs = append(docs, recordToDocument(*r))
	}

	if err := s.index.Upsert(ctx, userID, docs); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(docs), err)
	}
	log.Printf("[MEMORY] Created %d record(s) for user %d", len(docs), userID)
	return nil
}

// SoftInvalidate marks a record superseded without deleting it, preserving
// history for historical queries. Idempotent: invalidating a missing or
// already-superseded record is a no-op, never an error. Every other field
// is preserved byte-for-byte.
func (s *Store) SoftInvalidate(ctx context.Context, userID int, id string) error {
	doc, ok, err := s.index.Fetch(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("fetch record %s: %w", id, err)
	}
	if !ok {
		log.Printf("[MEMORY] SoftInvalidate: record %s already gone, nothing to do", id)
		return nil
	}
	if doc.Metadata[metaIsCurrent] == "0" {
		return nil // already superseded, keep the original stamp
	}

	doc.Metadata[metaIsCurrent] = "0"
	doc.Metadata[metaSupersededAt] = time.Now().Format(time.RFC3339)
	if err := s.index.Upsert(ctx, userID, []Document{doc}); err != nil {
		return fmt.Errorf("re-upsert superseded record %s: %w", id, err)
	}
	log.Printf("[MEMORY] Superseded record %s for user %d", id, userID)
	return nil
}

// HardDelete permanently removes the listed records. Used only for
// full-account erasure paths and explicit per-id deletion; the default
// update policy is SoftInvalidate.
func (s *Store) HardDelete(ctx context.Context, userID int, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.index.Delete(ctx, userID, ids...); err != nil {
		return fmt.Errorf("delete %d records: %w", len(ids), err)
	}
	return nil
}

// DeleteAllForUser removes every record for the user, current and
// superseded. Irreversible.
func (s *Store) DeleteAllForUser(ctx context.Context, userID int) error {
	if err := s.index.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("delete all records for user %d: %w", userID, err)
	}
	log.Printf("[MEMORY] Erased all records for user %d", userID)
	return nil
}

// FetchAll returns every record for the user, unordered and unfiltered.
// An empty or uninitialized store yields an empty slice.
func (s *Store) FetchAll(ctx context.Context, userID int) ([]MemoryRecord, error) {
	docs, err := s.index.FetchAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch all for user %d: %w", userID, err)
	}
	records := make([]MemoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, documentToRecord(doc))
	}
	return records, nil
}

// ListCategories returns the union of category labels across all of the
// user's records, current and superseded: case-sensitive, trimmed, sorted.
func (s *Store) ListCategories(ctx context.Context, userID int) ([]string, error) {
	docs, err := s.index.FetchAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch all for user %d: %w", userID, err)
	}
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, cat := range strings.Split(doc.Metadata[metaCategories], ",") {
			cat = strings.TrimSpace(cat)
			if cat != "" {
				seen[cat] = struct{}{}
			}
		}
	}
	cats := make([]string, 0, len(seen))
	for cat := range seen {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats, nil
}

// SearchOptions tunes a Search call. The zero value means: top 5, current
// memories only, no category filter.
type SearchOptions struct {
	// TopK is the maximum number of results. 0 means the configured default.
	TopK int

	// Categories, when non-empty, keeps only records whose category set
	// intersects it.
	Categories []string

	// IncludeOld widens the search to superseded records. Callers typically
	// set this from IsHistoricalQuery on the raw query text.
	IncludeOld bool
}

// Search performs semantic search over a user's memories.
//
// The index pre-filters by user only (its metadata filter is limited to
// flat equality), so currency and category filtering happen client-side.
// More candidates than topK are fetched to survive that filtering, and the
// index's own ranking order is preserved. A failed or empty query degrades
// to an empty result, never an error.
func (s *Store) Search(ctx context.Context, vector []float32, userID int, opts SearchOptions) []RetrievedMemory {
	topK := opts.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}

	// Over-fetch when client-side filters will discard candidates.
	fetchK := max(topK*4, 20)
	if len(opts.Categories) > 0 || !opts.IncludeOld {
		fetchK = max(topK*6, 30)
	}

	candidates, err := s.index.Query(ctx, userID, vector, fetchK)
	if err != nil {
		log.Printf("[MEMORY] Search query failed for user %d, returning empty: %v", userID, err)
		return nil
	}

	out := make([]RetrievedMemory, 0, topK)
	for _, c := range candidates {
		// Cosine distance: 0 = identical, 2 = opposite. Normalize to [0,1].
		score := 1.0 - float64(c.Distance)/2.0
		if score < s.config.MinScore {
			continue
		}

		rec := documentToRecord(c.Document)
		if !opts.IncludeOld && !rec.IsCurrent {
			continue
		}
		if len(opts.Categories) > 0 && !hasCategoryOverlap(rec.Categories, opts.Categories) {
			continue
		}

		out = append(out, RetrievedMemory{
			PointID:    rec.ID,
			UserID:     rec.UserID,
			Text:       rec.Text,
			Categories: rec.Categories,
			CreatedAt:  rec.CreatedAt,
			Score:      score,
			IsCurrent:  rec.IsCurrent,
		})
		if len(out) >= topK {
			break
		}
	}
	return out
}

// recordToDocument flattens a record into index metadata.
func recordToDocument(r MemoryRecord) Document {
	meta := map[string]string{
		metaUserID:     strconv.Itoa(r.UserID),
		metaCategories: strings.Join(r.Categories, ","),
		metaDate:       r.CreatedAt.Format(time.RFC3339),
		metaTimestamp:  strconv.FormatInt(r.CreatedAt.Unix(), 10),
		metaSavedAt:    r.SavedAt.Format(time.RFC3339),
		metaIsCurrent:  "1",
	}
	if !r.IsCurrent {
		meta[metaIsCurrent] = "0"
	}
	if !r.SupersededAt.IsZero() {
		meta[metaSupersededAt] = r.SupersededAt.Format(time.RFC3339)
	}
	return Document{
		ID:        r.ID,
		Content:   r.Text,
		Embedding: r.Embedding,
		Metadata:  meta,
	}
}

// documentToRecord is the inverse of recordToDocument. Unparseable
// timestamps come back zero rather than failing the read path.
func documentToRecord(doc Document) MemoryRecord {
	userID, _ := strconv.Atoi(doc.Metadata[metaUserID])
	createdAt, _ := time.Parse(time.RFC3339, doc.Metadata[metaDate])
	savedAt, _ := time.Parse(time.RFC3339, doc.Metadata[metaSavedAt])

	var categories []string
	for _, cat := range strings.Split(doc.Metadata[metaCategories], ",") {
		if cat = strings.TrimSpace(cat); cat != "" {
			categories = append(categories, cat)
		}
	}

	rec := MemoryRecord{
		ID:         doc.ID,
		UserID:     userID,
		Text:       doc.Content,
		Categories: categories,
		Embedding:  doc.Embedding,
		CreatedAt:  createdAt,
		SavedAt:    savedAt,
		IsCurrent:  doc.Metadata[metaIsCurrent] != "0",
	}
	if ts := doc.Metadata[metaSupersededAt]; ts != "" {
		rec.SupersededAt, _ = time.Parse(time.RFC3339, ts)
	}
	return rec
}
