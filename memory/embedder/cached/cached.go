// Package cached wraps any embedder with a ristretto cache so repeated
// texts (re-embedded query phrasings, reconciliation re-reads) skip model
// inference.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/recall/memory"
)

// Embedder caches text-to-vector results in front of an inner embedder.
// Safe for concurrent use if the inner embedder is.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache bounded at roughly maxBytes of vector data.
func New(inner memory.Embedder, maxBytes int64) (*Embedder, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for the text, embedding on miss. Callers
// get a copy, never the cached slice.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			out := make([]float32, len(vec))
			copy(out, vec)
			return out, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, int64(len(vec)*4))

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until buffered cache writes have been applied. Mostly
// useful in tests; production callers can tolerate a miss on a vector
// that is still in the admission buffer.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache's internal goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}
