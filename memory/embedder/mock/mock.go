// Package mock provides a deterministic embedder for tests: no model
// files, no network, stable vectors for identical input.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder derives a pseudo-random unit vector from the text's hash.
// Identical texts always embed identically; unrelated texts land in
// effectively random directions, so tests that need controlled similarity
// should pin vectors via Pin instead.
type Embedder struct {
	dimensions int
	pinned     map[string][]float32
}

// New creates a mock embedder with the all-MiniLM-L6-v2 dimension (384).
func New() *Embedder {
	return NewWithDimensions(384)
}

// NewWithDimensions creates a mock embedder with a custom dimension.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{
		dimensions: dims,
		pinned:     make(map[string][]float32),
	}
}

// Pin fixes the exact vector returned for a text, letting tests engineer
// precise similarity relationships. The vector is normalized on the way in.
func (m *Embedder) Pin(text string, vec []float32) {
	m.pinned[text] = normalize(vec)
}

// Embed returns the pinned vector for the text if one exists, otherwise a
// hash-derived deterministic unit vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := m.pinned[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG keeps the sequence deterministic per seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
