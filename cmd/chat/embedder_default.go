//go:build !onnx

package main

import (
	"log"

	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
)

// newEmbedder returns the hash-based embedder used when the binary is
// built without the onnx tag. Vectors are deterministic but carry no real
// semantic similarity.
func newEmbedder() (memory.Embedder, error) {
	log.Println("[CHAT] Built without the onnx tag: using the hash-based embedder (no real semantic search). Build with -tags onnx for all-MiniLM-L6-v2.")
	return mock.New(), nil
}
