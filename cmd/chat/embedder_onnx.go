//go:build onnx

package main

import (
	"os"

	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/onnx"
)

// newEmbedder loads the local all-MiniLM-L6-v2 model through ONNX Runtime.
func newEmbedder() (memory.Embedder, error) {
	modelDir := os.Getenv("RECALL_MODEL_DIR")
	if modelDir == "" {
		modelDir = "./models/all-MiniLM-L6-v2"
	}
	return onnx.New(onnx.Config{
		ModelPath:     modelDir + "/model.onnx",
		TokenizerPath: modelDir + "/tokenizer.json",
		Dimensions:    memory.DefaultDimensions,
	})
}
