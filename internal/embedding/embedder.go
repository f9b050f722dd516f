// Package embedding provides the embedding provider interface with local ONNX,
// mock, and cached implementations.
package embedding

import "context"

// Embedder produces fixed-dimension normalized vector embeddings for text.
// Implementations are swappable at startup (local model, remote service, mock
// for tests); the engine never assumes how vectors are produced. An
// implementation must fail with an error rather than return a vector of the
// wrong dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
