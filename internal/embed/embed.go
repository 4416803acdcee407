// Package embed defines the embedder collaborator interface and its
// reference implementations: an OpenAI-compatible remote endpoint and an
// optional local GGUF model runner.
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts, in input
	// order. Implementations may split large batches transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text (or batch) is empty.
var ErrEmptyInput = errors.New("embed: empty input")
