// Package embedding turns text into dense vectors for similarity search.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when there is no text to embed.
var ErrEmptyInput = errors.New("embedding: empty input")

// Embedder produces fixed-size vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}
