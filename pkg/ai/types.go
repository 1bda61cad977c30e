package ai

import (
	"context"
	"errors"
)

// ErrEmbeddingUnavailable wraps provider failures so callers can treat them as
// transient.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Embedder turns texts into dense vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the vector space; vectors from different models are not comparable.
	Model() string
}
