package ai

import (
	"context"
	"time"
)

type timeoutEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

// WithTimeout bounds every Embed call of inner. A timed out call returns a
// deadline error while the caller's context stays alive, so callers can fall
// back to lexical signals.
func WithTimeout(inner Embedder, timeout time.Duration) Embedder {
	if timeout <= 0 {
		return inner
	}
	return &timeoutEmbedder{inner: inner, timeout: timeout}
}

func (t *timeoutEmbedder) Model() string {
	return t.inner.Model()
}

func (t *timeoutEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, texts)
}
