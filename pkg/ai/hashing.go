package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/noah-isme/autograde-api/internal/textproc"
)

// HashingEmbedder projects token unigrams and bigrams into a fixed number of
// buckets with signed feature hashing. It needs no network access and gives
// identical vectors for identical texts, which makes it the default provider.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns an embedder producing vectors of the given size.
func NewHashingEmbedder(dimensions int) (*HashingEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("hashing embedder dimensions must be positive, got %d", dimensions)
	}
	return &HashingEmbedder{dimensions: dimensions}, nil
}

// Model implements Embedder.
func (h *HashingEmbedder) Model() string {
	return fmt.Sprintf("hashing-%d", h.dimensions)
}

// Embed implements Embedder.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEmbedder) vector(text string) []float32 {
	vector := make([]float32, h.dimensions)
	tokens := textproc.Tokens(text)
	for i, token := range tokens {
		h.add(vector, token, 1)
		if i > 0 {
			h.add(vector, tokens[i-1]+" "+token, 0.5)
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}

func (h *HashingEmbedder) add(vector []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	bucket := int(sum % uint64(h.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
}
