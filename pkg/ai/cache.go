package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const embeddingKeyPrefix = "autograde:embedding:"

// CachedEmbedder stores vectors in redis keyed by model and text digest. Cache
// failures degrade to calling the wrapped embedder.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder wraps inner with a redis cache. A nil client disables caching.
func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}
}

// Model implements Embedder.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.client == nil || len(texts) == 0 {
		return c.inner.Embed(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	out := make([][]float32, len(texts))
	var missing []int

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("embedding cache read failed")
		values = make([]interface{}, len(texts))
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			missing = append(missing, i)
			continue
		}
		vector, decodeErr := decodeVector([]byte(raw))
		if decodeErr != nil {
			missing = append(missing, i)
			continue
		}
		out[i] = vector
	}

	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for i, idx := range missing {
		pending[i] = texts[idx]
	}
	vectors, err := c.inner.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs: %w", len(vectors), len(pending), ErrEmbeddingUnavailable)
	}

	pipe := c.client.Pipeline()
	for i, idx := range missing {
		out[idx] = vectors[i]
		pipe.Set(ctx, keys[idx], encodeVector(vectors[i]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Int("entries", len(missing)).Msg("embedding cache write failed")
	}

	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingKeyPrefix + c.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(buf))
	}
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vector, nil
}
