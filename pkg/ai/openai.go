package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	embeddingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autograde",
		Subsystem: "ai",
		Name:      "embedding_duration_seconds",
		Help:      "Duration of embedding requests",
	}, []string{"model"})

	embeddingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autograde",
		Subsystem: "ai",
		Name:      "embedding_failures_total",
		Help:      "Number of failed embedding requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Logger     zerolog.Logger
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEmbedder builds a new embedder using the provided configuration.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	tracer := otel.Tracer("github.com/noah-isme/autograde-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIEmbedder{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_embedder").Logger(),
	}, nil
}

// Model implements Embedder.
func (e *OpenAIEmbedder) Model() string {
	return e.cfg.Model
}

// Embed sends texts in batches and returns vectors in input order.
func (e *OpenAIEmbedder) Embed(parent context.Context, texts []string) ([][]float32, error) {
	ctx, span := e.tracer.Start(parent, "openai.embed", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Int("inputs", len(texts)),
	))
	defer span.End()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			embeddingFailures.WithLabelValues(e.cfg.Model).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	request := openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(e.cfg.Model),
	}
	if e.cfg.Dimensions > 0 {
		request.Dimensions = e.cfg.Dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, request)
	embeddingDuration.WithLabelValues(e.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn().Err(err).Int("inputs", len(batch)).Msg("embedding request failed")
		return nil, fmt.Errorf("openai embed: %v: %w", err, ErrEmbeddingUnavailable)
	}

	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs: %w", len(resp.Data), len(batch), ErrEmbeddingUnavailable)
	}

	vectors := make([][]float32, len(batch))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range: %w", item.Index, ErrEmbeddingUnavailable)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
