package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/segmenter"
	"github.com/noah-isme/autograde-api/internal/similarity"
)

// Embedding providers.
const (
	EmbeddingProviderHashing = "hashing"
	EmbeddingProviderOpenAI  = "openai"
)

// Similarity execution modes.
const (
	SimilarityModeInline   = "inline"
	SimilarityModeDeferred = "deferred"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	CORSAllowOrigins string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	GradingKeywordWeight    float64
	GradingSimilarityWeight float64

	SimilarityMode              string
	SimilaritySemanticThreshold float64
	SimilarityJaccardThreshold  float64
	SimilarityTimeout           time.Duration

	SegmenterGrammarVersion  string
	SegmenterMarkerPattern   string
	SegmenterPointsPattern   string
	SegmenterKeywordsPattern string
	SegmenterKeywordCount    int
	SegmenterTotalPoints     float64

	ExtractionTimeout time.Duration

	EmbeddingProvider   string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration
	EmbeddingCacheTTL   time.Duration
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string

	UploadMaxMB      int
	UploadRateLimit  int
	UploadRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Weights returns the grading weights.
func (c Config) Weights() grading.Weights {
	return grading.Weights{Keyword: c.GradingKeywordWeight, Similarity: c.GradingSimilarityWeight}
}

// Thresholds returns the similarity thresholds.
func (c Config) Thresholds() similarity.Thresholds {
	return similarity.Thresholds{Semantic: c.SimilaritySemanticThreshold, Jaccard: c.SimilarityJaccardThreshold}
}

// Grammar returns the segmentation grammar. Empty patterns fall back to the built-in ones.
func (c Config) Grammar() segmenter.Grammar {
	return segmenter.Grammar{
		Version:         c.SegmenterGrammarVersion,
		MarkerPattern:   c.SegmenterMarkerPattern,
		PointsPattern:   c.SegmenterPointsPattern,
		KeywordsPattern: c.SegmenterKeywordsPattern,
		KeywordCount:    c.SegmenterKeywordCount,
		TotalPoints:     c.SegmenterTotalPoints,
	}
}

// UploadMaxBytes converts the upload limit to bytes.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) << 20
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "AutoGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("cloudinary.folder", "autograde/documents")
	v.SetDefault("grading.keyword_weight", grading.DefaultWeights().Keyword)
	v.SetDefault("grading.similarity_weight", grading.DefaultWeights().Similarity)
	v.SetDefault("similarity.mode", SimilarityModeInline)
	v.SetDefault("similarity.semantic_threshold", similarity.DefaultThresholds().Semantic)
	v.SetDefault("similarity.jaccard_threshold", similarity.DefaultThresholds().Jaccard)
	v.SetDefault("similarity.timeout", "2m")
	v.SetDefault("segmenter.grammar_version", segmenter.DefaultGrammarVersion)
	v.SetDefault("segmenter.keyword_count", segmenter.DefaultKeywordCount)
	v.SetDefault("segmenter.total_points", segmenter.DefaultTotalPoints)
	v.SetDefault("extraction.timeout", "20s")
	v.SetDefault("embedding.provider", EmbeddingProviderHashing)
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.timeout", "15s")
	v.SetDefault("embedding.cache_ttl", "24h")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("upload.rate_limit", 10)
	v.SetDefault("upload.rate_window", "1m")

	cfg := Config{
		AppName:                     v.GetString("app.name"),
		AppEnv:                      v.GetString("app.env"),
		AppPort:                     v.GetString("app.port"),
		DatabaseURL:                 v.GetString("database.url"),
		RedisURL:                    v.GetString("redis.url"),
		NATSURL:                     v.GetString("nats.url"),
		JWTSecret:                   v.GetString("jwt.secret"),
		CORSAllowOrigins:            v.GetString("cors.allow_origins"),
		CloudinaryCloudName:         v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:            v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:         v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:      v.GetString("cloudinary.folder"),
		GradingKeywordWeight:        v.GetFloat64("grading.keyword_weight"),
		GradingSimilarityWeight:     v.GetFloat64("grading.similarity_weight"),
		SimilarityMode:              strings.ToLower(strings.TrimSpace(v.GetString("similarity.mode"))),
		SimilaritySemanticThreshold: v.GetFloat64("similarity.semantic_threshold"),
		SimilarityJaccardThreshold:  v.GetFloat64("similarity.jaccard_threshold"),
		SimilarityTimeout:           v.GetDuration("similarity.timeout"),
		SegmenterGrammarVersion:     v.GetString("segmenter.grammar_version"),
		SegmenterMarkerPattern:      v.GetString("segmenter.marker_pattern"),
		SegmenterPointsPattern:      v.GetString("segmenter.points_pattern"),
		SegmenterKeywordsPattern:    v.GetString("segmenter.keywords_pattern"),
		SegmenterKeywordCount:       v.GetInt("segmenter.keyword_count"),
		SegmenterTotalPoints:        v.GetFloat64("segmenter.total_points"),
		ExtractionTimeout:           v.GetDuration("extraction.timeout"),
		EmbeddingProvider:           strings.ToLower(strings.TrimSpace(v.GetString("embedding.provider"))),
		EmbeddingDimensions:         v.GetInt("embedding.dimensions"),
		EmbeddingTimeout:            v.GetDuration("embedding.timeout"),
		EmbeddingCacheTTL:           v.GetDuration("embedding.cache_ttl"),
		OpenAIAPIKey:                v.GetString("openai.api_key"),
		OpenAIBaseURL:               v.GetString("openai.base_url"),
		OpenAIModel:                 v.GetString("openai.model"),
		UploadMaxMB:                 v.GetInt("upload.max_mb"),
		UploadRateLimit:             v.GetInt("upload.rate_limit"),
		UploadRateWindow:            v.GetDuration("upload.rate_window"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("invalid grading weights: %w", err)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("invalid similarity thresholds: %w", err)
	}
	if err := c.Grammar().Validate(); err != nil {
		return fmt.Errorf("invalid segmenter grammar: %w", err)
	}

	switch c.SimilarityMode {
	case SimilarityModeInline:
	case SimilarityModeDeferred:
		if c.NATSURL == "" {
			return fmt.Errorf("deferred similarity requires a nats url")
		}
	default:
		return fmt.Errorf("unknown similarity mode %q", c.SimilarityMode)
	}

	switch c.EmbeddingProvider {
	case EmbeddingProviderHashing:
		if c.EmbeddingDimensions <= 0 {
			return fmt.Errorf("embedding dimensions must be positive")
		}
	case EmbeddingProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai embedding provider requires an api key")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}

	if c.ExtractionTimeout <= 0 || c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.UploadMaxMB <= 0 {
		return fmt.Errorf("upload limit must be positive")
	}

	return nil
}
