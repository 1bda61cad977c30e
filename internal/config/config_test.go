package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "AutoGrade API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 0.4, cfg.Weights().Keyword)
	require.Equal(t, 0.6, cfg.Weights().Similarity)
	require.Equal(t, 0.85, cfg.Thresholds().Semantic)
	require.Equal(t, 0.6, cfg.Thresholds().Jaccard)
	require.Equal(t, SimilarityModeInline, cfg.SimilarityMode)
	require.Equal(t, EmbeddingProviderHashing, cfg.EmbeddingProvider)
	require.Equal(t, 256, cfg.EmbeddingDimensions)
	require.Equal(t, 20*time.Second, cfg.ExtractionTimeout)
	require.Equal(t, 15*time.Second, cfg.EmbeddingTimeout)
	require.Equal(t, 24*time.Hour, cfg.EmbeddingCacheTTL)
	require.Equal(t, int64(10<<20), cfg.UploadMaxBytes())
	require.Equal(t, 8, cfg.Grammar().KeywordCount)
	require.Equal(t, 100.0, cfg.Grammar().TotalPoints)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRADER_JWT_SECRET", "secret")
	t.Setenv("GRADER_APP_PORT", ":9090")
	t.Setenv("GRADER_GRADING_KEYWORD_WEIGHT", "0.5")
	t.Setenv("GRADER_GRADING_SIMILARITY_WEIGHT", "0.5")
	t.Setenv("GRADER_SIMILARITY_MODE", "Deferred")
	t.Setenv("GRADER_NATS_URL", "nats://localhost:4222")
	t.Setenv("GRADER_SEGMENTER_KEYWORD_COUNT", "5")
	t.Setenv("GRADER_EXTRACTION_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 0.5, cfg.Weights().Keyword)
	require.Equal(t, SimilarityModeDeferred, cfg.SimilarityMode)
	require.Equal(t, 5, cfg.Grammar().KeywordCount)
	require.Equal(t, 5*time.Second, cfg.ExtractionTimeout)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":     {"GRADER_JWT_SECRET": ""},
		"weights":            {"GRADER_GRADING_KEYWORD_WEIGHT": "0.7"},
		"threshold":          {"GRADER_SIMILARITY_JACCARD_THRESHOLD": "1.5"},
		"mode":               {"GRADER_SIMILARITY_MODE": "batch"},
		"deferred sans nats": {"GRADER_SIMILARITY_MODE": "deferred"},
		"provider":           {"GRADER_EMBEDDING_PROVIDER": "bert"},
		"openai sans key":    {"GRADER_EMBEDDING_PROVIDER": "openai"},
		"marker pattern":     {"GRADER_SEGMENTER_MARKER_PATTERN": "^(unclosed"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("GRADER_JWT_SECRET", "secret")
			for key, value := range env {
				t.Setenv(key, value)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
