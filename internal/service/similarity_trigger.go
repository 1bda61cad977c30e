package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/middleware"
)

// Similarity modes.
const (
	SimilarityModeInline   = "inline"
	SimilarityModeDeferred = "deferred"
)

// SimilarityTrigger starts incremental detection for a freshly graded submission.
type SimilarityTrigger interface {
	SubmissionGraded(ctx context.Context, examID, submissionID uint) error
}

// NewSimilarityTrigger picks the trigger for mode. Deferred mode publishes a
// job for the similarity worker; anything else runs detection in-process.
func NewSimilarityTrigger(mode string, similarity SimilarityService, publisher events.Publisher, logger zerolog.Logger) SimilarityTrigger {
	if strings.EqualFold(strings.TrimSpace(mode), SimilarityModeDeferred) && publisher != nil {
		return &deferredTrigger{publisher: publisher}
	}
	return &inlineTrigger{
		similarity: similarity,
		logger:     logger.With().Str("component", "similarity_trigger").Logger(),
	}
}

type inlineTrigger struct {
	similarity SimilarityService
	logger     zerolog.Logger
}

func (t *inlineTrigger) SubmissionGraded(ctx context.Context, _, submissionID uint) error {
	result, err := t.similarity.DetectForSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if result.Created > 0 {
		t.logger.Info().Uint("submission_id", submissionID).Int64("created", result.Created).Msg("similar answers flagged")
	}
	return nil
}

type deferredTrigger struct {
	publisher events.Publisher
}

func (t *deferredTrigger) SubmissionGraded(ctx context.Context, examID, submissionID uint) error {
	request := events.SimilarityRequested{
		ExamID:        examID,
		SubmissionID:  submissionID,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		RequestedAt:   time.Now().UTC(),
	}
	if err := t.publisher.Publish(ctx, events.SubjectSimilarityRequested, request); err != nil {
		return fmt.Errorf("queue similarity job: %w", err)
	}
	return nil
}
