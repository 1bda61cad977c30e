package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
)

// SimilarityRunner runs incremental detection for one submission.
type SimilarityRunner interface {
	DetectForSubmission(ctx context.Context, submissionID uint) (dto.SimilarityRunResponse, error)
}

// SimilarityWorker consumes deferred similarity jobs from NATS.
type SimilarityWorker struct {
	conn    *nats.Conn
	runner  SimilarityRunner
	logger  zerolog.Logger
	timeout time.Duration
}

// NewSimilarityWorker builds a worker. timeout bounds each job.
func NewSimilarityWorker(conn *nats.Conn, runner SimilarityRunner, timeout time.Duration, logger zerolog.Logger) *SimilarityWorker {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SimilarityWorker{
		conn:    conn,
		runner:  runner,
		timeout: timeout,
		logger:  logger.With().Str("component", "similarity_worker").Logger(),
	}
}

// Start subscribes to the job subject within the shared queue group. The
// subscription is drained when ctx is cancelled.
func (w *SimilarityWorker) Start(ctx context.Context) error {
	if w.conn == nil {
		return errors.New("similarity worker requires a nats connection")
	}

	sub, err := w.conn.QueueSubscribe(events.SubjectSimilarityRequested, events.SimilarityQueue, func(msg *nats.Msg) {
		if err := w.handle(ctx, msg.Data); err != nil {
			w.logger.Error().Err(err).Msg("similarity job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.SubjectSimilarityRequested, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			w.logger.Warn().Err(err).Msg("failed to drain similarity subscription")
		}
	}()

	w.logger.Info().Str("subject", events.SubjectSimilarityRequested).Str("queue", events.SimilarityQueue).Msg("similarity worker started")
	return nil
}

func (w *SimilarityWorker) handle(ctx context.Context, payload []byte) error {
	var job events.SimilarityRequested
	if err := json.Unmarshal(payload, &job); err != nil {
		w.logger.Warn().Err(err).Msg("invalid similarity job payload")
		return nil
	}
	if job.SubmissionID == 0 {
		w.logger.Warn().Msg("similarity job without submission id")
		return nil
	}

	ctx = middleware.ContextWithCorrelation(ctx, job.CorrelationID)
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	logger := w.logger.With().
		Uint("exam_id", job.ExamID).
		Uint("submission_id", job.SubmissionID).
		Str("correlation_id", job.CorrelationID).
		Logger()

	result, err := w.runner.DetectForSubmission(ctx, job.SubmissionID)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			logger.Warn().Msg("similarity job for unknown submission dropped")
			return nil
		}
		return fmt.Errorf("submission %d: %w", job.SubmissionID, err)
	}

	logger.Info().
		Int64("created", result.Created).
		Int("compared", result.Compared).
		Int("skipped", result.Skipped).
		Msg("similarity job finished")
	return nil
}
