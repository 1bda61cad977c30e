package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
)

type stubRunner struct {
	calls       []uint
	correlation string
	deadline    bool
	err         error
}

func (s *stubRunner) DetectForSubmission(ctx context.Context, submissionID uint) (dto.SimilarityRunResponse, error) {
	s.calls = append(s.calls, submissionID)
	s.correlation = middleware.CorrelationIDFromContext(ctx)
	_, s.deadline = ctx.Deadline()
	if s.err != nil {
		return dto.SimilarityRunResponse{}, s.err
	}
	return dto.SimilarityRunResponse{Created: 1, Compared: 2}, nil
}

func payload(t *testing.T, job events.SimilarityRequested) []byte {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func TestSimilarityWorkerRunsJob(t *testing.T) {
	runner := &stubRunner{}
	worker := NewSimilarityWorker(nil, runner, time.Second, zerolog.Nop())

	err := worker.handle(context.Background(), payload(t, events.SimilarityRequested{ExamID: 1, SubmissionID: 5, CorrelationID: "abc"}))
	require.NoError(t, err)
	require.Equal(t, []uint{5}, runner.calls)
	require.Equal(t, "abc", runner.correlation)
	require.True(t, runner.deadline)
}

func TestSimilarityWorkerDropsBadPayloads(t *testing.T) {
	runner := &stubRunner{}
	worker := NewSimilarityWorker(nil, runner, time.Second, zerolog.Nop())

	require.NoError(t, worker.handle(context.Background(), []byte("{not json")))
	require.NoError(t, worker.handle(context.Background(), payload(t, events.SimilarityRequested{ExamID: 1})))
	require.Empty(t, runner.calls)
}

func TestSimilarityWorkerReportsFailures(t *testing.T) {
	runner := &stubRunner{err: service.ErrEngineUnavailable}
	worker := NewSimilarityWorker(nil, runner, time.Second, zerolog.Nop())

	err := worker.handle(context.Background(), payload(t, events.SimilarityRequested{SubmissionID: 9}))
	require.ErrorIs(t, err, service.ErrEngineUnavailable)

	runner.err = service.ErrSubmissionNotFound
	require.NoError(t, worker.handle(context.Background(), payload(t, events.SimilarityRequested{SubmissionID: 10})))

	runner.err = errors.New("boom")
	require.Error(t, worker.handle(context.Background(), payload(t, events.SimilarityRequested{SubmissionID: 11})))
}

func TestSimilarityWorkerRequiresConnection(t *testing.T) {
	worker := NewSimilarityWorker(nil, &stubRunner{}, 0, zerolog.Nop())
	require.Error(t, worker.Start(context.Background()))
	require.Equal(t, time.Minute, worker.timeout)
}

func TestNATSPublisherWithoutConnectionDropsEvents(t *testing.T) {
	publisher := events.NewNATSPublisher(nil, zerolog.Nop())
	require.IsType(t, events.NopPublisher{}, publisher)
	require.NoError(t, publisher.Publish(context.Background(), events.SubjectSubmissionGraded, events.SubmissionGraded{SubmissionID: 1}))
}
