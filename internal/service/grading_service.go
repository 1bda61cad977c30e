package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/observability"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// GradingService scores stored submissions against their exam's answer keys.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint) (dto.GradeResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	exams       repository.ExamRepository
	engine      *grading.Engine
	similarity  SimilarityTrigger
	publisher   events.Publisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading service. trigger may be nil when
// similarity detection runs elsewhere.
func NewGradingService(submissions repository.SubmissionRepository, exams repository.ExamRepository, engine *grading.Engine, trigger SimilarityTrigger, publisher events.Publisher, logger zerolog.Logger) GradingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &gradingService{
		submissions: submissions,
		exams:       exams,
		engine:      engine,
		similarity:  trigger,
		publisher:   publisher,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint) (dto.GradeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/autograde-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.grade")
	span.SetAttributes(attribute.Int64("grading.submission_id", int64(submissionID)))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.GradingDuration().Observe(time.Since(start).Seconds())
	}()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.GradeResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.GradeResponse{}, err
	}
	span.SetAttributes(attribute.Int64("grading.exam_id", int64(submission.ExamID)))

	questions, err := s.exams.ListQuestions(ctx, submission.ExamID)
	if err != nil {
		return dto.GradeResponse{}, s.fail(ctx, &submission, fmt.Errorf("load questions: %w", err))
	}

	result, err := s.engine.Grade(toGradingQuestions(questions), toGradingAnswers(submission.Answers))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not_gradable")
		return dto.GradeResponse{}, s.fail(ctx, &submission, err)
	}

	storedStatus := submission.Status
	if err := submission.MarkGraded(result.Total, result.MaxTotal, toBreakdown(result.Breakdown), s.now().UTC()); err != nil {
		span.RecordError(err)
		return dto.GradeResponse{}, err
	}
	if err := s.submissions.SaveGrade(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_persist_failed")
		// The row still holds its previous state; a FAILED attempt cannot be
		// recorded either, so operators re-trigger grading by hand.
		s.logger.Error().Err(err).
			Uint("submission_id", submission.ID).
			Uint("exam_id", submission.ExamID).
			Str("stored_status", string(storedStatus)).
			Str("retry", fmt.Sprintf("POST /api/v1/submissions/%d/grade", submission.ID)).
			Msgf("grade computed but not persisted; submission remains %s", storedStatus)
		return dto.GradeResponse{}, err
	}

	observability.GradingOutcomes().WithLabelValues(string(models.SubmissionStatusGraded)).Inc()
	span.SetAttributes(attribute.Float64("grading.total", result.Total))
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("exam_id", submission.ExamID).
		Float64("grade_total", result.Total).
		Float64("max_total", result.MaxTotal).
		Msg("submission graded")

	s.afterGrade(ctx, submission, result)

	return dto.NewGradeResponse(submission), nil
}

// fail records cause on the submission and returns it. Persisting the failure
// is best effort; cause is always surfaced.
func (s *gradingService) fail(ctx context.Context, submission *models.Submission, cause error) error {
	observability.GradingOutcomes().WithLabelValues(string(models.SubmissionStatusFailed)).Inc()

	if err := submission.MarkFailed(cause.Error()); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("cannot mark graded submission as failed")
		return cause
	}
	if err := s.submissions.SaveGrade(ctx, submission); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to persist grading failure")
	}

	s.logger.Warn().Err(cause).Uint("submission_id", submission.ID).Msg("grading failed")
	return cause
}

func (s *gradingService) afterGrade(ctx context.Context, submission models.Submission, result grading.Result) {
	event := events.SubmissionGraded{
		ExamID:       submission.ExamID,
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		GradeTotal:   result.Total,
		MaxTotal:     result.MaxTotal,
	}
	if submission.GradedAt != nil {
		event.GradedAt = *submission.GradedAt
	}
	if err := s.publisher.Publish(ctx, events.SubjectSubmissionGraded, event); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish graded event")
	}

	if s.similarity == nil {
		return
	}
	if err := s.similarity.SubmissionGraded(ctx, submission.ExamID, submission.ID); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("similarity detection not started")
	}
}

func toGradingQuestions(questions []models.Question) []grading.Question {
	out := make([]grading.Question, 0, len(questions))
	for _, q := range questions {
		out = append(out, grading.Question{
			ID:        q.ID,
			Index:     q.Index,
			MaxPoints: q.MaxPoints,
			Reference: q.ReferenceText,
			Keywords:  q.Keywords,
		})
	}
	return out
}

// toGradingAnswers drops answers whose label matched no question.
func toGradingAnswers(answers []models.Answer) []grading.Answer {
	out := make([]grading.Answer, 0, len(answers))
	for _, a := range answers {
		if a.QuestionID == nil {
			continue
		}
		out = append(out, grading.Answer{QuestionID: *a.QuestionID, Text: a.Text})
	}
	return out
}

func toBreakdown(scores []grading.QuestionScore) []models.BreakdownItem {
	out := make([]models.BreakdownItem, 0, len(scores))
	for _, score := range scores {
		out = append(out, models.BreakdownItem{
			QuestionID:      score.QuestionID,
			Index:           score.Index,
			Awarded:         score.Awarded,
			MaxPoints:       score.MaxPoints,
			Coverage:        score.Coverage,
			Similarity:      score.Similarity,
			MatchedKeywords: score.MatchedKeywords,
			MissingKeywords: score.MissingKeywords,
			Answered:        score.Answered,
		})
	}
	return out
}
