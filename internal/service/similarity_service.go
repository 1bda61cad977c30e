package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/observability"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/similarity"
)

// SimilarityService detects and lists suspiciously similar answers.
type SimilarityService interface {
	DetectSimilarity(ctx context.Context, examID uint) (dto.SimilarityRunResponse, error)
	DetectForSubmission(ctx context.Context, submissionID uint) (dto.SimilarityRunResponse, error)
	ListFlags(ctx context.Context, examID uint, filter dto.FlagFilter) (dto.FlagListResponse, error)
}

type similarityService struct {
	exams       repository.ExamRepository
	submissions repository.SubmissionRepository
	flags       repository.SimilarityFlagRepository
	engine      *similarity.Engine
	publisher   events.Publisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	timeout     time.Duration
	now         func() time.Time
}

// NewSimilarityService constructs the similarity service. timeout bounds a
// whole detection run; zero disables it.
func NewSimilarityService(exams repository.ExamRepository, submissions repository.SubmissionRepository, flags repository.SimilarityFlagRepository, engine *similarity.Engine, publisher events.Publisher, validate *validator.Validate, timeout time.Duration, logger zerolog.Logger) SimilarityService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &similarityService{
		exams:       exams,
		submissions: submissions,
		flags:       flags,
		engine:      engine,
		publisher:   publisher,
		validator:   validate,
		logger:      logger.With().Str("component", "similarity_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/autograde-api/internal/service/similarity"),
		timeout:     timeout,
		now:         time.Now,
	}
}

func (s *similarityService) DetectSimilarity(ctx context.Context, examID uint) (dto.SimilarityRunResponse, error) {
	ctx, span := s.tracer.Start(ctx, "similarity.detect_exam", trace.WithAttributes(attribute.Int64("similarity.exam_id", int64(examID))))
	defer span.End()

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SimilarityRunResponse{}, ErrExamNotFound
		}
		span.RecordError(err)
		return dto.SimilarityRunResponse{}, err
	}

	response, err := s.detect(ctx, examID, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection_failed")
		observability.SimilarityRuns().WithLabelValues("full", "error").Inc()
		return dto.SimilarityRunResponse{}, err
	}
	observability.SimilarityRuns().WithLabelValues("full", "ok").Inc()
	return response, nil
}

func (s *similarityService) DetectForSubmission(ctx context.Context, submissionID uint) (dto.SimilarityRunResponse, error) {
	ctx, span := s.tracer.Start(ctx, "similarity.detect_submission", trace.WithAttributes(attribute.Int64("similarity.submission_id", int64(submissionID))))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SimilarityRunResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SimilarityRunResponse{}, err
	}

	if submission.Status != models.SubmissionStatusGraded {
		s.logger.Debug().Uint("submission_id", submissionID).Str("status", string(submission.Status)).Msg("skipping similarity for ungraded submission")
		observability.SimilarityRuns().WithLabelValues("incremental", "skipped").Inc()
		return dto.SimilarityRunResponse{ExamID: submission.ExamID, Flags: []dto.FlagResponse{}}, nil
	}

	response, err := s.detect(ctx, submission.ExamID, submission.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detection_failed")
		observability.SimilarityRuns().WithLabelValues("incremental", "error").Inc()
		return dto.SimilarityRunResponse{}, err
	}
	observability.SimilarityRuns().WithLabelValues("incremental", "ok").Inc()
	return response, nil
}

// detect compares graded answers of the exam, restricted to pairs involving
// focus when non-zero. Pairs that already carry a flag are skipped.
func (s *similarityService) detect(ctx context.Context, examID, focus uint) (dto.SimilarityRunResponse, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answers, err := s.submissions.ListGradedAnswers(ctx, examID)
	if err != nil {
		return dto.SimilarityRunResponse{}, err
	}

	existing, err := s.flags.ListPairs(ctx, examID)
	if err != nil {
		return dto.SimilarityRunResponse{}, err
	}
	known := make(map[similarity.PairKey]struct{}, len(existing))
	for _, flag := range existing {
		known[similarity.NewPairKey(flag.QuestionID, flag.SubmissionAID, flag.SubmissionBID)] = struct{}{}
	}

	entries := make([]similarity.Entry, 0, len(answers))
	for _, answer := range answers {
		entries = append(entries, similarity.Entry{
			SubmissionID:  answer.SubmissionID,
			QuestionID:    answer.QuestionID,
			QuestionIndex: answer.QuestionIndex,
			Text:          answer.Text,
		})
	}

	found, stats, err := s.engine.Detect(ctx, entries, similarity.Options{
		Focus: focus,
		Skip: func(key similarity.PairKey) bool {
			_, ok := known[key]
			return ok
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return dto.SimilarityRunResponse{}, errors.Join(ErrEngineUnavailable, err)
		}
		return dto.SimilarityRunResponse{}, err
	}

	flags := make([]models.SimilarityFlag, 0, len(found))
	for _, flag := range found {
		flags = append(flags, models.SimilarityFlag{
			ExamID:        examID,
			QuestionID:    flag.QuestionID,
			SubmissionAID: flag.SubmissionA,
			SubmissionBID: flag.SubmissionB,
			QuestionIndex: flag.QuestionIndex,
			SemanticScore: flag.Semantic,
			JaccardScore:  flag.Jaccard,
			Reason:        flag.Reason,
		})
	}

	var created int64
	if len(flags) > 0 {
		created, err = s.flags.CreateBatch(ctx, flags)
		if err != nil {
			return dto.SimilarityRunResponse{}, err
		}
		if flags, err = s.storedFlags(ctx, examID, focus, flags); err != nil {
			return dto.SimilarityRunResponse{}, err
		}
	}

	observability.SimilarityFlagsCreated().Add(float64(created))
	observability.SimilarityPairFailures().Add(float64(stats.Failed))

	s.logger.Info().
		Uint("exam_id", examID).
		Uint("focus_submission_id", focus).
		Int("compared", stats.Compared).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("embedding_errors", stats.EmbeddingErrors).
		Int64("created", created).
		Msg("similarity detection finished")

	if created > 0 {
		event := events.FlagsCreated{ExamID: examID, SubmissionID: focus, Created: created, DetectedAt: s.now().UTC()}
		if err := s.publisher.Publish(ctx, events.SubjectFlagsCreated, event); err != nil {
			s.logger.Warn().Err(err).Uint("exam_id", examID).Msg("failed to publish flags event")
		}
	}

	return dto.SimilarityRunResponse{
		ExamID:   examID,
		Created:  created,
		Compared: stats.Compared,
		Skipped:  stats.Skipped,
		Failed:   stats.Failed,
		Flags:    dto.NewFlagResponseSlice(flags),
	}, nil
}

// storedFlags reloads the persisted rows for the pairs detected in this run.
// A pair inserted concurrently by another run hits the conflict guard, so its
// row only exists in storage.
func (s *similarityService) storedFlags(ctx context.Context, examID, focus uint, detected []models.SimilarityFlag) ([]models.SimilarityFlag, error) {
	wanted := make(map[similarity.PairKey]struct{}, len(detected))
	for _, flag := range detected {
		wanted[similarity.NewPairKey(flag.QuestionID, flag.SubmissionAID, flag.SubmissionBID)] = struct{}{}
	}

	filter := repository.FlagFilter{}
	if focus != 0 {
		filter.SubmissionID = &focus
	}
	stored, _, err := s.flags.ListByExam(ctx, examID, filter)
	if err != nil {
		return nil, err
	}

	out := make([]models.SimilarityFlag, 0, len(detected))
	for _, flag := range stored {
		if _, ok := wanted[similarity.NewPairKey(flag.QuestionID, flag.SubmissionAID, flag.SubmissionBID)]; ok {
			out = append(out, flag)
		}
	}
	return out, nil
}

func (s *similarityService) ListFlags(ctx context.Context, examID uint, filter dto.FlagFilter) (dto.FlagListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.FlagListResponse{}, err
	}

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FlagListResponse{}, ErrExamNotFound
		}
		return dto.FlagListResponse{}, err
	}

	page := filter.PageQuery.Normalize()
	items, total, err := s.flags.ListByExam(ctx, examID, repository.FlagFilter{
		QuestionID:   filter.QuestionID,
		SubmissionID: filter.SubmissionID,
		Page:         page.Page,
		PageSize:     page.PageSize,
	})
	if err != nil {
		return dto.FlagListResponse{}, err
	}

	return dto.FlagListResponse{
		Items:      dto.NewFlagResponseSlice(items),
		Pagination: dto.NewPaginationMeta(page.Page, page.PageSize, total),
	}, nil
}
