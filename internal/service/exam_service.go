package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/textproc"
)

// ExamService manages exams and their question sets.
type ExamService interface {
	Create(ctx context.Context, professorID uint, payload dto.ExamCreateRequest) (dto.ExamResponse, error)
	Get(ctx context.Context, examID uint, withAnswerKeys bool) (dto.ExamResponse, error)
	ListForProfessor(ctx context.Context, professorID uint, query dto.PageQuery) (dto.ExamListResponse, error)
	ListOpen(ctx context.Context, query dto.PageQuery) (dto.ExamListResponse, error)
	Close(ctx context.Context, examID, professorID uint) (dto.ExamResponse, error)
	ReplaceQuestions(ctx context.Context, examID, professorID uint, payload dto.QuestionsReplaceRequest) ([]dto.QuestionResponse, error)
	Authorize(ctx context.Context, examID, professorID uint) error
}

type examService struct {
	exams     repository.ExamRepository
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewExamService constructs the exam service.
func NewExamService(exams repository.ExamRepository, validate *validator.Validate, logger zerolog.Logger) ExamService {
	return &examService{
		exams:     exams,
		validator: validate,
		logger:    logger.With().Str("component", "exam_service").Logger(),
		now:       time.Now,
	}
}

func (s *examService) Create(ctx context.Context, professorID uint, payload dto.ExamCreateRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ExamResponse{}, err
	}

	now := s.now().UTC()
	due := payload.DueAt.UTC()
	if !due.After(now) {
		return dto.ExamResponse{}, ErrInvalidDueDate
	}

	exam := models.Exam{
		Title:       strings.TrimSpace(payload.Title),
		Description: strings.TrimSpace(payload.Description),
		ProfessorID: professorID,
		DueAt:       due,
	}
	if err := s.exams.Create(ctx, &exam); err != nil {
		return dto.ExamResponse{}, err
	}

	s.logger.Info().Uint("exam_id", exam.ID).Uint("professor_id", professorID).Msg("exam created")
	return dto.NewExamResponse(exam, now, true), nil
}

func (s *examService) Get(ctx context.Context, examID uint, withAnswerKeys bool) (dto.ExamResponse, error) {
	exam, err := s.load(ctx, examID)
	if err != nil {
		return dto.ExamResponse{}, err
	}

	response := dto.NewExamResponse(exam, s.now().UTC(), true)
	if !withAnswerKeys {
		for i := range response.Questions {
			response.Questions[i].ReferenceText = ""
			response.Questions[i].Keywords = []string{}
		}
	}
	return response, nil
}

func (s *examService) ListForProfessor(ctx context.Context, professorID uint, query dto.PageQuery) (dto.ExamListResponse, error) {
	query = query.Normalize()
	return s.list(ctx, repository.ExamFilter{ProfessorID: &professorID, Page: query.Page, PageSize: query.PageSize})
}

func (s *examService) ListOpen(ctx context.Context, query dto.PageQuery) (dto.ExamListResponse, error) {
	query = query.Normalize()
	now := s.now().UTC()
	return s.list(ctx, repository.ExamFilter{OpenAt: &now, Page: query.Page, PageSize: query.PageSize})
}

func (s *examService) list(ctx context.Context, filter repository.ExamFilter) (dto.ExamListResponse, error) {
	items, total, err := s.exams.List(ctx, filter)
	if err != nil {
		return dto.ExamListResponse{}, err
	}

	now := s.now().UTC()
	responses := make([]dto.ExamResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewExamResponse(item, now, false))
	}

	return dto.ExamListResponse{
		Items:      responses,
		Pagination: dto.NewPaginationMeta(filter.Page, filter.PageSize, total),
	}, nil
}

func (s *examService) Close(ctx context.Context, examID, professorID uint) (dto.ExamResponse, error) {
	exam, err := s.owned(ctx, examID, professorID)
	if err != nil {
		return dto.ExamResponse{}, err
	}

	now := s.now().UTC()
	if exam.ClosedAt == nil {
		if err := s.exams.Close(ctx, exam.ID, now); err != nil {
			return dto.ExamResponse{}, err
		}
		exam.ClosedAt = &now
		s.logger.Info().Uint("exam_id", exam.ID).Msg("exam closed manually")
	}

	return dto.NewExamResponse(exam, now, true), nil
}

func (s *examService) ReplaceQuestions(ctx context.Context, examID, professorID uint, payload dto.QuestionsReplaceRequest) ([]dto.QuestionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/autograde-api/internal/service/exam")
	ctx, span := tracer.Start(ctx, "exam.replace_questions")
	span.SetAttributes(
		attribute.Int64("exam.id", int64(examID)),
		attribute.Int("exam.question_count", len(payload.Questions)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return nil, err
	}

	if _, err := s.owned(ctx, examID, professorID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	seen := make(map[int]struct{}, len(payload.Questions))
	questions := make([]models.Question, 0, len(payload.Questions))
	for _, input := range payload.Questions {
		if _, dup := seen[input.Index]; dup {
			return nil, ErrDuplicateQuestionIndex
		}
		seen[input.Index] = struct{}{}

		questions = append(questions, models.Question{
			Index:         input.Index,
			Prompt:        strings.TrimSpace(input.Prompt),
			MaxPoints:     input.MaxPoints,
			ReferenceText: strings.TrimSpace(input.ReferenceText),
			Keywords:      textproc.NormalizeKeywords(input.Keywords),
		})
	}

	stored, err := s.exams.ReplaceQuestions(ctx, examID, questions)
	if err != nil {
		if errors.Is(err, repository.ErrHasSubmissions) {
			span.SetStatus(codes.Error, "questions_locked")
			return nil, ErrQuestionsLocked
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace_failed")
		return nil, err
	}

	s.logger.Info().Uint("exam_id", examID).Int("questions", len(stored)).Msg("questions replaced manually")
	return dto.NewQuestionResponseSlice(stored), nil
}

func (s *examService) Authorize(ctx context.Context, examID, professorID uint) error {
	_, err := s.owned(ctx, examID, professorID)
	return err
}

func (s *examService) owned(ctx context.Context, examID, professorID uint) (models.Exam, error) {
	exam, err := s.load(ctx, examID)
	if err != nil {
		return models.Exam{}, err
	}
	if exam.ProfessorID != professorID {
		return models.Exam{}, ErrExamForbidden
	}
	return exam, nil
}

func (s *examService) load(ctx context.Context, examID uint) (models.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, ErrExamNotFound
		}
		return models.Exam{}, err
	}
	return exam, nil
}
