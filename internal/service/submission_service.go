package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
)

// SubmissionService exposes read access to stored submissions.
type SubmissionService interface {
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	ListByExam(ctx context.Context, examID uint, filter dto.SubmissionFilter) (dto.SubmissionListResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionService creates a new submission service instance.
func NewSubmissionService(submissions repository.SubmissionRepository, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListByExam(ctx context.Context, examID uint, filter dto.SubmissionFilter) (dto.SubmissionListResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.SubmissionListResponse{}, err
	}

	page := filter.PageQuery.Normalize()
	query := repository.SubmissionFilter{ExamID: &examID, Page: page.Page, PageSize: page.PageSize}
	if filter.Status != nil {
		status := models.SubmissionStatus(*filter.Status)
		query.Status = &status
	}

	items, total, err := s.submissions.List(ctx, query)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	return dto.SubmissionListResponse{
		Items:      dto.NewSubmissionResponseSlice(items),
		Pagination: dto.NewPaginationMeta(page.Page, page.PageSize, total),
	}, nil
}
