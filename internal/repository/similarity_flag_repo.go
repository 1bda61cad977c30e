package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/autograde-api/internal/models"
)

// FlagFilter narrows flag list queries.
type FlagFilter struct {
	QuestionID   *uint
	SubmissionID *uint
	Page         int
	PageSize     int
}

// SimilarityFlagRepository persists similarity flags. Flags are insert-only.
type SimilarityFlagRepository interface {
	CreateBatch(ctx context.Context, flags []models.SimilarityFlag) (int64, error)
	ListByExam(ctx context.Context, examID uint, filter FlagFilter) ([]models.SimilarityFlag, int64, error)
	ListPairs(ctx context.Context, examID uint) ([]models.SimilarityFlag, error)
}

type similarityFlagRepository struct {
	db *gorm.DB
}

// NewSimilarityFlagRepository instantiates the repository.
func NewSimilarityFlagRepository(db *gorm.DB) SimilarityFlagRepository {
	return &similarityFlagRepository{db: db}
}

// CreateBatch inserts flags, silently skipping pairs that already exist.
func (r *similarityFlagRepository) CreateBatch(ctx context.Context, flags []models.SimilarityFlag) (int64, error) {
	if len(flags) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&flags)
	return result.RowsAffected, result.Error
}

func (r *similarityFlagRepository) ListByExam(ctx context.Context, examID uint, filter FlagFilter) ([]models.SimilarityFlag, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SimilarityFlag{}).Where("exam_id = ?", examID)

	if filter.QuestionID != nil {
		query = query.Where("question_id = ?", *filter.QuestionID)
	}

	if filter.SubmissionID != nil {
		query = query.Where("submission_a_id = ? OR submission_b_id = ?", *filter.SubmissionID, *filter.SubmissionID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var flags []models.SimilarityFlag
	if err := query.Order("semantic_score DESC, jaccard_score DESC, id ASC").Find(&flags).Error; err != nil {
		return nil, 0, err
	}

	return flags, total, nil
}

func (r *similarityFlagRepository) ListPairs(ctx context.Context, examID uint) ([]models.SimilarityFlag, error) {
	var pairs []models.SimilarityFlag
	err := r.db.WithContext(ctx).
		Select("question_id", "submission_a_id", "submission_b_id").
		Where("exam_id = ?", examID).
		Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	return pairs, nil
}
