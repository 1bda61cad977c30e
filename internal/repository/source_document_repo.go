package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// SourceDocumentRepository stores the extracted text of ingested documents.
type SourceDocumentRepository interface {
	Create(ctx context.Context, doc *models.SourceDocument) error
	LatestSolution(ctx context.Context, examID uint) (models.SourceDocument, error)
	ForSubmission(ctx context.Context, submissionID uint) (models.SourceDocument, error)
}

type sourceDocumentRepository struct {
	db *gorm.DB
}

// NewSourceDocumentRepository instantiates the repository.
func NewSourceDocumentRepository(db *gorm.DB) SourceDocumentRepository {
	return &sourceDocumentRepository{db: db}
}

func (r *sourceDocumentRepository) Create(ctx context.Context, doc *models.SourceDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *sourceDocumentRepository) LatestSolution(ctx context.Context, examID uint) (models.SourceDocument, error) {
	var doc models.SourceDocument
	err := r.db.WithContext(ctx).
		Where("exam_id = ? AND kind = ?", examID, models.DocumentKindSolution).
		Order("id DESC").
		First(&doc).Error
	if err != nil {
		return models.SourceDocument{}, err
	}
	return doc, nil
}

func (r *sourceDocumentRepository) ForSubmission(ctx context.Context, submissionID uint) (models.SourceDocument, error) {
	var doc models.SourceDocument
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id DESC").
		First(&doc).Error
	if err != nil {
		return models.SourceDocument{}, err
	}
	return doc, nil
}
