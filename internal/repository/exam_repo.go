package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ErrHasSubmissions is returned when questions are replaced on an exam that
// already received submissions.
var ErrHasSubmissions = errors.New("exam already has submissions")

// ExamFilter narrows exam list queries.
type ExamFilter struct {
	ProfessorID *uint
	// OpenAt keeps exams that are not closed at the given instant.
	OpenAt   *time.Time
	Page     int
	PageSize int
}

// ExamRepository persists exams and their question sets.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error)
	Close(ctx context.Context, id uint, at time.Time) error
	ListQuestions(ctx context.Context, examID uint) ([]models.Question, error)
	ReplaceQuestions(ctx context.Context, examID uint, questions []models.Question) ([]models.Question, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates the repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Omit("Questions").Create(exam).Error
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		First(&exam, id).Error
	if err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Exam{})

	if filter.ProfessorID != nil {
		query = query.Where("professor_id = ?", *filter.ProfessorID)
	}

	if filter.OpenAt != nil {
		query = query.Where("closed_at IS NULL AND due_at > ?", *filter.OpenAt).
			Where("EXISTS (SELECT 1 FROM questions WHERE questions.exam_id = exams.id)")
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

	var exams []models.Exam
	if err := query.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		Order("due_at ASC, id ASC").
		Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

func (r *examRepository) Close(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Exam{}).
		Where("id = ? AND closed_at IS NULL", id).
		Update("closed_at", at)
	return result.Error
}

func (r *examRepository) ListQuestions(ctx context.Context, examID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("question_index ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

// ReplaceQuestions swaps the full question set in one transaction. The
// submission check runs inside the transaction so a concurrent upload cannot
// slip in between.
func (r *examRepository) ReplaceQuestions(ctx context.Context, examID uint, questions []models.Question) ([]models.Question, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submissions int64
		if err := tx.Model(&models.Submission{}).Where("exam_id = ?", examID).Count(&submissions).Error; err != nil {
			return err
		}
		if submissions > 0 {
			return ErrHasSubmissions
		}

		if err := tx.Where("exam_id = ?", examID).Delete(&models.Question{}).Error; err != nil {
			return err
		}

		if len(questions) == 0 {
			return nil
		}
		for i := range questions {
			questions[i].ID = 0
			questions[i].ExamID = examID
		}
		if err := tx.Create(&questions).Error; err != nil {
			return err
		}

		return tx.Model(&models.Exam{}).Where("id = ?", examID).Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}
