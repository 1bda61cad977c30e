package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/models"
)

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("record already exists")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	ExamID    *uint
	StudentID *uint
	Status    *models.SubmissionStatus
	Page      int
	PageSize  int
}

// GradedAnswer is an answer of a graded submission joined with its question.
type GradedAnswer struct {
	SubmissionID  uint
	QuestionID    uint
	QuestionIndex int
	Text          string
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Exists(ctx context.Context, examID, studentID uint) (bool, error)
	CountByExam(ctx context.Context, examID uint) (int64, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	SaveGrade(ctx context.Context, submission *models.Submission) error
	ListGradedAnswers(ctx context.Context, examID uint) ([]GradedAnswer, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

// Create inserts the submission together with its answers.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	err := r.db.WithContext(ctx).Create(submission).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("detected_index ASC, id ASC")
		}).
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Exists(ctx context.Context, examID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *submissionRepository) CountByExam(ctx context.Context, examID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.ExamID != nil {
		query = query.Where("exam_id = ?", *filter.ExamID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
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

	var submissions []models.Submission
	if err := query.Order("submitted_at ASC, id ASC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

// SaveGrade persists the grading outcome columns only.
func (r *submissionRepository) SaveGrade(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Model(submission).
		Select("status", "graded_at", "grade_total", "max_total", "breakdown", "failure_reason", "updated_at").
		Updates(submission).Error
}

func (r *submissionRepository) ListGradedAnswers(ctx context.Context, examID uint) ([]GradedAnswer, error) {
	var rows []GradedAnswer
	err := r.db.WithContext(ctx).
		Table("answers").
		Select("answers.submission_id AS submission_id, answers.question_id AS question_id, questions.question_index AS question_index, answers.text AS text").
		Joins("JOIN submissions ON submissions.id = answers.submission_id").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("submissions.exam_id = ? AND submissions.status = ?", examID, models.SubmissionStatusGraded).
		Order("questions.question_index ASC, answers.submission_id ASC, answers.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
