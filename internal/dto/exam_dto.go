package dto

import (
	"math"
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta derives page counts from the total number of items.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total}
	if pageSize > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return meta
}

// PageQuery holds common pagination query parameters.
type PageQuery struct {
	Page     int `query:"page" validate:"omitempty,gte=1"`
	PageSize int `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// Normalize applies default paging values.
func (p PageQuery) Normalize() PageQuery {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	return p
}

// ExamCreateRequest is the payload for creating an exam.
type ExamCreateRequest struct {
	Title       string    `json:"title" validate:"required,min=3,max=255"`
	Description string    `json:"description" validate:"omitempty,max=5000"`
	DueAt       time.Time `json:"due_at" validate:"required"`
}

// QuestionInput describes one manually entered question.
type QuestionInput struct {
	Index         int      `json:"index" validate:"required,gt=0"`
	Prompt        string   `json:"prompt" validate:"required,min=1"`
	MaxPoints     float64  `json:"max_points" validate:"required,gt=0"`
	ReferenceText string   `json:"reference_text" validate:"omitempty,max=20000"`
	Keywords      []string `json:"keywords" validate:"omitempty,max=50,dive,min=1,max=100"`
}

// QuestionsReplaceRequest replaces the full question set of an exam.
type QuestionsReplaceRequest struct {
	Questions []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// QuestionResponse serializes a question with its answer key.
type QuestionResponse struct {
	ID            uint     `json:"id"`
	Index         int      `json:"index"`
	Prompt        string   `json:"prompt"`
	MaxPoints     float64  `json:"max_points"`
	ReferenceText string   `json:"reference_text"`
	Keywords      []string `json:"keywords"`
}

// ExamResponse is returned to API clients when viewing exams.
type ExamResponse struct {
	ID            uint               `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	ProfessorID   uint               `json:"professor_id"`
	DueAt         time.Time          `json:"due_at"`
	ClosedAt      *time.Time         `json:"closed_at"`
	Status        models.ExamStatus  `json:"status"`
	QuestionCount int                `json:"question_count"`
	TotalPoints   float64            `json:"total_points"`
	Questions     []QuestionResponse `json:"questions,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ExamListResponse wraps a page of exams.
type ExamListResponse struct {
	Items      []ExamResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// SolutionIngestResponse reports what solution ingestion detected.
type SolutionIngestResponse struct {
	ExamID            uint               `json:"exam_id"`
	GrammarVersion    string             `json:"grammar_version"`
	QuestionsDetected int                `json:"questions_detected"`
	TotalPoints       float64            `json:"total_points"`
	Questions         []QuestionResponse `json:"questions"`
	Warnings          []string           `json:"warnings"`
}

// NewQuestionResponse converts a Question model into a DTO.
func NewQuestionResponse(model models.Question) QuestionResponse {
	keywords := []string(model.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return QuestionResponse{
		ID:            model.ID,
		Index:         model.Index,
		Prompt:        model.Prompt,
		MaxPoints:     model.MaxPoints,
		ReferenceText: model.ReferenceText,
		Keywords:      keywords,
	}
}

// NewQuestionResponseSlice converts questions preserving order.
func NewQuestionResponseSlice(items []models.Question) []QuestionResponse {
	out := make([]QuestionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewQuestionResponse(item))
	}
	return out
}

// NewExamResponse converts an Exam model into a DTO. withQuestions controls
// whether answer keys are included.
func NewExamResponse(model models.Exam, now time.Time, withQuestions bool) ExamResponse {
	total := 0.0
	for _, q := range model.Questions {
		total += q.MaxPoints
	}

	response := ExamResponse{
		ID:            model.ID,
		Title:         model.Title,
		Description:   model.Description,
		ProfessorID:   model.ProfessorID,
		DueAt:         model.DueAt,
		ClosedAt:      model.ClosedAt,
		Status:        model.Status(now, len(model.Questions)),
		QuestionCount: len(model.Questions),
		TotalPoints:   math.Round(total*100) / 100,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
	if withQuestions {
		response.Questions = NewQuestionResponseSlice(model.Questions)
	}
	return response
}
