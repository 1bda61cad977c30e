package dto

import (
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
)

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	PageQuery
	Status *string `query:"status" validate:"omitempty,oneof=PENDING GRADED FAILED"`
}

// TypedAnswerInput is one answer typed against a question id.
type TypedAnswerInput struct {
	QuestionID uint   `json:"question_id" validate:"required,gt=0"`
	Text       string `json:"text" validate:"max=20000"`
}

// SubmissionAnswersRequest submits typed answers without a document.
type SubmissionAnswersRequest struct {
	Answers []TypedAnswerInput `json:"answers" validate:"required,min=1,max=200,dive"`
}

// AnswerResponse serializes one detected answer.
type AnswerResponse struct {
	ID            uint   `json:"id"`
	QuestionID    *uint  `json:"question_id"`
	DetectedIndex int    `json:"detected_index"`
	Text          string `json:"text"`
}

// BreakdownItemResponse is the score of one question.
type BreakdownItemResponse struct {
	QuestionID      uint     `json:"question_id"`
	Index           int      `json:"index"`
	Awarded         float64  `json:"awarded"`
	MaxPoints       float64  `json:"max_points"`
	Coverage        float64  `json:"coverage"`
	Similarity      float64  `json:"similarity"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
	Answered        bool     `json:"answered"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint                    `json:"id"`
	ExamID        uint                    `json:"exam_id"`
	StudentID     uint                    `json:"student_id"`
	Status        models.SubmissionStatus `json:"status"`
	SubmittedAt   time.Time               `json:"submitted_at"`
	GradedAt      *time.Time              `json:"graded_at"`
	GradeTotal    *float64                `json:"grade_total"`
	MaxTotal      *float64                `json:"max_total"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	Warnings      []string                `json:"warnings"`
	Answers       []AnswerResponse        `json:"answers,omitempty"`
	Breakdown     []BreakdownItemResponse `json:"breakdown"`
}

// SubmissionListResponse wraps a page of submissions.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// GradeResponse is the result of grading a submission.
type GradeResponse struct {
	SubmissionID uint                    `json:"submission_id"`
	Status       models.SubmissionStatus `json:"status"`
	GradeTotal   float64                 `json:"grade_total"`
	MaxTotal     float64                 `json:"max_total"`
	Breakdown    []BreakdownItemResponse `json:"breakdown"`
}

// NewBreakdownResponse converts persisted breakdown items.
func NewBreakdownResponse(items []models.BreakdownItem) []BreakdownItemResponse {
	out := make([]BreakdownItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, BreakdownItemResponse{
			QuestionID:      item.QuestionID,
			Index:           item.Index,
			Awarded:         item.Awarded,
			MaxPoints:       item.MaxPoints,
			Coverage:        item.Coverage,
			Similarity:      item.Similarity,
			MatchedKeywords: nonNil(item.MatchedKeywords),
			MissingKeywords: nonNil(item.MissingKeywords),
			Answered:        item.Answered,
		})
	}
	return out
}

// NewSubmissionResponse converts a Submission model into a DTO. Answers are
// included only when loaded.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		ExamID:        model.ExamID,
		StudentID:     model.StudentID,
		Status:        model.Status,
		SubmittedAt:   model.SubmittedAt,
		GradedAt:      model.GradedAt,
		GradeTotal:    model.GradeTotal,
		MaxTotal:      model.MaxTotal,
		FailureReason: model.FailureReason,
		Warnings:      nonNil(model.Warnings),
		Breakdown:     NewBreakdownResponse(model.Breakdown),
	}

	if len(model.Answers) > 0 {
		response.Answers = make([]AnswerResponse, 0, len(model.Answers))
		for _, answer := range model.Answers {
			response.Answers = append(response.Answers, AnswerResponse{
				ID:            answer.ID,
				QuestionID:    answer.QuestionID,
				DetectedIndex: answer.DetectedIndex,
				Text:          answer.Text,
			})
		}
	}

	return response
}

// NewSubmissionResponseSlice converts a list of submissions.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	out := make([]SubmissionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewSubmissionResponse(item))
	}
	return out
}

// NewGradeResponse converts a graded submission.
func NewGradeResponse(model models.Submission) GradeResponse {
	response := GradeResponse{
		SubmissionID: model.ID,
		Status:       model.Status,
		Breakdown:    NewBreakdownResponse(model.Breakdown),
	}
	if model.GradeTotal != nil {
		response.GradeTotal = *model.GradeTotal
	}
	if model.MaxTotal != nil {
		response.MaxTotal = *model.MaxTotal
	}
	return response
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
