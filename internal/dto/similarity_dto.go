package dto

import (
	"time"

	"github.com/noah-isme/autograde-api/internal/models"
)

// FlagFilter describes query string filters for listing flags.
type FlagFilter struct {
	PageQuery
	QuestionID   *uint `query:"question_id" validate:"omitempty,gt=0"`
	SubmissionID *uint `query:"submission_id" validate:"omitempty,gt=0"`
}

// FlagResponse serializes a similarity flag.
type FlagResponse struct {
	ID            uint      `json:"id"`
	ExamID        uint      `json:"exam_id"`
	QuestionID    uint      `json:"question_id"`
	QuestionIndex int       `json:"question_index"`
	SubmissionAID uint      `json:"submission_a_id"`
	SubmissionBID uint      `json:"submission_b_id"`
	SemanticScore float64   `json:"semantic_score"`
	JaccardScore  float64   `json:"jaccard_score"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// FlagListResponse wraps a page of flags.
type FlagListResponse struct {
	Items      []FlagResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// SimilarityRunResponse summarizes a detection run. Flags holds the stored
// rows for pairs flagged by this run; pairs skipped as already flagged are
// listed through the exam's flag listing.
type SimilarityRunResponse struct {
	ExamID   uint           `json:"exam_id"`
	Created  int64          `json:"created"`
	Compared int            `json:"compared"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Flags    []FlagResponse `json:"flags"`
}

// NewFlagResponse converts a SimilarityFlag model into a DTO.
func NewFlagResponse(model models.SimilarityFlag) FlagResponse {
	return FlagResponse{
		ID:            model.ID,
		ExamID:        model.ExamID,
		QuestionID:    model.QuestionID,
		QuestionIndex: model.QuestionIndex,
		SubmissionAID: model.SubmissionAID,
		SubmissionBID: model.SubmissionBID,
		SemanticScore: model.SemanticScore,
		JaccardScore:  model.JaccardScore,
		Reason:        model.Reason,
		CreatedAt:     model.CreatedAt,
	}
}

// NewFlagResponseSlice converts flags preserving order.
func NewFlagResponseSlice(items []models.SimilarityFlag) []FlagResponse {
	out := make([]FlagResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewFlagResponse(item))
	}
	return out
}
