package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus is the grading state of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusPending indicates the submission is stored but not yet graded.
	SubmissionStatusPending SubmissionStatus = "PENDING"
	// SubmissionStatusGraded indicates a grade and breakdown are available.
	SubmissionStatusGraded SubmissionStatus = "GRADED"
	// SubmissionStatusFailed indicates grading failed; it may be retried.
	SubmissionStatusFailed SubmissionStatus = "FAILED"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid submission status transition")

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusPending: {SubmissionStatusGraded, SubmissionStatusFailed},
	SubmissionStatusFailed:  {SubmissionStatusGraded, SubmissionStatusFailed},
	SubmissionStatusGraded:  {SubmissionStatusGraded},
}

// CanTransition reports whether a submission may move from one status to another.
func CanTransition(from, to SubmissionStatus) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BreakdownItem is the persisted score of one question.
type BreakdownItem struct {
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

// Submission is one student's answer document for an exam.
type Submission struct {
	ID            uint                               `gorm:"primaryKey" json:"id"`
	ExamID        uint                               `gorm:"not null;uniqueIndex:idx_submissions_exam_student" json:"exam_id"`
	StudentID     uint                               `gorm:"not null;uniqueIndex:idx_submissions_exam_student;index" json:"student_id"`
	Status        SubmissionStatus                   `gorm:"size:16;not null;index" json:"status"`
	SubmittedAt   time.Time                          `gorm:"not null" json:"submitted_at"`
	GradedAt      *time.Time                         `json:"graded_at"`
	GradeTotal    *float64                           `json:"grade_total"`
	MaxTotal      *float64                           `json:"max_total"`
	Breakdown     datatypes.JSONSlice[BreakdownItem] `json:"breakdown"`
	FailureReason string                             `gorm:"type:text" json:"failure_reason"`
	Warnings      datatypes.JSONSlice[string]        `json:"warnings"`
	CreatedAt     time.Time                          `json:"created_at"`
	UpdatedAt     time.Time                          `json:"updated_at"`
	Answers       []Answer                           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers,omitempty"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// MarkGraded records a grade. Re-grading a graded submission is allowed.
func (s *Submission) MarkGraded(total, maxTotal float64, breakdown []BreakdownItem, at time.Time) error {
	if !CanTransition(s.Status, SubmissionStatusGraded) {
		return fmt.Errorf("%s -> %s: %w", s.Status, SubmissionStatusGraded, ErrInvalidTransition)
	}
	s.Status = SubmissionStatusGraded
	s.GradeTotal = &total
	s.MaxTotal = &maxTotal
	s.Breakdown = breakdown
	s.FailureReason = ""
	s.GradedAt = &at
	return nil
}

// MarkFailed records a grading failure.
func (s *Submission) MarkFailed(reason string) error {
	if !CanTransition(s.Status, SubmissionStatusFailed) {
		return fmt.Errorf("%s -> %s: %w", s.Status, SubmissionStatusFailed, ErrInvalidTransition)
	}
	s.Status = SubmissionStatusFailed
	s.FailureReason = reason
	s.GradeTotal = nil
	s.MaxTotal = nil
	s.Breakdown = nil
	s.GradedAt = nil
	return nil
}

// Answer is the text a student gave for one detected question label.
// QuestionID is nil when the label matched no question of the exam.
type Answer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SubmissionID  uint      `gorm:"not null;index" json:"submission_id"`
	QuestionID    *uint     `gorm:"index" json:"question_id"`
	DetectedIndex int       `gorm:"not null" json:"detected_index"`
	Text          string    `gorm:"type:text" json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}
