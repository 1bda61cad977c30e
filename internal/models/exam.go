package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExamStatus is the lifecycle state of an exam.
type ExamStatus string

const (
	// ExamStatusDraft indicates the exam has no questions yet.
	ExamStatusDraft ExamStatus = "DRAFT"
	// ExamStatusOpen indicates the exam accepts submissions.
	ExamStatusOpen ExamStatus = "OPEN"
	// ExamStatusClosed indicates the due date passed or the professor closed it.
	ExamStatusClosed ExamStatus = "CLOSED"
)

// Exam is a set of questions students answer before a due date.
type Exam struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	ProfessorID uint       `gorm:"not null;index" json:"professor_id"`
	DueAt       time.Time  `gorm:"not null" json:"due_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions,omitempty"`
}

// Status derives the lifecycle state at reference for an exam holding
// questionCount questions. Closing takes precedence over the draft state.
func (e Exam) Status(reference time.Time, questionCount int) ExamStatus {
	if e.ClosedAt != nil || !reference.Before(e.DueAt) {
		return ExamStatusClosed
	}
	if questionCount == 0 {
		return ExamStatusDraft
	}
	return ExamStatusOpen
}

// IsPastDue reports whether the deadline has been reached.
func (e Exam) IsPastDue(reference time.Time) bool {
	return !reference.Before(e.DueAt)
}

// Question is one gradable item of an exam with its answer key.
type Question struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	ExamID        uint                        `gorm:"not null;uniqueIndex:idx_questions_exam_index" json:"exam_id"`
	Index         int                         `gorm:"column:question_index;not null;uniqueIndex:idx_questions_exam_index" json:"index"`
	Prompt        string                      `gorm:"type:text;not null" json:"prompt"`
	MaxPoints     float64                     `gorm:"not null" json:"max_points"`
	ReferenceText string                      `gorm:"type:text" json:"reference_text"`
	Keywords      datatypes.JSONSlice[string] `json:"keywords"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}
