package service

import (
	"errors"

	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/grading"
)

var (
	// ErrUnsupportedFormat indicates no converter can read the uploaded document.
	ErrUnsupportedFormat = extractor.ErrUnsupportedFormat
	// ErrExtractionFailed indicates the document is corrupt or holds no text.
	ErrExtractionFailed = extractor.ErrExtractionFailed
	// ErrNotGradable indicates the exam has no usable questions.
	ErrNotGradable = grading.ErrNotGradable

	// ErrEngineUnavailable indicates extraction or embedding timed out. Retryable.
	ErrEngineUnavailable = errors.New("processing engine unavailable")
	// ErrDocumentTooLarge indicates the upload exceeds the configured limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum allowed size")

	// ErrExamNotFound indicates the exam does not exist.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamForbidden indicates the caller does not own the exam.
	ErrExamForbidden = errors.New("exam belongs to another professor")
	// ErrExamClosed indicates the exam no longer accepts submissions.
	ErrExamClosed = errors.New("exam is closed")
	// ErrExamNotGradable indicates the exam has no questions yet.
	ErrExamNotGradable = errors.New("exam has no questions")
	// ErrInvalidDueDate indicates the due date is not in the future.
	ErrInvalidDueDate = errors.New("due date must be in the future")
	// ErrQuestionsLocked indicates submissions exist so questions cannot change.
	ErrQuestionsLocked = errors.New("questions are locked once submissions exist")
	// ErrDuplicateQuestionIndex indicates two questions share an index.
	ErrDuplicateQuestionIndex = errors.New("question indices must be unique")

	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrDuplicateSubmission indicates the student already submitted for the exam.
	ErrDuplicateSubmission = errors.New("student already submitted for this exam")
	// ErrUnknownQuestion indicates a typed answer names a question outside the exam.
	ErrUnknownQuestion = errors.New("question does not belong to the exam")
	// ErrDuplicateAnswer indicates two typed answers target the same question.
	ErrDuplicateAnswer = errors.New("question answered more than once")
)

// IsRetryable reports whether err is transient and the request may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable)
}
