package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExamStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exam := Exam{DueAt: now.Add(time.Hour)}

	require.Equal(t, ExamStatusDraft, exam.Status(now, 0))
	require.Equal(t, ExamStatusOpen, exam.Status(now, 2))
	require.Equal(t, ExamStatusClosed, exam.Status(now.Add(time.Hour), 2))
	require.True(t, exam.IsPastDue(now.Add(time.Hour)))
	require.False(t, exam.IsPastDue(now))

	closed := now
	exam.ClosedAt = &closed
	require.Equal(t, ExamStatusClosed, exam.Status(now, 2))
}

func TestSubmissionTransitions(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	submission := Submission{Status: SubmissionStatusPending}

	require.NoError(t, submission.MarkFailed("embedding provider down"))
	require.Equal(t, SubmissionStatusFailed, submission.Status)
	require.Nil(t, submission.GradeTotal)

	breakdown := []BreakdownItem{{QuestionID: 1, Index: 1, Awarded: 4, MaxPoints: 5, Answered: true}}
	require.NoError(t, submission.MarkGraded(4, 5, breakdown, at))
	require.True(t, submission.IsGraded())
	require.Equal(t, 4.0, *submission.GradeTotal)
	require.Empty(t, submission.FailureReason)

	require.NoError(t, submission.MarkGraded(4, 5, breakdown, at))
	require.ErrorIs(t, submission.MarkFailed("late failure"), ErrInvalidTransition)
	require.Equal(t, SubmissionStatusGraded, submission.Status)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(SubmissionStatusPending, SubmissionStatusGraded))
	require.True(t, CanTransition(SubmissionStatusFailed, SubmissionStatusGraded))
	require.False(t, CanTransition(SubmissionStatusGraded, SubmissionStatusPending))
	require.False(t, CanTransition(SubmissionStatusPending, SubmissionStatusPending))
}
