package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
)

func TestExamServiceCreateValidatesDueDate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	_, err := env.examService.Create(ctx, 7, dto.ExamCreateRequest{Title: "Networks", DueAt: time.Now().Add(-time.Minute)})
	require.ErrorIs(t, err, ErrInvalidDueDate)

	_, err = env.examService.Create(ctx, 7, dto.ExamCreateRequest{Title: "N", DueAt: time.Now().Add(time.Hour)})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	exam, err := env.examService.Create(ctx, 7, dto.ExamCreateRequest{Title: "  Networks  ", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, "Networks", exam.Title)
	require.Equal(t, models.ExamStatusDraft, exam.Status)
	require.Equal(t, time.UTC, exam.DueAt.Location())
}

func TestExamServiceGetHidesAnswerKeysFromStudents(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	exam := env.openExam(t)

	professorView, err := env.examService.Get(context.Background(), exam.ID, true)
	require.NoError(t, err)
	require.Equal(t, 2, professorView.QuestionCount)
	require.Equal(t, 15.0, professorView.TotalPoints)
	require.NotEmpty(t, professorView.Questions[0].ReferenceText)
	require.Equal(t, []string{"reliable", "ordered", "connection"}, professorView.Questions[0].Keywords)

	studentView, err := env.examService.Get(context.Background(), exam.ID, false)
	require.NoError(t, err)
	require.Equal(t, "What is TCP?", studentView.Questions[0].Prompt)
	require.Empty(t, studentView.Questions[0].ReferenceText)
	require.Empty(t, studentView.Questions[0].Keywords)

	_, err = env.examService.Get(context.Background(), 999, true)
	require.ErrorIs(t, err, ErrExamNotFound)
}

func TestExamServiceListings(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	open := env.openExam(t)
	draft, err := env.examService.Create(ctx, 7, dto.ExamCreateRequest{Title: "Draft exam", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = env.examService.Create(ctx, 8, dto.ExamCreateRequest{Title: "Other professor", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	mine, err := env.examService.ListForProfessor(ctx, 7, dto.PageQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(2), mine.Pagination.TotalItems)
	require.Equal(t, 1, mine.Pagination.Page)
	require.Equal(t, 20, mine.Pagination.PageSize)
	ids := []uint{mine.Items[0].ID, mine.Items[1].ID}
	require.ElementsMatch(t, []uint{open.ID, draft.ID}, ids)
	require.Empty(t, mine.Items[0].Questions)

	available, err := env.examService.ListOpen(ctx, dto.PageQuery{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), available.Pagination.TotalItems)
	require.Equal(t, 1, available.Pagination.TotalPages)
	require.Equal(t, open.ID, available.Items[0].ID)
	require.Equal(t, models.ExamStatusOpen, available.Items[0].Status)
}

func TestExamServiceCloseChecksOwnership(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	exam := env.openExam(t)

	_, err := env.examService.Close(ctx, exam.ID, 8)
	require.ErrorIs(t, err, ErrExamForbidden)
	require.ErrorIs(t, env.examService.Authorize(ctx, exam.ID, 8), ErrExamForbidden)
	require.NoError(t, env.examService.Authorize(ctx, exam.ID, 7))

	closed, err := env.examService.Close(ctx, exam.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.ExamStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	again, err := env.examService.Close(ctx, exam.ID, 7)
	require.NoError(t, err)
	require.WithinDuration(t, *closed.ClosedAt, *again.ClosedAt, time.Second)

	available, err := env.examService.ListOpen(ctx, dto.PageQuery{})
	require.NoError(t, err)
	require.Empty(t, available.Items)
}

func TestExamServiceReplaceQuestions(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	exam, err := env.examService.Create(ctx, 7, dto.ExamCreateRequest{Title: "Manual exam", DueAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	payload := dto.QuestionsReplaceRequest{Questions: []dto.QuestionInput{
		{Index: 2, Prompt: "Define UDP", MaxPoints: 5, ReferenceText: "Connectionless datagrams"},
		{Index: 1, Prompt: "What is TCP?", MaxPoints: 10, ReferenceText: "Reliable ordered stream", Keywords: []string{"Reliable", "reliable ", "Ordered Stream"}},
	}}

	_, err = env.examService.ReplaceQuestions(ctx, exam.ID, 8, payload)
	require.ErrorIs(t, err, ErrExamForbidden)

	questions, err := env.examService.ReplaceQuestions(ctx, exam.ID, 7, payload)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	stored, err := env.examService.Get(ctx, exam.ID, true)
	require.NoError(t, err)
	require.Equal(t, models.ExamStatusOpen, stored.Status)
	require.Equal(t, 1, stored.Questions[0].Index)
	require.Equal(t, []string{"reliable", "ordered", "stream"}, stored.Questions[0].Keywords)
	require.Equal(t, []string{}, stored.Questions[1].Keywords)

	duplicate := dto.QuestionsReplaceRequest{Questions: []dto.QuestionInput{
		{Index: 1, Prompt: "a", MaxPoints: 1},
		{Index: 1, Prompt: "b", MaxPoints: 1},
	}}
	_, err = env.examService.ReplaceQuestions(ctx, exam.ID, 7, duplicate)
	require.ErrorIs(t, err, ErrDuplicateQuestionIndex)

	invalid := dto.QuestionsReplaceRequest{Questions: []dto.QuestionInput{{Index: 1, Prompt: "a", MaxPoints: -1}}}
	_, err = env.examService.ReplaceQuestions(ctx, exam.ID, 7, invalid)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	_, err = env.ingestionService.IngestSubmission(ctx, exam.ID, 1, []byte("1) TCP is reliable"), "text/plain")
	require.NoError(t, err)

	_, err = env.examService.ReplaceQuestions(ctx, exam.ID, 7, payload)
	require.ErrorIs(t, err, ErrQuestionsLocked)
}
