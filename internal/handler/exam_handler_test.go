package handler_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/models"
)

func TestExamHandlerSolutionFlow(t *testing.T) {
	app, _ := setupApp(t)

	resp, body := doJSON(t, app, professor, http.MethodPost, "/api/v1/exams", map[string]interface{}{
		"title":       "Networks midterm",
		"description": "Transport layer",
		"due_at":      time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "exam created", body.Message)

	var exam dto.ExamResponse
	decodeData(t, body, &exam)
	require.Equal(t, models.ExamStatusDraft, exam.Status)
	require.Equal(t, professor.id, exam.ProfessorID)

	path := fmt.Sprintf("/api/v1/exams/%d", exam.ID)

	// Drafts are hidden from students.
	resp, _ = doJSON(t, app, studentA, http.MethodGet, path, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = doUpload(t, app, professor, path+"/solution", "solution.txt", "text/plain", []byte(networksSolution))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var ingest dto.SolutionIngestResponse
	decodeData(t, body, &ingest)
	require.Equal(t, 2, ingest.QuestionsDetected)
	require.Equal(t, 15.0, ingest.TotalPoints)
	require.Equal(t, []string{"reliable", "ordered", "connection"}, ingest.Questions[0].Keywords)

	resp, body = doJSON(t, app, professor, http.MethodGet, path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &exam)
	require.Equal(t, models.ExamStatusOpen, exam.Status)
	require.NotEmpty(t, exam.Questions[0].ReferenceText)

	resp, body = doJSON(t, app, studentA, http.MethodGet, path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &exam)
	require.Len(t, exam.Questions, 2)
	require.Empty(t, exam.Questions[0].ReferenceText)
	require.Empty(t, exam.Questions[0].Keywords)

	resp, body = doJSON(t, app, studentA, http.MethodGet, "/api/v1/exams/open?page_size=5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var open []dto.ExamResponse
	decodeData(t, body, &open)
	require.Len(t, open, 1)
	require.Contains(t, string(body.Meta), `"page_size":5`)

	resp, body = doJSON(t, app, professor, http.MethodGet, "/api/v1/exams", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var mine []dto.ExamResponse
	decodeData(t, body, &mine)
	require.Len(t, mine, 1)

	resp, body = doJSON(t, app, professor, http.MethodPost, path+"/close", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &exam)
	require.Equal(t, models.ExamStatusClosed, exam.Status)
}

func TestExamHandlerReplaceQuestions(t *testing.T) {
	app, _ := setupApp(t)
	examID := openExam(t, app)
	path := fmt.Sprintf("/api/v1/exams/%d/questions", examID)

	payload := map[string]interface{}{
		"questions": []map[string]interface{}{
			{"index": 1, "prompt": "Explain congestion control", "max_points": 6, "reference_text": "Slow start and AIMD", "keywords": []string{"Slow Start", "AIMD"}},
			{"index": 2, "prompt": "Explain flow control", "max_points": 4},
		},
	}
	resp, body := doJSON(t, app, professor, http.MethodPut, path, payload)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	var questions []dto.QuestionResponse
	decodeData(t, body, &questions)
	require.Len(t, questions, 2)
	require.Equal(t, 6.0, questions[0].MaxPoints)

	duplicate := map[string]interface{}{
		"questions": []map[string]interface{}{
			{"index": 1, "prompt": "a", "max_points": 1},
			{"index": 1, "prompt": "b", "max_points": 1},
		},
	}
	resp, _ = doJSON(t, app, professor, http.MethodPut, path, duplicate)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = doJSON(t, app, professor, http.MethodPut, path, map[string]interface{}{"questions": []interface{}{}})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.False(t, body.Success)
	require.NotEmpty(t, body.Details)

	resp, _ = doJSON(t, app, otherProfessor, http.MethodPut, path, payload)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = doUpload(t, app, studentA, fmt.Sprintf("/api/v1/exams/%d/submissions", examID), "a.txt", "text/plain", []byte("1) AIMD"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, app, professor, http.MethodPut, path, payload)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = doUpload(t, app, professor, fmt.Sprintf("/api/v1/exams/%d/solution", examID), "solution.txt", "text/plain", []byte(networksSolution))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestExamHandlerErrors(t *testing.T) {
	app, _ := setupApp(t)

	resp, _ := doJSON(t, app, professor, http.MethodPost, "/api/v1/exams", map[string]interface{}{
		"title":  "Past",
		"due_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = doJSON(t, app, studentA, http.MethodPost, "/api/v1/exams", map[string]interface{}{
		"title":  "Nope",
		"due_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/exams", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, professor, http.MethodGet, "/api/v1/exams/abc", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, professor, http.MethodGet, "/api/v1/exams/999", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	examID := openExam(t, app)
	solution := fmt.Sprintf("/api/v1/exams/%d/solution", examID)

	resp, _ = doUpload(t, app, professor, solution, "diagram.gif", "image/gif", []byte("GIF89a"))
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	resp, _ = doUpload(t, app, professor, solution, "broken.pdf", "application/pdf", []byte("%PDF-1.4 broken"))
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = doUpload(t, app, professor, solution, "big.txt", "text/plain", make([]byte, (1<<20)+1))
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, _ = doUpload(t, app, otherProfessor, solution, "solution.txt", "text/plain", []byte(networksSolution))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := doJSON(t, app, professor, http.MethodPost, solution, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "file is required", body.Message)
}
