package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/events"
	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/handler"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/router"
	"github.com/noah-isme/autograde-api/internal/segmenter"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/similarity"
)

const networksSolution = `1) What is TCP?
TCP is a reliable, ordered, connection-oriented stream protocol.
keywords: reliable, ordered, connection (10 pts)
2) Define UDP (5 pts)
UDP is a connectionless datagram protocol.`

type identity struct {
	id   uint
	role string
}

var (
	professor      = identity{id: 7, role: "professor"}
	otherProfessor = identity{id: 8, role: "professor"}
	studentA       = identity{id: 21, role: "student"}
	studentB       = identity{id: 22, role: "student"}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
	Message string          `json:"message"`
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	publisher := events.NopPublisher{}

	exams := repository.NewExamRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	flags := repository.NewSimilarityFlagRepository(db)
	documents := repository.NewSourceDocumentRepository(db)

	simEngine, err := similarity.NewEngine(nil, similarity.DefaultThresholds(), logger)
	require.NoError(t, err)
	gradeEngine, err := grading.NewEngine(grading.DefaultWeights())
	require.NoError(t, err)

	examService := service.NewExamService(exams, validate, logger)
	similarityService := service.NewSimilarityService(exams, submissions, flags, simEngine, publisher, validate, time.Minute, logger)
	trigger := service.NewSimilarityTrigger(service.SimilarityModeInline, similarityService, publisher, logger)
	gradingService := service.NewGradingService(submissions, exams, gradeEngine, trigger, publisher, logger)
	ingestionService := service.NewIngestionService(
		exams, submissions, documents,
		extractor.New(nil), segmenter.NewDefault(),
		gradingService, nil, validate, service.IngestionConfig{MaxUploadBytes: 1 << 20}, logger,
	)
	submissionService := service.NewSubmissionService(submissions, validate, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		ExamHandler:       handler.NewExamHandler(examService, ingestionService, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(examService, submissionService, ingestionService, gradingService, logger),
		SimilarityHandler: handler.NewSimilarityHandler(examService, similarityService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get("X-Test-User"), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			if role := c.Get("X-Test-Role"); role != "" {
				c.Locals("user_role", role)
			}
			return c.Next()
		},
	})

	return app, db
}

func authorize(req *http.Request, who identity) {
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(who.id), 10))
	req.Header.Set("X-Test-Role", who.role)
}

func doJSON(t *testing.T, app *fiber.App, who identity, method, path string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authorize(req, who)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decodeResponse(t, resp)
}

func doUpload(t *testing.T, app *fiber.App, who identity, path, filename, contentType string, content []byte) (*http.Response, envelope) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	authorize(req, who)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decodeResponse(t, resp)
}

func decodeResponse(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

// openExam creates an exam owned by professor and ingests the networks solution.
func openExam(t *testing.T, app *fiber.App) uint {
	t.Helper()

	resp, body := doJSON(t, app, professor, http.MethodPost, "/api/v1/exams", map[string]interface{}{
		"title":  "Networks midterm",
		"due_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)

	var exam struct {
		ID uint `json:"id"`
	}
	decodeData(t, body, &exam)

	resp, body = doUpload(t, app, professor, fmt.Sprintf("/api/v1/exams/%d/solution", exam.ID), "solution.txt", "text/plain", []byte(networksSolution))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)

	return exam.ID
}
