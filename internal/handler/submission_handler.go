package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

// SubmissionHandler manages student uploads and grading endpoints.
type SubmissionHandler struct {
	exams       service.ExamService
	submissions service.SubmissionService
	ingestion   service.IngestionService
	grading     service.GradingService
	upload      fiber.Handler
	logger      zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(exams service.ExamService, submissions service.SubmissionService, ingestion service.IngestionService, grading service.GradingService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		exams:       exams,
		submissions: submissions,
		ingestion:   ingestion,
		grading:     grading,
		upload:      passthrough,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// WithUploadLimiter guards the submission upload route with the given middleware.
func (h *SubmissionHandler) WithUploadLimiter(limiter fiber.Handler) *SubmissionHandler {
	if limiter != nil {
		h.upload = limiter
	}
	return h
}

// Register attaches the routes to the versioned API group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	professor := middleware.AuthOptions{Role: middleware.AuthRoleProfessor}
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	router.Post("/exams/:id/submissions", h.upload, middleware.WithAuth(h.create, student))
	router.Post("/exams/:id/answers", h.upload, middleware.WithAuth(h.submitAnswers, student))
	router.Get("/exams/:id/submissions", middleware.WithAuth(h.list, professor))
	router.Get("/submissions/:id", middleware.WithAuth(h.get, anyUser))
	router.Post("/submissions/:id/grade", middleware.WithAuth(h.grade, professor))
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	data, contentType, err := readUpload(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	studentID := userIDFromContext(c)
	submission, err := h.ingestion.IngestSubmission(c.UserContext(), examID, studentID, data, contentType)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exam_id", examID).
		Uint("submission_id", submission.ID).
		Str("status", string(submission.Status)).
		Msg("submission received")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) submitAnswers(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmissionAnswersRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.ingestion.IngestAnswers(c.UserContext(), examID, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exam_id", examID).
		Uint("submission_id", submission.ID).
		Int("answers", len(payload.Answers)).
		Str("status", string(submission.Status)).
		Msg("typed answers received")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := parsePageQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter := dto.SubmissionFilter{PageQuery: page}
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		filter.Status = &status
	}

	ctx := c.UserContext()
	if err := h.exams.Authorize(ctx, examID, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	result, err := h.submissions.ListByExam(ctx, examID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, result.Items, "submissions retrieved", result.Pagination)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	submission, err := h.submissions.Get(ctx, id)
	if err != nil {
		return h.handleError(c, err)
	}

	if isProfessor(c) {
		if err := h.exams.Authorize(ctx, submission.ExamID, userIDFromContext(c)); err != nil {
			return h.handleError(c, err)
		}
	} else if submission.StudentID != userIDFromContext(c) {
		// Other students' submissions are reported as missing.
		return h.handleError(c, service.ErrSubmissionNotFound)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	submission, err := h.submissions.Get(ctx, id)
	if err != nil {
		return h.handleError(c, err)
	}
	if err := h.exams.Authorize(ctx, submission.ExamID, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	result, err := h.grading.Grade(ctx, id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission graded", result)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}
