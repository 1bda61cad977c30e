package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

// ExamHandler exposes exam management and solution ingestion.
type ExamHandler struct {
	exams     service.ExamService
	ingestion service.IngestionService
	validator *validator.Validate
	upload    fiber.Handler
	logger    zerolog.Logger
}

// NewExamHandler constructs an exam handler.
func NewExamHandler(exams service.ExamService, ingestion service.IngestionService, validator *validator.Validate, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams:     exams,
		ingestion: ingestion,
		validator: validator,
		upload:    passthrough,
		logger:    logger.With().Str("component", "exam_handler").Logger(),
	}
}

// WithUploadLimiter guards the solution upload route with the given middleware.
func (h *ExamHandler) WithUploadLimiter(limiter fiber.Handler) *ExamHandler {
	if limiter != nil {
		h.upload = limiter
	}
	return h
}

// Register attaches the routes to the provided router group.
func (h *ExamHandler) Register(router fiber.Router) {
	professor := middleware.AuthOptions{Role: middleware.AuthRoleProfessor}
	anyUser := middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true}

	router.Post("", middleware.WithAuth(h.create, professor))
	router.Get("", middleware.WithAuth(h.listMine, professor))
	router.Get("/open", middleware.WithAuth(h.listOpen, anyUser))
	router.Get("/:id", middleware.WithAuth(h.get, anyUser))
	router.Post("/:id/close", middleware.WithAuth(h.close, professor))
	router.Put("/:id/questions", middleware.WithAuth(h.replaceQuestions, professor))
	router.Post("/:id/solution", h.upload, middleware.WithAuth(h.uploadSolution, professor))
}

func (h *ExamHandler) create(c *fiber.Ctx) error {
	var payload dto.ExamCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	exam, err := h.exams.Create(c.UserContext(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Uint("exam_id", exam.ID).Msg("exam created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam created", exam)
}

func (h *ExamHandler) listMine(c *fiber.Ctx) error {
	query, err := parsePageQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.exams.ListForProfessor(c.UserContext(), userIDFromContext(c), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, result.Items, "exams retrieved", result.Pagination)
}

func (h *ExamHandler) listOpen(c *fiber.Ctx) error {
	query, err := parsePageQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.exams.ListOpen(c.UserContext(), query)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, result.Items, "open exams retrieved", result.Pagination)
}

func (h *ExamHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if isProfessor(c) {
		if err := h.exams.Authorize(ctx, id, userIDFromContext(c)); err != nil {
			return h.handleError(c, err)
		}
		exam, err := h.exams.Get(ctx, id, true)
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, "exam retrieved", exam)
	}

	exam, err := h.exams.Get(ctx, id, false)
	if err != nil {
		return h.handleError(c, err)
	}
	if exam.Status == models.ExamStatusDraft {
		return h.handleError(c, service.ErrExamNotFound)
	}

	return utils.SendSuccess(c, "exam retrieved", exam)
}

func (h *ExamHandler) close(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	exam, err := h.exams.Close(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "exam closed", exam)
}

func (h *ExamHandler) replaceQuestions(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.QuestionsReplaceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	questions, err := h.exams.ReplaceQuestions(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "questions replaced", questions)
}

func (h *ExamHandler) uploadSolution(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if err := h.exams.Authorize(ctx, id, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	data, contentType, err := readUpload(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.ingestion.IngestSolution(ctx, id, data, contentType)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exam_id", id).
		Int("questions", result.QuestionsDetected).
		Int("warnings", len(result.Warnings)).
		Msg("solution ingested")
	return utils.SendSuccess(c, "solution ingested", result)
}

func (h *ExamHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}

func passthrough(c *fiber.Ctx) error {
	return c.Next()
}
