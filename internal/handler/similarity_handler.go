package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

// SimilarityHandler exposes plagiarism detection to professors.
type SimilarityHandler struct {
	exams      service.ExamService
	similarity service.SimilarityService
	logger     zerolog.Logger
}

// NewSimilarityHandler constructs a similarity handler.
func NewSimilarityHandler(exams service.ExamService, similarity service.SimilarityService, logger zerolog.Logger) *SimilarityHandler {
	return &SimilarityHandler{
		exams:      exams,
		similarity: similarity,
		logger:     logger.With().Str("component", "similarity_handler").Logger(),
	}
}

// Register attaches the routes to the exam group.
func (h *SimilarityHandler) Register(router fiber.Router) {
	professor := middleware.AuthOptions{Role: middleware.AuthRoleProfessor}

	router.Get("/:id/flags", middleware.WithAuth(h.listFlags, professor))
	router.Post("/:id/similarity", middleware.WithAuth(h.detect, professor))
}

func (h *SimilarityHandler) listFlags(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := parsePageQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter := dto.FlagFilter{PageQuery: page}
	if filter.QuestionID, err = parseQueryUint(c, "question_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if filter.SubmissionID, err = parseQueryUint(c, "submission_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if err := h.exams.Authorize(ctx, examID, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	result, err := h.similarity.ListFlags(ctx, examID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, result.Items, "similarity flags retrieved", result.Pagination)
}

func (h *SimilarityHandler) detect(c *fiber.Ctx) error {
	examID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if err := h.exams.Authorize(ctx, examID, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	run, err := h.similarity.DetectSimilarity(ctx, examID)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Uint("exam_id", examID).
		Int64("created", run.Created).
		Int("compared", run.Compared).
		Msg("similarity detection finished")
	return utils.SendSuccess(c, "similarity detection finished", run)
}

func (h *SimilarityHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}
