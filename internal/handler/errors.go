package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

// respondError maps service errors onto HTTP status codes.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exam not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrExamForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "exam belongs to another professor")
	case errors.Is(err, service.ErrDuplicateSubmission):
		return utils.SendError(c, fiber.StatusConflict, "a submission already exists for this exam")
	case errors.Is(err, service.ErrUnknownQuestion):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateAnswer):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQuestionsLocked):
		return utils.SendError(c, fiber.StatusConflict, "questions are locked once submissions exist")
	case errors.Is(err, service.ErrExamClosed):
		return utils.SendError(c, fiber.StatusGone, "exam is closed")
	case errors.Is(err, service.ErrDocumentTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "document too large")
	case errors.Is(err, service.ErrUnsupportedFormat):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, "unsupported document format")
	case errors.Is(err, service.ErrExtractionFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "document text could not be extracted")
	case errors.Is(err, service.ErrExamNotGradable):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "exam has no questions yet")
	case errors.Is(err, service.ErrNotGradable):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "submission cannot be graded")
	case errors.Is(err, service.ErrInvalidDueDate):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "due date must be in the future")
	case errors.Is(err, service.ErrDuplicateQuestionIndex):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "question indices must be unique")
	case service.IsRetryable(err):
		c.Set(fiber.HeaderRetryAfter, "5")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "processing engine unavailable, retry later")
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Namespace()] = fieldErr.Tag()
	}
	return details
}
