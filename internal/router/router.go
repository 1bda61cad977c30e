package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/handler"
	"github.com/noah-isme/autograde-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ExamHandler       *handler.ExamHandler
	SubmissionHandler *handler.SubmissionHandler
	SimilarityHandler *handler.SimilarityHandler
	JWTMiddleware     fiber.Handler
	HealthProbes      map[string]handler.Probe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Everything registered below the health check requires a token.
	secured := api.Group("", jwtMiddleware)

	exams := secured.Group("/exams")
	if deps.ExamHandler != nil {
		deps.ExamHandler.Register(exams)
	}
	if deps.SimilarityHandler != nil {
		deps.SimilarityHandler.Register(exams)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(secured)
	}
}
