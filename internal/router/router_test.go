package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/handler"
)

func TestRegisterExposesHealthAndMetrics(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{AppName: "AutoGrade", AppEnv: "test"}, Dependencies{
		JWTMiddleware: func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusUnauthorized)
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "AutoGrade", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "autograde_")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/exams", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHealthReportsFailingDependencies(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{AppName: "AutoGrade"}, Dependencies{
		HealthProbes: map[string]handler.Probe{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.False(t, payload.Success)
	require.Equal(t, "degraded", payload.Data.Status)
	require.Len(t, payload.Data.Dependencies, 2)
	require.Equal(t, "database", payload.Data.Dependencies[0].Name)
	require.Equal(t, "down", payload.Data.Dependencies[1].Status)
}
