package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRateLimitIsPerUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-User"); user == "a" {
			c.Locals(LocalUserID, uint(1))
		} else {
			c.Locals(LocalUserID, uint(2))
		}
		return c.Next()
	})
	app.Post("/upload", RateLimit("uploads", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusCreated, send("a").StatusCode)
	limited := send("a")
	require.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	require.NotEmpty(t, limited.Header.Get(fiber.HeaderRetryAfter))
	require.Equal(t, fiber.StatusCreated, send("b").StatusCode)
}
