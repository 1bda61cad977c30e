package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTProtectedPopulatesIdentity(t *testing.T) {
	var userID, role interface{}
	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/me", func(c *fiber.Ctx) error {
		userID = c.Locals(LocalUserID)
		role = c.Locals(LocalUserRole)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", jwt.MapClaims{"sub": "42", "role": "Professor"}))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, uint(42), userID)
	require.Equal(t, "professor", role)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	cases := map[string]string{
		"missing":      "",
		"scheme":       "Token abc",
		"wrong secret": "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": 1}),
		"no subject":   "Bearer " + signToken(t, "secret", jwt.MapClaims{"role": "student"}),
		"expired":      "Bearer " + signToken(t, "secret", jwt.MapClaims{"sub": 3, "exp": time.Now().Add(-time.Hour).Unix()}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestIdentityFromClaimsReadsRoleList(t *testing.T) {
	identity, err := identityFromClaims(jwt.MapClaims{"user_id": float64(9), "roles": []interface{}{" Student ", "admin"}})
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 9, Role: "student"}, identity)

	_, err = identityFromClaims(jwt.MapClaims{"sub": float64(1.5)})
	require.ErrorIs(t, err, errNoSubject)
}

func TestObservabilityPropagatesCorrelationID(t *testing.T) {
	var seen string
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(zerolog.Nop()))
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		seen = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "req-1", resp.Header.Get("X-Correlation-ID"))
	require.Equal(t, "req-1", seen)
}

func TestLatencyBucket(t *testing.T) {
	require.Equal(t, "<=50ms", latencyBucket(0))
	require.Equal(t, ">5s", latencyBucket(10_000_000_000))
}
