package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autograde-api/internal/utils"
)

// Auth role constants used by WithAuth and the router groups.
const (
	AuthRoleAny       = "any"
	AuthRoleProfessor = "professor"
	AuthRoleStudent   = "student"
	AuthRoleAdmin     = "admin"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// IsProfessorRole reports whether role may manage exams. Admins act as professors.
func IsProfessorRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case AuthRoleProfessor, AuthRoleAdmin:
		return true
	default:
		return false
	}
}

// WithAuth wraps a handler with basic authentication/authorization guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser
	if !requireUser && role != AuthRoleAny {
		requireUser = true
	}

	return func(c *fiber.Ctx) error {
		userID := c.Locals(LocalUserID)
		if requireUser && userID == nil {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if role == AuthRoleAny {
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals(LocalUserRole))
		switch role {
		case AuthRoleProfessor:
			if !IsProfessorRole(currentRole) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if currentRole != role {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}
