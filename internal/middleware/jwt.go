package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/autograde-api/internal/utils"
)

// Locals keys holding the authenticated caller.
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
)

var errNoSubject = errors.New("token has no usable subject")

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID uint
	Role   string
}

// JWTProtected validates HMAC-signed bearer tokens issued by the identity
// provider and stores the caller's id and role in request locals.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(30*time.Second),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "missing or malformed bearer token")
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		identity, err := identityFromClaims(claims)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(LocalUserID, identity.UserID)
		if identity.Role != "" {
			c.Locals(LocalUserRole, identity.Role)
		}
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	var identity Identity
	for _, key := range []string{"sub", "user_id"} {
		if id, err := parseSubject(claims[key]); err == nil {
			identity.UserID = id
			break
		}
	}
	if identity.UserID == 0 {
		return Identity{}, errNoSubject
	}

	identity.Role = normalizeRoleValue(claims["role"])
	if identity.Role == "" {
		if roles, ok := claims["roles"].([]interface{}); ok && len(roles) > 0 {
			identity.Role = normalizeRoleValue(roles[0])
		}
	}
	return identity, nil
}

func parseSubject(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v <= 0 || v != float64(uint(v)) {
			return 0, errNoSubject
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

func normalizeRoleValue(value interface{}) string {
	role, _ := value.(string)
	return strings.ToLower(strings.TrimSpace(role))
}
