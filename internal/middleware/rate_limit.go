package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/autograde-api/internal/utils"
)

// RateLimit throttles a route per authenticated user, or per client IP when
// the caller is anonymous. The limiter sets Retry-After on rejection.
func RateLimit(name string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := c.Locals(LocalUserID).(uint); ok && id != 0 {
				return fmt.Sprintf("%s:user:%d", name, id)
			}
			return fmt.Sprintf("%s:ip:%s", name, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many requests, retry later", fiber.Map{"limit": max, "window": window.String()})
		},
	})
}
