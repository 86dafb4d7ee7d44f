package middleware

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/ratelimit"
)

// RateLimit limits each signed-in user, or each client IP before auth ran.
func RateLimit(l *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if uid, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = "user:" + uid.String()
		}

		res := l.Allow(c.UserContext(), key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return apperr.RateLimited("rate limit exceeded").WithDetail("retry_after", retry)
		}
		return c.Next()
	}
}
