package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dealroom/backend/internal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RateLimitMiddleware caps requests per route and client IP. Limiter errors fail open.
func RateLimitMiddleware(l ratelimit.Limiter, limit int, window time.Duration, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Route().Path, c.IP())

		d, err := l.Allow(c.UserContext(), key, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}

		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds(d.RetryAfter)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}

// RetryAfterSeconds rounds up so clients never retry early.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
