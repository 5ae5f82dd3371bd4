package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mahalle/mahalle-api/internal/apperr"
	"github.com/mahalle/mahalle-api/internal/challenge"
)

var ErrTooManyRequests = apperr.New(apperr.KindRateLimited, "too many requests, try again later")

// IPRateLimit allows limit requests per client IP per minute across the routes
// it is mounted on. Counter errors fail open.
func IPRateLimit(counters challenge.Store, limit int, logger *slog.Logger) fiber.Handler {
	if limit <= 0 {
		limit = 60
	}
	return func(c *fiber.Ctx) error {
		if counters == nil {
			return c.Next()
		}
		key := "rl:ip:" + c.IP()
		n, err := counters.Incr(c.UserContext(), key, time.Minute)
		if err != nil {
			logger.WarnContext(c.UserContext(), "ip rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if n > int64(limit) {
			left, err := counters.TTL(c.UserContext(), key)
			if err != nil {
				logger.DebugContext(c.UserContext(), "ip rate limit retry hint unavailable", slog.Any("error", err))
			}
			return ErrTooManyRequests.WithRetry(left)
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-n, 10))
		return c.Next()
	}
}
