package middleware

import (
	"fmt"
	"time"

	"timetable_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SyncRateLimit throttles reconciliation endpoints per user. A single
// reconciliation fans out into many calendar API calls, so the limit
// here is much lower than a general request limit.
func SyncRateLimit(redisClient *redis.Client, limit int, window time.Duration) fiber.Handler {
	limiter := ratelimit.NewSlidingWindowLimiter(redisClient, limit, window)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := c.IP()
		if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = userID.String()
		}

		allowed, retryAfter := limiter.Allow(c.UserContext(), "sync:"+key)
		if !allowed {
			c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": int(retryAfter.Seconds()) + 1,
			})
		}

		return c.Next()
	}
}
