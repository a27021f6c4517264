package middleware

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/internal/pkg/entitlements"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usagelimit"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usercontext"
)

// LocalQuotaResult is the Locals key under which the quota decision is stored
// for handlers that want to echo usage back to the client.
const LocalQuotaResult = "QUOTA_RESULT"

// UsageLimitMiddleware consumes one unit of quota for the action before the
// handler runs. Logged-in users are metered per user id with their plan's
// limit, anonymous callers per client IP with the free limit.
func UsageLimitMiddleware(limiter *usagelimit.Limiter, action usagelimit.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)

		identifier := c.IP()
		plan := entitlements.PlanFree
		if userCtx.IsLoggedIn {
			identifier = fmt.Sprintf("user:%d", userCtx.UserID)
			plan = entitlements.Normalize(userCtx.Plan)
		}

		result, err := limiter.Allow(c.Context(), identifier, action, usagelimit.LimitFor(plan, action))
		if err != nil {
			// Fail open: a Redis outage must not take the product down.
			log.Printf("usage limit check failed for %s: %v", identifier, err)
			return c.Next()
		}

		c.Locals(LocalQuotaResult, result)

		if !result.Allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "quota_exceeded",
				"message": "usage limit reached for the current period",
				"usage":   result,
			})
		}

		return c.Next()
	}
}
