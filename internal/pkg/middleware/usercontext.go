package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
	"github.com/vibecodementor/VibeMentor/internal/pkg/jwtauth"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request.
// A valid bearer token yields a logged-in context, anything else falls back
// to anonymous; route guards decide whether anonymous is acceptable.
func UserContextMiddleware(tokens *jwtauth.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" || tokens == nil {
			setAnonymousContext(c)
			return c.Next()
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			setAnonymousContext(c)
			return c.Next()
		}

		// Plan comes from the entitlement row, not the token, so an upgrade
		// takes effect without re-login.
		plan := "free"
		if db := database.GetDB(); db != nil {
			if ent, err := models.GetOrCreateEntitlement(db, claims.UserID); err == nil && ent.Plan != "" {
				plan = ent.Plan
			}
		}

		userCtx := usercontext.UserContext{
			UserID:     claims.UserID,
			Email:      claims.Email,
			IsLoggedIn: true,
			IsAdmin:    claims.IsAdmin,
			Plan:       plan,
		}
		c.Locals("USER_CONTEXT", userCtx)
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyUserID, claims.UserID)
		c.Locals(usercontext.KeyIsAdmin, claims.IsAdmin)

		return c.Next()
	}
}

func setAnonymousContext(c *fiber.Ctx) {
	c.Locals("USER_CONTEXT", usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
		Plan:       "free",
	})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
