package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
	"github.com/vibecodementor/VibeMentor/internal/pkg/entitlements"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usagelimit"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usercontext"
)

var usageLimiter *usagelimit.Limiter

// SetUsageLimiter wires the quota limiter used by the usage endpoints.
func SetUsageLimiter(l *usagelimit.Limiter) {
	usageLimiter = l
}

// HandleGetUsage returns the user's remaining quota for both metered actions.
func HandleGetUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	plan := entitlements.Normalize(userCtx.Plan)
	identifier := fmt.Sprintf("user:%d", userCtx.UserID)

	generation, err := usageLimiter.Usage(c.Context(), identifier, usagelimit.ActionGeneration,
		usagelimit.LimitFor(plan, usagelimit.ActionGeneration))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load usage"})
	}
	chat, err := usageLimiter.Usage(c.Context(), identifier, usagelimit.ActionChat,
		usagelimit.LimitFor(plan, usagelimit.ActionChat))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load usage"})
	}

	return c.JSON(fiber.Map{
		"plan":       string(plan),
		"generation": generation,
		"chat":       chat,
	})
}

// HandleIssueAPIKey generates a fresh API key for the user. The raw key is
// returned exactly once; only its hash is stored.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}

	ent, err := models.GetOrCreateEntitlement(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load entitlement"})
	}

	rawKey, err := ent.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key generation failed"})
	}
	if err := db.Save(ent).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key persistence failed"})
	}

	return c.JSON(fiber.Map{
		"api_key":    rawKey,
		"prefix":     ent.APIKeyPrefix,
		"created_at": formatTimePtr(ent.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey revokes the user's current API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}

	ent, err := models.GetOrCreateEntitlement(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load entitlement"})
	}
	if !ent.HasActiveAPIKey() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No active API key"})
	}

	ent.RevokeAPIKey()
	if err := db.Save(ent).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Key revocation failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
