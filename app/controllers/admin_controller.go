package controllers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/app/repository"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
	"github.com/vibecodementor/VibeMentor/internal/pkg/ledgerexport"
	"github.com/vibecodementor/VibeMentor/internal/pkg/reconcile"
	"github.com/vibecodementor/VibeMentor/internal/pkg/statistics"
)

// HandleAdminStats returns the cached dashboard aggregates.
func HandleAdminStats(c *fiber.Ctx) error {
	stats := statistics.GetStatisticsData()

	return c.JSON(fiber.Map{
		"payments_total": stats.TotalPayments,
		"payments_today": stats.TodayPayments,
		"revenue_total":  stats.TotalRevenue,
		"users_total":    stats.TotalUsers,
		"users_pro":      stats.ProUsers,
	})
}

// HandleAdminDailyStats returns daily registration and payment series for charts.
func HandleAdminDailyStats(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days < 1 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	repos := repository.GetGlobalRepositories()
	userStats, err := repos.User.GetDailyStats(start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user stats"})
	}
	paymentStats, err := repos.Payment.GetDailyStats(start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payment stats"})
	}

	return c.JSON(fiber.Map{
		"registrations": userStats,
		"payments":      paymentStats,
	})
}

// HandleAdminListPayments returns a paginated view of the payment ledger.
func HandleAdminListPayments(c *fiber.Ctx) error {
	offset, limit := parsePagination(c, 50, 200)
	repo := repository.GetGlobalFactory().GetPaymentRepository()

	records, err := repo.List(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payments"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count payments"})
	}

	payments := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		entry := paymentJSON(&record)
		entry["user_id"] = record.UserID
		entry["email"] = record.Email
		payments = append(payments, entry)
	}

	return c.JSON(fiber.Map{"payments": payments, "total": total})
}

// HandleAdminListUsers returns users with their subscription state.
func HandleAdminListUsers(c *fiber.Ctx) error {
	offset, limit := parsePagination(c, 50, 200)
	repo := repository.GetGlobalFactory().GetUserRepository()

	users, err := repo.GetWithEntitlements(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load users"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to count users"})
	}

	result := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		entry := fiber.Map{
			"id":         u.User.ID,
			"name":       u.User.Name,
			"email":      u.User.Email,
			"status":     u.User.Status,
			"role":       u.User.Role,
			"created_at": u.User.CreatedAt.UTC().Format(time.RFC3339),
			"plan":       "free",
			"is_pro":     false,
		}
		if u.Entitlement != nil {
			entry["plan"] = u.Entitlement.Plan
			entry["is_pro"] = u.Entitlement.IsPro
		}
		result = append(result, entry)
	}

	return c.JSON(fiber.Map{"users": result, "total": total})
}

// HandleAdminGetUserUsage lists the live Redis usage counters for a user:
// key, current count and time until the period rolls over.
func HandleAdminGetUserUsage(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	repo := repository.GetGlobalFactory().GetCounterRepository()
	keys, err := repo.FindKeysByPatterns(userCounterPatterns(uint(userID)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to scan usage counters"})
	}

	counters := make([]fiber.Map, 0, len(keys))
	for _, key := range keys {
		value, err := repo.GetValue(key)
		if err != nil {
			continue // expired between scan and read
		}
		ttl, err := repo.GetTTL(key)
		if err != nil {
			ttl = -1
		}
		counters = append(counters, fiber.Map{
			"key":         key,
			"count":       value,
			"ttl_seconds": int64(ttl.Seconds()),
		})
	}

	return c.JSON(fiber.Map{"user_id": userID, "counters": counters})
}

// HandleAdminResetUserUsage deletes a user's usage counters, giving them a
// fresh quota for the current period.
func HandleAdminResetUserUsage(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	repo := repository.GetGlobalFactory().GetCounterRepository()
	keys, err := repo.FindKeysByPatterns(userCounterPatterns(uint(userID)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to scan usage counters"})
	}

	deleted, err := repo.DeleteKeys(keys)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete usage counters"})
	}

	return c.JSON(fiber.Map{"user_id": userID, "deleted": deleted})
}

func userCounterPatterns(userID uint) []string {
	return []string{
		fmt.Sprintf("rate:user:%d:*", userID),
		fmt.Sprintf("chat:user:%d:*", userID),
	}
}

// HandleAdminReconcile runs one ledger/entitlement reconciliation pass and
// returns its report.
func HandleAdminReconcile(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := reconcile.NewFromDB(database.GetDB()).Run(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed", "message": err.Error()})
	}

	return c.JSON(report)
}

// HandleAdminLedgerExport uploads a fresh CSV snapshot of the ledger to S3.
func HandleAdminLedgerExport(c *fiber.Ctx) error {
	cfg, err := ledgerexport.LoadConfig()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "export_misconfigured", "message": err.Error()})
	}
	if !cfg.IsEnabled() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "export_disabled", "message": "Ledger export is not enabled"})
	}

	client, err := ledgerexport.NewClient(cfg)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "export_unavailable", "message": "Could not connect to object storage"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := ledgerexport.NewExporter(database.GetDB(), client).Export(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "export_failed", "message": err.Error()})
	}

	return c.JSON(result)
}
