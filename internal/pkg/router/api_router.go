package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	apiv1 "github.com/vibecodementor/VibeMentor/internal/api/v1"
	"github.com/vibecodementor/VibeMentor/app/controllers"
	"github.com/vibecodementor/VibeMentor/internal/pkg/env"
	"github.com/vibecodementor/VibeMentor/internal/pkg/middleware"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usagelimit"
)

type ApiRouter struct {
}

// quotaLimiter is shared between the quota middleware and the usage endpoint.
var quotaLimiter *usagelimit.Limiter

func setQuotaLimiter(l *usagelimit.Limiter) {
	quotaLimiter = l
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()

	v1.Get("/ping", apiServer.GetPing)

	// Auth
	v1.Post("/auth/register", controllers.HandleRegister)
	v1.Post("/auth/login", controllers.HandleLogin)

	// Billing catalog is public; checkout requires a user to attribute.
	v1.Get("/products", controllers.HandleListProducts)

	// Authenticated account routes
	account := v1.Group("/user", middleware.RequireAuth)
	account.Get("/account", controllers.HandleGetAccount)
	account.Get("/usage", controllers.HandleGetUsage)
	account.Post("/apikey", controllers.HandleIssueAPIKey)
	account.Delete("/apikey", controllers.HandleRevokeAPIKey)

	payments := v1.Group("/payments", middleware.RequireAuth)
	payments.Post("/checkout", controllers.HandleCreateCheckout)
	payments.Get("/", controllers.HandleListMyPayments)
	payments.Get("/status/:transaction_id", controllers.HandleGetPaymentStatus)

	// Quota-gated product actions. Callers authenticate with a JWT or an
	// issued X-API-Key; anonymous access is allowed and metered per client
	// IP at the free limits.
	v1.Post("/generate",
		middleware.APIKeyAuthMiddleware(),
		middleware.UsageLimitMiddleware(quotaLimiter, usagelimit.ActionGeneration),
		apiServer.PostGenerate)
	v1.Post("/chat",
		middleware.APIKeyAuthMiddleware(),
		middleware.UsageLimitMiddleware(quotaLimiter, usagelimit.ActionChat),
		apiServer.PostChat)

	// Admin
	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Get("/stats/daily", controllers.HandleAdminDailyStats)
	admin.Get("/payments", controllers.HandleAdminListPayments)
	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Get("/usage/:user_id", controllers.HandleAdminGetUserUsage)
	admin.Delete("/usage/:user_id", controllers.HandleAdminResetUserUsage)
	admin.Post("/reconcile", controllers.HandleAdminReconcile)
	admin.Post("/export", controllers.HandleAdminLedgerExport)
}

// newLimiterStorage backs the HTTP rate limiter with Redis so limits hold
// across instances.
func newLimiterStorage() *redis.Storage {
	return redis.New(redis.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     env.GetEnvInt("CACHE_PORT", 6379),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 1, // Separate database for rate limiting
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
