package router

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/vibecodementor/VibeMentor/app/controllers"
	"github.com/vibecodementor/VibeMentor/internal/pkg/billing"
	"github.com/vibecodementor/VibeMentor/internal/pkg/cache"
	"github.com/vibecodementor/VibeMentor/internal/pkg/env"
	"github.com/vibecodementor/VibeMentor/internal/pkg/jwtauth"
	"github.com/vibecodementor/VibeMentor/internal/pkg/middleware"
	"github.com/vibecodementor/VibeMentor/internal/pkg/usagelimit"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init token manager
	tokens, err := jwtauth.NewManagerFromEnv()
	if err != nil {
		log.Fatalf("token manager setup failed: %v", err)
	}
	controllers.SetTokenManager(tokens)

	// init quota limiter on the shared Redis client
	limiter := usagelimit.New(usagelimit.NewRedisStore(cache.GetClient()))
	controllers.SetUsageLimiter(limiter)
	setQuotaLimiter(limiter)

	// Provider adapters and the checkout client are shared across requests:
	// the PayPal cert cache, the Flutterwave verify throttle and the product
	// cache are only effective on long-lived instances.
	flwClient := billing.NewFlutterwaveClient(
		env.GetEnv("FLUTTERWAVE_API_URL", "https://api.flutterwave.com"),
		env.GetEnv("FLUTTERWAVE_SECRET_KEY", ""),
	)
	controllers.SetWebhookProviders(
		billing.NewLemonsqueezyProvider(env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")),
		billing.NewPayPalProvider(env.GetEnv("PAYPAL_WEBHOOK_ID", "")),
		billing.NewFlutterwaveProvider(env.GetEnv("FLUTTERWAVE_WEBHOOK_HASH", ""), flwClient),
	)
	controllers.SetCheckoutClient(billing.NewLemonsqueezyClientFromEnv())

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(tokens))

	h.registerWebhookRoutes(app)
}

// registerWebhookRoutes mounts the payment provider endpoints outside the
// /api rate limiter: providers retry in bursts and must never be throttled
// into missing a delivery.
func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/lemonsqueezy", controllers.HandleLemonsqueezyWebhook)
	webhooks.Post("/paypal", controllers.HandlePayPalWebhook)
	webhooks.Post("/flutterwave", controllers.HandleFlutterwaveWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
