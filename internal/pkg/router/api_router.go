package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/curavoy/curavoy/app/controllers"
	"github.com/curavoy/curavoy/internal/pkg/cache"
	"github.com/curavoy/curavoy/internal/pkg/env"
	"github.com/curavoy/curavoy/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Webhook ingestion stays outside the authenticated group: the gateway
	// signs its requests, it does not carry an API key. No rate limit either,
	// bursts of events during incident recovery are expected.
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Curavoy payment API",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	// Account and API key management
	v1.Get("/user/account", controllers.HandleGetUserAccount)
	v1.Patch("/user/settings", controllers.HandleUpdateUserSettings)
	v1.Post("/user/api-key", controllers.HandleIssueAPIKey)
	v1.Delete("/user/api-key", controllers.HandleRevokeAPIKey)
	v1.Get("/user/notifications", controllers.HandleListNotifications)
	v1.Post("/user/notifications/:id/read", controllers.HandleMarkNotificationRead)

	// Payments
	v1.Post("/payments", controllers.HandleCreateDeposit)
	v1.Get("/payments", controllers.HandleListPayments)
	v1.Get("/payments/:uuid", controllers.HandleGetPayment)
	v1.Post("/payments/:uuid/capture", middleware.RequireAdmin, controllers.HandleCapturePayment)
	v1.Post("/payments/:uuid/release", middleware.RequireAdmin, controllers.HandleReleasePayment)
	v1.Post("/payments/:uuid/refund", middleware.RequireAdmin, controllers.HandleRefundPayment)

	// Quotations
	v1.Get("/quotations", controllers.HandleListQuotations)
	v1.Get("/quotations/:id", controllers.HandleGetQuotation)
	v1.Post("/quotations/:id/accept", controllers.HandleAcceptQuotation)
	v1.Post("/quotations", middleware.RequireAdmin, controllers.HandleCreateQuotation)

	// Providers
	v1.Get("/providers", controllers.HandleListProviders)
	v1.Get("/providers/:id/status", middleware.RequireAdmin, controllers.HandleGetProviderStatus)
	v1.Post("/providers", middleware.RequireAdmin, controllers.HandleCreateProvider)

	// Payouts and admin operations
	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Post("/payouts/run", controllers.HandleRunPayouts)
	admin.Get("/payouts", controllers.HandleListPayouts)
	admin.Post("/webhooks/reprocess", controllers.HandleReprocessWebhooks)
	admin.Get("/settings", controllers.HandleGetSettings)
	admin.Patch("/settings", controllers.HandleUpdateSettings)
	admin.Get("/stats/daily", controllers.HandleGetDailyStats)
	admin.Get("/queue", controllers.HandleGetQueueStatus)
	admin.Delete("/queue", controllers.HandleClearQueue)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Uses database 1, the cache client stays on 0.
func newLimiterStorage() *redisstorage.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
