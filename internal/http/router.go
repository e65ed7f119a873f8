package http

import (
	"time"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/http/handlers"
	"github.com/dealroom/backend/internal/middleware"
	"github.com/dealroom/backend/internal/ratelimit"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	limiter ratelimit.Limiter,
	sessions middleware.SessionVerifier,
	actors middleware.ActorResolver,
	dealHandler *handlers.DealHandler,
	tokenHandler *handlers.TokenHandler,
	notificationHandler *handlers.NotificationHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + middleware.HeaderDealToken,
		ExposeHeaders: "X-Request-ID, Retry-After",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Meta (public)
	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/lifecycle", metaHandler.GetLifecycle)
	api.Get("/meta/event-types", metaHandler.GetEventTypes)

	// Public writes without a deal token are capped per IP
	api.Post("/deals",
		middleware.RateLimitMiddleware(limiter, 20, time.Hour, log),
		dealHandler.CreateDeal)
	api.Post("/deals/:id/tokens/rotate",
		middleware.RateLimitMiddleware(limiter, 30, time.Hour, log),
		tokenHandler.RotateToken)
	api.Post("/admin/login",
		middleware.RateLimitMiddleware(limiter, 10, 15*time.Minute, log),
		adminHandler.Login)

	// Deal-scoped endpoints: role comes from the deal token or an admin session
	deal := api.Group("/deals/:id",
		middleware.RateLimitMiddleware(limiter, 300, time.Minute, log),
		middleware.OptionalAdminMiddleware(sessions, log),
		middleware.DealAccessMiddleware(actors, log),
	)
	deal.Get("", dealHandler.GetDeal)
	deal.Get("/access", dealHandler.GetAccess)
	deal.Post("/transitions", dealHandler.Transition)
	deal.Get("/audit", dealHandler.GetAuditTrail)
	deal.Get("/messages", dealHandler.ListMessages)
	deal.Post("/messages", dealHandler.PostMessage)
	deal.Get("/notifications", notificationHandler.List)
	deal.Post("/notifications/:notificationId/read", notificationHandler.MarkRead)
	deal.Get("/preferences", notificationHandler.GetPreferences)
	deal.Put("/preferences", notificationHandler.SetPreference)

	// Admin
	admin := api.Group("/admin", middleware.AdminMiddleware(sessions, log))
	admin.Get("/deals", adminHandler.ListDeals)
	admin.Get("/deals/:id", adminHandler.GetDeal)
	admin.Post("/deals/:id/resolve", adminHandler.ResolveDispute)
	admin.Get("/deals/:id/audit", adminHandler.GetAuditTrail)
	admin.Get("/deals/:id/security-log", adminHandler.GetSecurityLog)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware(actors, log))
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
