package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/db"
	"github.com/dealroom/backend/internal/events"
	apphttp "github.com/dealroom/backend/internal/http"
	"github.com/dealroom/backend/internal/http/handlers"
	"github.com/dealroom/backend/internal/mailrender"
	"github.com/dealroom/backend/internal/ratelimit"
	"github.com/dealroom/backend/internal/repositories"
	"github.com/dealroom/backend/internal/repositories/memstore"
	"github.com/dealroom/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// backend is everything that differs between the postgres and memory drivers.
type backend struct {
	deals         services.DealStore
	messages      services.MessageStore
	notifications services.NotificationStore
	prefs         services.PreferenceStore
	audit         services.AuditLogStore
	limiter       ratelimit.Limiter
	publisher     events.Publisher
	subscriber    events.Subscriber
	close         func()
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer be.close()

	// Services
	var mailer services.Mailer = services.NewLogMailer(log)
	if cfg.MailRelayURL != "" {
		mailer = services.NewHTTPMailer(cfg.MailRelayURL, cfg.MailFrom, log)
	}
	dispatcher := services.NewDispatcher(be.notifications, be.prefs, mailer, mailrender.NewRenderer(), be.publisher, cfg, log)
	tokenService := services.NewTokenService(be.deals, be.audit, be.limiter, dispatcher, cfg, log)
	dealService := services.NewDealService(be.deals, be.messages, tokenService, dispatcher, cfg, log)
	timelineService := services.NewTimelineService(be.deals, be.messages)
	notificationService := services.NewNotificationService(be.notifications, be.prefs, log)
	adminService := services.NewAdminService(be.audit, cfg, log)

	// Handlers
	dealHandler := handlers.NewDealHandler(dealService, timelineService, dispatcher, log)
	tokenHandler := handlers.NewTokenHandler(tokenService, log)
	notificationHandler := handlers.NewNotificationHandler(notificationService, log)
	adminHandler := handlers.NewAdminHandler(adminService, dealService, timelineService, log)
	wsHub := handlers.NewWSHub(be.subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to deal events", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "internal error"
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				msg = e.Message
			} else {
				log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	apphttp.SetupRouter(app, cfg, log, be.limiter, adminService, dealService,
		dealHandler, tokenHandler, notificationHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}

	// Let in-flight mail finish before the stores close.
	dispatcher.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		bus := events.NewLocalBus()
		return &backend{
			deals:         memstore.NewDeals(),
			messages:      memstore.NewMessages(),
			notifications: memstore.NewNotifications(),
			prefs:         memstore.NewPreferences(),
			audit:         memstore.NewAuditLog(),
			limiter:       ratelimit.NewMemoryLimiter(),
			publisher:     bus,
			subscriber:    bus,
			close:         func() {},
		}, nil

	case config.StoreDriverPostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		var schema fs.FS = db.Migrations()
		if cfg.MigrationsDir != "" {
			schema = os.DirFS(cfg.MigrationsDir)
		}
		if err := db.RunMigrations(ctx, pool, schema, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		return &backend{
			deals:         repositories.NewDealRepo(pool),
			messages:      repositories.NewMessageRepo(pool),
			notifications: repositories.NewNotificationRepo(pool),
			prefs:         repositories.NewPreferenceRepo(pool),
			audit:         repositories.NewAuditRepo(pool),
			limiter:       ratelimit.NewRedisLimiter(rdb, "dealroom:"),
			publisher:     events.NewRedisPublisher(rdb, log),
			subscriber:    events.NewRedisSubscriber(rdb, log),
			close: func() {
				_ = rdb.Close()
				pool.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
