package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/db"
	"github.com/dealroom/backend/internal/events"
	"github.com/dealroom/backend/internal/mailrender"
	"github.com/dealroom/backend/internal/repositories"
	"github.com/dealroom/backend/internal/services"
	"go.uber.org/zap"
)

const retryBatchSize = 50

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Fatal("worker requires STORE_DRIVER=postgres", zap.String("driver", cfg.StoreDriver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	notificationRepo := repositories.NewNotificationRepo(pool)
	preferenceRepo := repositories.NewPreferenceRepo(pool)

	// Services
	var mailer services.Mailer = services.NewLogMailer(log)
	if cfg.MailRelayURL != "" {
		mailer = services.NewHTTPMailer(cfg.MailRelayURL, cfg.MailFrom, log)
	}
	publisher := events.NewRedisPublisher(rdb, log)
	dispatcher := services.NewDispatcher(notificationRepo, preferenceRepo, mailer, mailrender.NewRenderer(), publisher, cfg, log)

	log.Info("worker started", zap.Duration("retry_interval", cfg.NotifyRetryInterval))

	retryTicker := time.NewTicker(cfg.NotifyRetryInterval)
	defer retryTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runNotificationRetry(ctx, dispatcher, log)
	for {
		select {
		case <-retryTicker.C:
			runNotificationRetry(ctx, dispatcher, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runNotificationRetry(ctx context.Context, dispatcher *services.Dispatcher, log *zap.Logger) {
	for {
		sent, err := dispatcher.RetryFailed(ctx, retryBatchSize)
		if err != nil {
			log.Error("failed to retry notifications", zap.Error(err))
			return
		}
		if sent > 0 {
			log.Info("retried notifications", zap.Int("sent", sent))
		}
		// A short batch means the backlog is drained; failures stay for the next tick.
		if sent < retryBatchSize {
			return
		}
	}
}
