package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/civic-kit/grievance-service/internal/api/http"
	"github.com/civic-kit/grievance-service/internal/api/http/handlers"
	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/bootstrap"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/persistence"
	"github.com/civic-kit/grievance-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	opts := bootstrap.Options{
		Postgres: pg,
		Redis:    redis,
		Metrics:  metrics,
		Logger:   logger,
	}
	var deadlines *worker.DeadlineScheduler
	if redis.Enabled() {
		deadlines = worker.NewDeadlineScheduler(redis.AsynqOpt(), cfg.Monitoring.DeadlineQueue, logger)
		defer deadlines.Close() //nolint:errcheck
		opts.Scheduler = deadlines
	}

	services, err := bootstrap.Build(cfg, opts)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	worker.StartNotificationWorker(services.Notifications, logger)

	if deadlines != nil {
		deadlineServer := worker.NewDeadlineServer(redis.AsynqOpt(), cfg.Monitoring, services.Monitoring, deadlines, logger)
		if err := deadlineServer.Start(); err != nil {
			logger.Error("deadline worker not started", zap.Error(err))
		} else {
			defer deadlineServer.Stop()
		}
	}

	monitor, err := worker.NewMonitorScheduler(services.Monitoring, cfg.Monitoring.Schedule, 10*time.Minute, logger)
	if err != nil {
		logger.Fatal("failed to schedule monitoring", zap.Error(err))
	}
	if cfg.Monitoring.Enabled {
		monitor.Start()
		defer monitor.Stop()
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Dependency{
			"postgres": pg,
			"redis":    redis,
		}),
		Complaints:     handlers.NewComplaintsHandler(services.Pipeline, services.Complaints),
		Admin:          handlers.NewAdminHandler(services.Complaints, monitor),
		Auth:           handlers.NewAuthHandler(services.Auth),
		AuthMiddleware: auth.NewMiddleware(services.Tokens),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
