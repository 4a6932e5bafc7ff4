package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/bootstrap"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/persistence"
)

func main() {
	complaintID := flag.String("complaint", "", "evaluate a single complaint instead of running a full cycle")
	timeout := flag.Duration("timeout", 10*time.Minute, "upper bound for the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if !pg.Enabled() {
		logger.Warn("running against an empty in-memory store")
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	services, err := bootstrap.Build(cfg, bootstrap.Options{Postgres: pg, Redis: redis, Logger: logger})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	services.Notifications.RegisterHandlers()

	var result any
	if *complaintID != "" {
		result, err = services.Monitoring.EvaluateComplaint(ctx, *complaintID)
	} else {
		result, err = services.Monitoring.RunCycle(ctx)
	}
	if err != nil {
		logger.Fatal("monitoring run failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal("encode report", zap.Error(err))
	}
}
