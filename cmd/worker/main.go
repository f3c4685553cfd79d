package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/havenlist/havenlist/internal/app"
	jobmetrics "github.com/havenlist/havenlist/internal/jobs"
	"github.com/havenlist/havenlist/internal/platform/cache"
	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	// The worker only makes sense against the shared redis cache backend:
	// a process-local cache in another process cannot be swept from here.
	if cfg.PermCacheBackend != "redis" {
		logger.Info("memory cache backend configured, worker sweeps the redis backend only")
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	permCache := rbac.NewRedisCache(redisClient, "havenlist:perms", cfg.PermCacheTTL)
	metrics := jobmetrics.NewMetrics(nil)
	sweep := jobs.NewPermCacheSweepJob(permCache, logger, metrics)

	sweepTask, err := jobs.NewPermCacheSweepTask(jobs.PermCacheSweepPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermCacheSweep, Handler: sweep.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PermCacheSweepCron, Task: sweepTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
