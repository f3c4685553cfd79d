package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/havenlist/havenlist/internal/app"
	"github.com/havenlist/havenlist/internal/auth"
	"github.com/havenlist/havenlist/internal/observability"
	"github.com/havenlist/havenlist/internal/platform/cache"
	"github.com/havenlist/havenlist/internal/platform/db"
	"github.com/havenlist/havenlist/internal/properties"
	"github.com/havenlist/havenlist/internal/rbac"
	"github.com/havenlist/havenlist/internal/token"
	"github.com/havenlist/havenlist/internal/users"
	"github.com/havenlist/havenlist/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	var permCache rbac.Cache
	switch cfg.PermCacheBackend {
	case "redis":
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = redisClient.Close()
		}()
		permCache = rbac.NewRedisCache(redisClient, "havenlist:perms", cfg.PermCacheTTL)
	default:
		permCache = rbac.NewMemoryCache(cfg.PermCacheTTL)
	}

	store := rbac.NewSQLStore(pool)
	resolver := rbac.NewResolver(store, permCache, logger, metrics)
	guard := rbac.NewGuard(resolver, logger, metrics)
	codec := token.NewCodec(cfg.JWTSecret, cfg.JWTTTL)

	rbacService := rbac.NewService(pool, permCache, logger)

	// With the shared redis backend the flush endpoint goes through the job
	// queue so every instance observes the sweep; the memory backend flushes
	// in-process.
	var sweep rbac.SweepEnqueuer
	if cfg.PermCacheBackend == "redis" {
		jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("build jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = jobsClient.Close()
		}()
		sweep = func(ctx context.Context, reason string) error {
			_, err := jobsClient.EnqueuePermCacheSweep(ctx, jobs.PermCacheSweepPayload{Reason: reason})
			return err
		}
	}

	rbacHandler := rbac.NewHandler(logger, rbacService, guard, sweep)

	authService := auth.NewService(auth.NewRepository(pool), resolver, codec)
	authHandler := auth.NewHandler(logger, authService)

	usersService := users.NewService(users.NewRepository(pool), permCache, logger)
	usersHandler := users.NewHandler(logger, usersService, guard)

	propertiesHandler := properties.NewHandler(logger, properties.NewRepository(pool), guard)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Codec:             codec,
		AuthHandler:       authHandler,
		RBACHandler:       rbacHandler,
		UsersHandler:      usersHandler,
		PropertiesHandler: propertiesHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
