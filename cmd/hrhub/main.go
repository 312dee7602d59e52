package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/shakil5281/HrHub-sub001/internal/app"
	"github.com/shakil5281/HrHub-sub001/internal/observability"
	"github.com/shakil5281/HrHub-sub001/internal/platform/cache"
	"github.com/shakil5281/HrHub-sub001/internal/platform/db"
	"github.com/shakil5281/HrHub-sub001/internal/rbac"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
	"github.com/shakil5281/HrHub-sub001/internal/users"
	"github.com/shakil5281/HrHub-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	readiness := map[string]app.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var locker shared.Locker = shared.NewKeyedMutex()
	if cfg.LockBackend == app.LockBackendRedis {
		locker = cache.NewRedisLocker(redisClient, cfg.LockTTL)
	}

	auditLogger := shared.NewAuditLogger(pool)
	var audit rbac.AuditPort = auditLogger
	var jobsHandler *jobs.Handler
	if cfg.AuditMode == app.AuditModeAsync {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("jobs inspector close", slog.Any("error", err))
			}
		}()
		audit = jobs.NewAuditDispatcher(client, auditLogger, logger)
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	metrics := observability.NewMetrics()
	directory := users.NewDirectory(users.NewRepository(pool))
	services := rbac.NewServices(rbac.NewRepository(pool, cfg.StoreTimeout), directory, audit, rbac.Config{
		StoreTimeout: cfg.StoreTimeout,
		Locker:       locker,
		Metrics:      metrics,
		Logger:       logger,
	})
	permissions := rbac.NewHandler(logger, services, rbac.Middleware{Checker: services.Resolver, Logger: logger})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		PermissionsHandler: permissions,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
		Readiness:          readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	logger.Info("starting hrhub",
		slog.String("lock_backend", cfg.LockBackend),
		slog.String("audit_mode", cfg.AuditMode),
	)
	if err := app.Serve(ctx, server, logger, cfg.ShutdownTimeout); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
