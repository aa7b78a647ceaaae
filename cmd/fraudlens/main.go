package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fraudlens/fraudlens/internal/app"
	"github.com/fraudlens/fraudlens/internal/audit"
	"github.com/fraudlens/fraudlens/internal/auth"
	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/httpapi"
	"github.com/fraudlens/fraudlens/internal/notify"
	"github.com/fraudlens/fraudlens/internal/observability"
	"github.com/fraudlens/fraudlens/internal/platform/cache"
	"github.com/fraudlens/fraudlens/internal/platform/db"
	"github.com/fraudlens/fraudlens/internal/session"
	"github.com/fraudlens/fraudlens/jobs"
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

	// The catalog is compiled in; a broken definition is a deploy bug
	// and must stop startup.
	catalog, err := authz.NewCatalog(cfg.CatalogDefinitions())
	if err != nil {
		logger.Error("build permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var auditSink audit.Sink = audit.NewLogSink(logger)
	var asyncAudit *audit.AsyncSink
	verifierCfg := auth.Config{MaxAttempts: cfg.AuthMaxAttempts, LockoutWindow: cfg.AuthLockoutWindow}
	var verifier session.Verifier

	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		asyncAudit = audit.NewAsyncSink(audit.NewPGSink(pool), logger, 0)
		auditSink = asyncAudit
		verifier = auth.NewService(auth.NewRepository(pool), verifierCfg)
	} else {
		logger.Warn("PG_DSN not set, using in-memory dev accounts")
		repo, err := auth.NewDevRepository("fraudlens-dev")
		if err != nil {
			logger.Error("seed dev accounts", slog.Any("error", err))
			os.Exit(1)
		}
		verifier = auth.NewService(repo, verifierCfg)
	}
	if asyncAudit != nil {
		defer asyncAudit.Close()
	}

	store := session.NewRedisStore(redisClient, session.StoreConfig{Timeout: cfg.StoreTimeout})

	manager, err := session.NewManager(session.ManagerParams{
		Logger:   logger,
		Store:    store,
		Verifier: verifier,
		Audit:    auditSink,
		Notify:   notify.NewFanout(notify.NewLogSink(logger)),
		Messages: notify.NewFactory(cfg.NotifyLocale),
		Metrics:  metrics,
		Config:   cfg.SessionConfig(),
	})
	if err != nil {
		logger.Error("init session manager", slog.Any("error", err))
		os.Exit(1)
	}
	defer manager.Scheduler().Shutdown()

	facade := session.NewFacade(manager, authz.NewEvaluator(catalog))
	sessionHandler := httpapi.NewHandler(logger, facade, httpapi.CookieConfig{
		Name:   cfg.SessionCookie,
		Secure: cfg.IsProduction(),
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionHandler: sessionHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
