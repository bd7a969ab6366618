package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/redcell/bloodlink/internal/api"
	"github.com/redcell/bloodlink/internal/clock"
	"github.com/redcell/bloodlink/internal/config"
	"github.com/redcell/bloodlink/internal/db"
	"github.com/redcell/bloodlink/internal/directory"
	"github.com/redcell/bloodlink/internal/inventory"
	"github.com/redcell/bloodlink/internal/logging"
	"github.com/redcell/bloodlink/internal/notify"
	redisclient "github.com/redcell/bloodlink/internal/redis"
	"github.com/redcell/bloodlink/internal/request"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	schemaCtx, cancelSchema := context.WithTimeout(rootCtx, 10*time.Second)
	err = db.EnsureSchema(schemaCtx, pgPool)
	cancelSchema()
	if err != nil {
		logger.Fatal("schema apply error", zap.Error(err))
	}
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	var notifier notify.Notifier
	if cfg.NATSURL != "" {
		natsNotifier, err := notify.NewNatsNotifier(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal("nats connection error", zap.Error(err))
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
		logger.Info("connected to NATS", zap.String("url", cfg.NATSURL))
	} else {
		notifier = notify.NewNoop()
		logger.Warn("NATS_URL not set, notifications disabled")
	}

	clk := clock.NewSystem()

	store := inventory.NewPgStore(pgPool)
	invSvc := inventory.NewService(store, store, clk, logger,
		inventory.WithShelfLife(cfg.BatchShelfLife))

	users := directory.NewPgRepository(pgPool)
	locker := redisclient.NewRedisRequestLocker(rdb, cfg.LockTTL)
	reqSvc := request.NewService(request.NewPgRepository(pgPool), invSvc, users, notifier, locker, clk, logger)

	router := api.NewRouter(api.RouterConfig{
		Requests:  reqSvc,
		Inventory: invSvc,
		PgPool:    pgPool,
		Redis:     rdb,
		Log:       logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("api-server stopped")
}
