package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

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

// The worker sweeps two kinds of staleness: active requests past their
// window, and batches past their expiry date. Lazy evaluation on the
// read and accept paths is the primary mechanism; this just tidies the
// tail so stale rows do not linger unobserved.
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

	logger.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	clk := clock.NewSystem()

	store := inventory.NewPgStore(pgPool)
	invSvc := inventory.NewService(store, store, clk, logger,
		inventory.WithShelfLife(cfg.BatchShelfLife))

	// No lock or fan-out needed for the sweep.
	reqSvc := request.NewService(
		request.NewPgRepository(pgPool),
		invSvc,
		directory.NewPgRepository(pgPool),
		notify.NewNoop(),
		redisclient.NoopLocker{},
		clk,
		logger,
	)

	runOnce(rootCtx, logger, reqSvc, invSvc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, reqSvc, invSvc)
		}
	}
}

func runOnce(ctx context.Context, logger *zap.Logger, reqSvc *request.Service, invSvc *inventory.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := reqSvc.ExpireStale(runCtx); err != nil {
		logger.Error("request expiry run failed", zap.Error(err))
	}
	if err := invSvc.ReapAll(runCtx); err != nil {
		logger.Error("batch reap run failed", zap.Error(err))
	}
	logger.Info("expiry run complete", zap.Duration("took", time.Since(start)))
}
