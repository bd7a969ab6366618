package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redcell/bloodlink/internal/inventory"
	"github.com/redcell/bloodlink/internal/request"
)

type RouterConfig struct {
	Requests  *request.Service
	Inventory *inventory.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Log       *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Request lifecycle endpoints
	r.Post("/requests", createRequestHandler(cfg.Requests))
	r.Get("/requests", listActiveRequestsHandler(cfg.Requests))
	r.Get("/requests/{id}", getRequestHandler(cfg.Requests))
	r.Post("/requests/{id}/accept", acceptRequestHandler(cfg.Requests))
	r.Post("/requests/{id}/complete", completeRequestHandler(cfg.Requests))
	r.Post("/requests/{id}/cancel", cancelRequestHandler(cfg.Requests))
	r.Post("/requests/{id}/dispatch", dispatchRequestHandler(cfg.Requests))
	r.Post("/requests/{id}/ignore", ignoreRequestHandler(cfg.Requests))

	// Inventory endpoints
	r.Get("/hospitals/{hospitalID}/inventory", getInventoryHandler(cfg.Inventory))
	r.Get("/hospitals/{hospitalID}/batches", listBatchesHandler(cfg.Inventory))
	r.Get("/hospitals/{hospitalID}/report", hospitalReportHandler(cfg.Inventory, cfg.Requests))
	r.Post("/batches", createBatchHandler(cfg.Inventory))
	r.Post("/batches/{id}/use", useBatchUnitsHandler(cfg.Inventory))

	return r
}
