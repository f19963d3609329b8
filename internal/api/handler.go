package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/orders"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
)

// Orchestrator — операции оркестратора, доступные через API.
// Реализация: orchestrator.Engine.
type Orchestrator interface {
	Submit(ctx context.Context, item string) (uuid.UUID, error)
	ReportCompletion(token string, success bool, info string) bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engine    Orchestrator
	orders    orders.Store
	registry  registry.Registry
	rateLimit float64
	rateBurst int
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engine   Orchestrator
	Orders   orders.Store
	Registry registry.Registry

	// RateLimit — запросов в секунду на POST/PUT маршруты (0 — без ограничения).
	RateLimit float64
	RateBurst int

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:    cfg.Engine,
		orders:    cfg.Orders,
		registry:  cfg.Registry,
		rateLimit: cfg.RateLimit,
		rateBurst: cfg.RateBurst,
		logger:    logger,
	}
}
