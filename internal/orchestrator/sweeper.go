package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

const (
	defaultSweepBatch = 100

	// sweepGrace — запас сверх maxLifetime + drain: заказ другого
	// экземпляра к этому моменту точно не выполняется.
	sweepGrace = time.Minute
)

// scheduleParser понимает стандартный cron и дескрипторы (@every 1m, @hourly).
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule проверяет cron-расписание sweeper.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// Sweeper завершает осиротевшие заказы.
//
// Заказ сиротеет, если процесс, ведший его workflow, упал:
// outcome навсегда остаётся PENDING, а робот — BUSY.
// Sweeper помечает такие заказы FAILED (ORPHANED), а робота FAULTED:
// неизвестно, закончил ли он работу.
type Sweeper struct {
	engine   *Engine
	schedule string
	batch    int
	now      func() time.Time
	logger   *slog.Logger

	cron *cron.Cron
}

// SweeperConfig — конфигурация Sweeper.
type SweeperConfig struct {
	Engine   *Engine
	Schedule string // cron-расписание (например, "@every 1m")
	Batch    int    // заказов за один проход (default: 100)
	Logger   *slog.Logger
}

// NewSweeper создаёт Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	batch := cfg.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		engine:   cfg.Engine,
		schedule: cfg.Schedule,
		batch:    batch,
		now:      time.Now,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start запускает проходы по расписанию.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithParser(scheduleParser))

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule)
	return nil
}

// Stop останавливает расписание и ждёт текущий проход.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep выполняет один проход. Возвращает число завершённых заказов.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	e := s.engine
	cutoff := s.now().Add(-(e.maxLifetime + e.drainTimeout + sweepGrace))

	stale, err := e.orders.ListStale(ctx, cutoff, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	swept := 0
	for i := range stale {
		order := &stale[i]
		if e.IsActive(order.ID) {
			continue
		}
		if err := s.orphan(ctx, order); err != nil {
			telemetry.WithOrderID(s.logger, order.ID).Error("failed to sweep order", "error", err)
			continue
		}
		swept++
	}

	if swept > 0 {
		s.logger.Info("orphaned orders swept", "count", swept)
	}
	return swept, nil
}

func (s *Sweeper) orphan(ctx context.Context, order *domain.WorkOrder) error {
	e := s.engine
	logger := telemetry.WithOrderID(s.logger, order.ID)

	// Робот захвачен, но итог не записан: его состояние неизвестно.
	if order.AssignedWorker != "" {
		err := e.registry.SetStatus(ctx, order.AssignedWorker, domain.WorkerStatusFaulted)
		switch {
		case errors.Is(err, registry.ErrUnknownWorker):
			logger.Error("orphaned order references unknown robot", "robot", order.AssignedWorker)
		case err != nil:
			return fmt.Errorf("fault robot %s: %w", order.AssignedWorker, err)
		}
	}

	order.MarkFailed(domain.ReasonOrphaned,
		fmt.Sprintf("workflow lost at stage %s", order.Stage))
	if err := e.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	e.metrics.orderFinished(order)
	logger.Warn("order orphaned", "robot", order.AssignedWorker)
	return nil
}
