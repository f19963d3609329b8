package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/broker"
	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// Default configuration values.
const (
	defaultDispatchTimeout = 10 * time.Second
	defaultMaxLifetime     = 15 * time.Minute
	defaultDrainTimeout    = 15 * time.Second
	defaultFinalizeTimeout = 10 * time.Second
	defaultReleaseAttempts = 3
	defaultReleaseBackoff  = 200 * time.Millisecond

	// MaxItemLength — ограничение на название заказа.
	MaxItemLength = 128
)

// Dispatcher отправляет команду роботу.
//
// Успех означает только, что команда передана в канал робота.
// Ошибка означает, что сигнала завершения не будет.
type Dispatcher interface {
	Send(ctx context.Context, robot string, order *domain.WorkOrder, token string) error
}

// Notifier получает заказы, дошедшие до финального итога.
type Notifier interface {
	OrderFinished(ctx context.Context, order *domain.WorkOrder) error
}

// Engine принимает заказы и запускает для каждого workflow.
//
// Engine — центральный компонент системы, который:
//   - Создаёт заказ и сразу возвращает его ID
//   - Ведёт workflow заказа до финального итога
//   - Передаёт сигналы завершения в broker
//   - При остановке дожидается активных workflow, остальные прерывает
type Engine struct {
	registry   registry.Registry
	orders     orders.Store
	broker     *broker.Broker
	dispatcher Dispatcher
	notifier   Notifier
	metrics    *Metrics

	// MQ (опционально)
	conn               *mq.Connection
	completionConsumer *mq.Consumer
	orderConsumer      *mq.Consumer

	sweeper *Sweeper

	dispatchTimeout time.Duration
	maxLifetime     time.Duration
	drainTimeout    time.Duration
	finalizeTimeout time.Duration
	release         retryPolicy

	// Контекст всех workflow. Не наследует отмену от Start:
	// прерывает workflow только Stop после drain.
	runCtx    context.Context
	runCancel context.CancelFunc

	// Активные workflow (orderID → отмена)
	mu      sync.Mutex
	active  map[uuid.UUID]context.CancelFunc
	stopped bool
	wg      sync.WaitGroup

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	bgWG       sync.WaitGroup
}

// Config — конфигурация Engine.
type Config struct {
	Registry   registry.Registry
	Orders     orders.Store
	Broker     *broker.Broker
	Dispatcher Dispatcher

	// Notifier — опционально.
	Notifier Notifier

	// Metrics — опционально (default: отдельный реестр).
	Metrics *Metrics

	// Conn — опционально: без него Engine не слушает RabbitMQ,
	// сигналы приходят только через ReportCompletion.
	Conn *mq.Connection

	DispatchTimeout time.Duration // ожидание сигнала от робота (default: 10s)
	MaxLifetime     time.Duration // потолок жизни workflow (default: 15m)
	DrainTimeout    time.Duration // ожидание активных workflow при Stop (default: 15s)
	FinalizeTimeout time.Duration // на финальные записи в реестр и хранилище (default: 10s)

	ReleaseAttempts int           // попыток записать финальный статус робота (default: 3)
	ReleaseBackoff  time.Duration // начальная задержка между попытками (default: 200ms)

	// SweepSchedule — cron-расписание Sweeper (пусто — не запускать).
	SweepSchedule string

	Logger *slog.Logger
}

// New создаёт новый Engine. Заказы принимаются сразу,
// Start нужен только для consumers и sweeper.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	metrics.observePending(cfg.Broker.Pending)

	runCtx, runCancel := context.WithCancel(context.Background())

	e := &Engine{
		registry:        cfg.Registry,
		orders:          cfg.Orders,
		broker:          cfg.Broker,
		dispatcher:      cfg.Dispatcher,
		notifier:        cfg.Notifier,
		metrics:         metrics,
		conn:            cfg.Conn,
		dispatchTimeout: orDefault(cfg.DispatchTimeout, defaultDispatchTimeout),
		maxLifetime:     orDefault(cfg.MaxLifetime, defaultMaxLifetime),
		drainTimeout:    orDefault(cfg.DrainTimeout, defaultDrainTimeout),
		finalizeTimeout: orDefault(cfg.FinalizeTimeout, defaultFinalizeTimeout),
		release: retryPolicy{
			attempts: cfg.ReleaseAttempts,
			initial:  orDefault(cfg.ReleaseBackoff, defaultReleaseBackoff),
		},
		runCtx:    runCtx,
		runCancel: runCancel,
		active:    make(map[uuid.UUID]context.CancelFunc),
		logger:    logger,
	}
	if e.release.attempts <= 0 {
		e.release.attempts = defaultReleaseAttempts
	}

	if cfg.SweepSchedule != "" {
		e.sweeper = NewSweeper(SweeperConfig{
			Engine:   e,
			Schedule: cfg.SweepSchedule,
			Logger:   logger,
		})
	}
	return e
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start запускает consumers RabbitMQ и sweeper.
//
// Запускает:
//   - Consumer сигналов завершения (эксклюзивная очередь экземпляра)
//   - Consumer для orders.submitted
//   - Sweeper по расписанию
func (e *Engine) Start(ctx context.Context) error {
	// Consumers живут до Stop, а не до сигнала: во время drain
	// сигналы завершения от роботов ещё нужны.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancelFunc = cancel

	e.logger.Info("starting orchestrator",
		"dispatch_timeout", e.dispatchTimeout,
		"max_lifetime", e.maxLifetime,
		"mq", e.conn != nil,
	)

	if e.sweeper != nil {
		if err := e.sweeper.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("start sweeper: %w", err)
		}
	}

	if e.conn != nil {
		e.completionConsumer = mq.NewConsumer(e.conn, e.logger, mq.ConsumerConfig{
			Setup:    mq.DeclareCompletionQueue,
			Handler:  e.handleCompletion,
			Prefetch: 50,
			RawBody:  true,
		})
		e.orderConsumer = mq.NewConsumer(e.conn, e.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueOrdersSubmitted),
			Handler:  e.handleOrderSubmitted,
			Prefetch: 10,
		})

		for _, c := range []*mq.Consumer{e.completionConsumer, e.orderConsumer} {
			e.bgWG.Add(1)
			go func(c *mq.Consumer) {
				defer e.bgWG.Done()
				if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					e.logger.Error("consumer error", "error", err)
				}
			}(c)
		}
	}

	e.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает приём заказов, ждёт активные workflow
// drainTimeout и прерывает оставшиеся.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.logger.Info("stopping orchestrator...", "active_workflows", e.ActiveCount())

	// Перестаём принимать заказы; сигналы завершения продолжают
	// приходить, пока идёт drain.
	if e.orderConsumer != nil {
		e.orderConsumer.Stop()
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}

	if !e.waitWorkflows(e.drainTimeout) {
		e.logger.Warn("drain timeout exceeded, aborting workflows", "remaining", e.ActiveCount())
		e.runCancel()
		e.wg.Wait()
	}
	e.runCancel()

	// Workflow больше нет: закрытый broker отвергает регистрацию,
	// опоздавшие сигналы по старым токенам игнорируются.
	e.broker.Close()

	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	e.bgWG.Wait()

	e.logger.Info("orchestrator stopped")
}

// waitWorkflows ждёт завершения всех workflow не дольше timeout.
func (e *Engine) waitWorkflows(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Submit создаёт заказ и запускает его workflow.
//
// Возвращает ID сразу; итог доступен позже через хранилище заказов
// или уведомление order.completed.
func (e *Engine) Submit(ctx context.Context, item string) (uuid.UUID, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return uuid.Nil, ErrEmptyItem
	}
	if utf8.RuneCountInString(item) > MaxItemLength {
		return uuid.Nil, fmt.Errorf("%w: max %d characters", ErrItemTooLong, MaxItemLength)
	}

	if e.IsStopped() {
		return uuid.Nil, ErrEngineStopped
	}

	order := domain.NewWorkOrder(item)
	if err := e.orders.Create(ctx, order); err != nil {
		return uuid.Nil, fmt.Errorf("create order: %w", err)
	}

	// Проверка stopped и wg.Add под одним мьютексом:
	// Stop не начнёт ждать, пока мы не добавились.
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.abandon(order)
		return uuid.Nil, ErrEngineStopped
	}
	wfCtx, cancel := context.WithTimeout(e.runCtx, e.maxLifetime)
	e.active[order.ID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	e.metrics.orderSubmitted()
	telemetry.WithOrderID(e.logger, order.ID).Info("order submitted", "item", order.Item)

	go e.run(wfCtx, order)

	return order.ID, nil
}

// abandon завершает заказ, для которого workflow так и не стартовал.
func (e *Engine) abandon(order *domain.WorkOrder) {
	order.MarkFailed(domain.ReasonAborted, ErrEngineStopped.Error())
	ctx, cancel := context.WithTimeout(context.Background(), e.finalizeTimeout)
	defer cancel()
	if err := e.orders.Update(ctx, order); err != nil {
		telemetry.WithOrderID(e.logger, order.ID).Error("failed to persist abandoned order", "error", err)
	}
}

// ReportCompletion передаёт сигнал завершения ожидающему workflow.
//
// Возвращает false, если токен неизвестен или уже потреблён.
// Это нормальная ситуация (повтор, опоздание, чужой экземпляр), не ошибка.
func (e *Engine) ReportCompletion(token string, success bool, info string) bool {
	resolved := e.broker.Resolve(token, broker.Result{Success: success, Info: info})
	e.metrics.signal(resolved)
	return resolved
}

// run выполняет workflow заказа.
func (e *Engine) run(ctx context.Context, order *domain.WorkOrder) {
	defer e.wg.Done()
	defer e.removeActive(order.ID)
	defer e.metrics.workflowStarted()()

	wf := newWorkflow(e, order)
	wf.execute(ctx)
}

// removeActive удаляет workflow из активных и освобождает его контекст.
func (e *Engine) removeActive(orderID uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.active[orderID]
	delete(e.active, orderID)
	e.mu.Unlock()

	if ok {
		cancel()
	}
}

// IsActive проверяет, выполняется ли workflow заказа в этом экземпляре.
func (e *Engine) IsActive(orderID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[orderID]
	return ok
}

// ActiveCount возвращает количество активных workflow.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// IsStopped проверяет, остановлен ли Engine.
func (e *Engine) IsStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Orders возвращает хранилище заказов (для API).
func (e *Engine) Orders() orders.Store {
	return e.orders
}

// Registry возвращает реестр роботов (для API).
func (e *Engine) Registry() registry.Registry {
	return e.registry
}
