package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// workflow — автомат одного заказа.
//
// Переходы строго последовательны внутри экземпляра;
// разделяемые ресурсы (реестр, broker) атомарны сами по себе.
type workflow struct {
	e      *Engine
	order  *domain.WorkOrder
	logger *slog.Logger
}

func newWorkflow(e *Engine, order *domain.WorkOrder) *workflow {
	return &workflow{
		e:      e,
		order:  order,
		logger: telemetry.WithOrderID(e.logger, order.ID),
	}
}

// verdict — решение по заказу до записи финального статуса робота.
type verdict struct {
	outcome domain.OrderOutcome
	reason  domain.FailureReason
	detail  string

	// release — статус робота после заказа (пусто — робота нет).
	release domain.WorkerStatus
}

// execute проводит заказ через все состояния до TERMINAL.
func (w *workflow) execute(ctx context.Context) {
	// SELECTING
	robot, err := w.e.registry.ClaimAvailable(ctx)
	if err != nil {
		w.finishUnclaimed(ctx, err)
		return
	}

	w.logger = telemetry.WithRobot(w.logger, robot)
	w.order.MarkAssigned(robot)
	w.advance(ctx, domain.StageDispatching)

	// DISPATCHING
	cont, err := w.e.broker.Register(w.order.ID, time.Now().Add(w.e.dispatchTimeout))
	if err != nil {
		// Команда не ушла, робот не трогал заказ — возвращаем его в пул.
		w.advance(ctx, domain.StageFailing)
		w.finish(ctx, verdict{
			outcome: domain.OrderOutcomeFailed,
			reason:  domain.ReasonAborted,
			detail:  fmt.Sprintf("register continuation: %v", err),
			release: domain.WorkerStatusAvailable,
		})
		return
	}

	if err := w.e.dispatcher.Send(ctx, robot, w.order, cont.Token); err != nil {
		w.e.broker.Cancel(cont.Token)
		w.logger.Warn("command delivery failed", "error", err)

		reason := domain.ReasonDeliveryError
		if ctx.Err() != nil {
			reason = domain.ReasonAborted
		}

		// Робот никогда не ответит на команду, которую не получил:
		// тот же путь, что и таймаут.
		w.advance(ctx, domain.StageFailing)
		w.finish(ctx, verdict{
			outcome: domain.OrderOutcomeFailed,
			reason:  reason,
			detail:  err.Error(),
			release: domain.WorkerStatusFaulted,
		})
		return
	}

	w.advance(ctx, domain.StageAwaitingCompletion)
	w.logger.Debug("awaiting completion", "deadline", cont.Deadline)

	// AWAITING_COMPLETION
	out, err := cont.Wait(ctx)
	if err != nil {
		if w.e.broker.Cancel(cont.Token) {
			w.advance(ctx, domain.StageFailing)
			w.finish(ctx, verdict{
				outcome: domain.OrderOutcomeFailed,
				reason:  domain.ReasonAborted,
				detail:  fmt.Sprintf("%v: %v", ErrAborted, context.Cause(ctx)),
				release: domain.WorkerStatusFaulted,
			})
			return
		}
		// Сигнал или таймаут успели потребить continuation
		// одновременно с отменой: результат уже в буфере.
		out = <-cont.Done()
	}

	switch {
	case out.TimedOut:
		w.advance(ctx, domain.StageFailing)
		w.finish(ctx, verdict{
			outcome: domain.OrderOutcomeFailed,
			reason:  domain.ReasonTimeout,
			detail:  fmt.Sprintf("%v (%s)", ErrTimeout, w.e.dispatchTimeout),
			release: domain.WorkerStatusFaulted,
		})

	case !out.Success:
		// Робот ответил, значит жив: возвращаем в пул.
		w.advance(ctx, domain.StageFailing)
		w.finish(ctx, verdict{
			outcome: domain.OrderOutcomeFailed,
			reason:  domain.ReasonWorkerReportedFailure,
			detail:  failureDetail(out.Info),
			release: domain.WorkerStatusAvailable,
		})

	default:
		w.advance(ctx, domain.StageSucceeding)
		w.finish(ctx, verdict{
			outcome: domain.OrderOutcomeSucceeded,
			detail:  out.Info,
			release: domain.WorkerStatusAvailable,
		})
	}
}

func failureDetail(info string) string {
	if info == "" {
		return ErrWorkerFailed.Error()
	}
	return fmt.Sprintf("%v: %s", ErrWorkerFailed, info)
}

// finishUnclaimed завершает заказ, для которого робот не захвачен.
// Реестр не изменялся, откатывать нечего.
func (w *workflow) finishUnclaimed(ctx context.Context, err error) {
	v := verdict{outcome: domain.OrderOutcomeFailed, detail: err.Error()}

	switch {
	case errors.Is(err, registry.ErrNoWorkerAvailable):
		v.reason = domain.ReasonNoWorkerAvailable
	case ctx.Err() != nil:
		v.reason = domain.ReasonAborted
	default:
		v.reason = domain.ReasonRegistryError
		w.logger.Error("claim failed", "error", err)
	}
	w.finish(ctx, v)
}

// advance переводит автомат в следующее состояние и сохраняет заказ.
func (w *workflow) advance(ctx context.Context, next domain.Stage) {
	from := w.order.Stage
	if !domain.CanTransition(from, next) {
		w.logger.Error("illegal stage transition", "from", from, "to", next)
	}
	w.order.MarkStage(next)

	if err := w.persist(ctx); err != nil {
		// Промежуточное состояние — только для наблюдения,
		// финальная запись будет повторена в finish.
		w.logger.Warn("failed to persist stage", "stage", next, "error", err)
	}
}

// finish записывает финальный статус робота и итог заказа.
//
// Записи идут в контексте, отвязанном от отмены workflow:
// прерванный workflow всё равно обязан освободить робота.
func (w *workflow) finish(ctx context.Context, v verdict) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.e.finalizeTimeout)
	defer cancel()

	if v.release != "" {
		if err := w.releaseRobot(ctx, v.release); err != nil {
			v = w.releaseFailed(v, err)
		}
	}

	if !domain.CanTransition(w.order.Stage, domain.StageTerminal) {
		w.logger.Error("illegal stage transition", "from", w.order.Stage, "to", domain.StageTerminal)
	}
	if v.outcome == domain.OrderOutcomeSucceeded {
		w.order.MarkSucceeded(v.detail)
	} else {
		w.order.MarkFailed(v.reason, v.detail)
	}

	if err := w.persist(ctx); err != nil {
		w.logger.Error("failed to persist order outcome", "outcome", w.order.Outcome, "error", err)
	}

	w.e.metrics.orderFinished(w.order)
	w.log()

	if w.e.notifier != nil {
		if err := w.e.notifier.OrderFinished(ctx, w.order); err != nil {
			w.logger.Warn("failed to publish order outcome", "error", err)
		}
	}
}

// releaseRobot записывает финальный статус робота с повторами.
// UnknownWorker не повторяется: это рассогласование реестра.
func (w *workflow) releaseRobot(ctx context.Context, status domain.WorkerStatus) error {
	robot := w.order.AssignedWorker
	return w.e.release.do(ctx, func(attempt int) error {
		err := w.e.registry.SetStatus(ctx, robot, status)
		if err != nil && !errors.Is(err, registry.ErrUnknownWorker) {
			w.logger.Warn("release attempt failed", "status", status, "attempt", attempt, "error", err)
		}
		return err
	}, func(err error) bool {
		return !errors.Is(err, registry.ErrUnknownWorker)
	})
}

// releaseFailed переписывает решение, если робота не удалось освободить.
func (w *workflow) releaseFailed(v verdict, err error) verdict {
	prev := string(v.reason)
	if v.outcome == domain.OrderOutcomeSucceeded {
		prev = string(domain.OrderOutcomeSucceeded)
	}

	reason := domain.ReasonRegistryError
	if errors.Is(err, registry.ErrUnknownWorker) {
		reason = domain.ReasonUnknownWorker
	}
	w.logger.Error("failed to release robot",
		"status", v.release,
		"reason", reason,
		"error", err,
	)

	return verdict{
		outcome: domain.OrderOutcomeFailed,
		reason:  reason,
		detail:  fmt.Sprintf("%s; set robot %s: %v", prev, v.release, err),
	}
}

func (w *workflow) persist(ctx context.Context) error {
	return w.e.orders.Update(ctx, w.order)
}

func (w *workflow) log() {
	attrs := []any{
		"outcome", w.order.Outcome,
		"duration", w.order.Duration(),
	}
	if w.order.Reason != domain.ReasonNone {
		attrs = append(attrs, "reason", w.order.Reason)
	}
	if w.order.Detail != "" {
		attrs = append(attrs, "detail", w.order.Detail)
	}

	if w.order.Outcome == domain.OrderOutcomeSucceeded {
		w.logger.Info("order succeeded", attrs...)
		return
	}
	w.logger.Info("order failed", attrs...)
}

// retryPolicy — повторы с экспоненциальной задержкой.
type retryPolicy struct {
	attempts int
	initial  time.Duration
	max      time.Duration
}

// backoff вычисляет задержку перед попыткой attempt+1.
// delay = initial * 2^(attempt-1), не больше max.
func (p retryPolicy) backoff(attempt int) time.Duration {
	maxDelay := p.max
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	delay := p.initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// do вызывает fn до успеха, исчерпания попыток или отмены ctx.
func (p retryPolicy) do(ctx context.Context, fn func(attempt int) error, retryable func(error) bool) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == p.attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(p.backoff(attempt)):
		}
	}
	return err
}
