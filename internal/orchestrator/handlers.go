package orchestrator

import (
	"context"
	"errors"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// handleCompletion обрабатывает сигнал завершения от робота.
//
// Сигналы для чужих экземпляров, повторные и запоздавшие
// подтверждаются и игнорируются.
func (e *Engine) handleCompletion(_ context.Context, delivery *mq.Delivery) error {
	payload, err := mq.DecodeCompletion(delivery.Body())
	if err != nil {
		return err
	}

	robot, _ := mq.RobotFromCompletionKey(delivery.Raw.RoutingKey)
	logger := telemetry.WithToken(telemetry.WithRobot(e.logger, robot), payload.TaskToken)

	if e.ReportCompletion(payload.TaskToken, payload.Succeeded(), payload.Info) {
		logger.Debug("completion signal resolved", "success", payload.Succeeded())
	}
	return nil
}

// handleOrderSubmitted принимает заказ из очереди orders.submitted.
func (e *Engine) handleOrderSubmitted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.OrderSubmittedPayload](&delivery.Message)
	if err != nil {
		return err
	}

	id, err := e.Submit(ctx, payload.Item)
	switch {
	case errors.Is(err, ErrEmptyItem), errors.Is(err, ErrItemTooLong):
		// Невалидный заказ не станет валидным при повторе
		return errors.Join(mq.ErrInvalidPayload, err)
	case err != nil:
		return err
	}

	e.logger.Debug("order accepted from queue",
		"order_id", id,
		"message_id", delivery.Message.ID,
	)
	return nil
}

// NotifierFunc адаптирует функцию к Notifier.
type NotifierFunc func(ctx context.Context, order *domain.WorkOrder) error

// OrderFinished вызывает f.
func (f NotifierFunc) OrderFinished(ctx context.Context, order *domain.WorkOrder) error {
	return f(ctx, order)
}

// MQNotifier публикует итог заказа в orders.completed.
func MQNotifier(p *mq.Publisher) Notifier {
	return NotifierFunc(p.PublishOrderCompleted)
}
