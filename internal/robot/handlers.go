package robot

import (
	"context"
	"fmt"

	"github.com/shaiso/smoothie-dispatch/internal/mq"
	"github.com/shaiso/smoothie-dispatch/internal/telemetry"
)

// handleCommand возвращает обработчик команд робота.
func (s *Simulator) handleCommand(robot string) mq.Handler {
	return func(ctx context.Context, delivery *mq.Delivery) error {
		return s.processCommand(ctx, robot, delivery.Body())
	}
}

// processCommand готовит смузи и отправляет сигнал завершения.
func (s *Simulator) processCommand(ctx context.Context, robot string, body []byte) error {
	cmd, err := mq.DecodeCommand(body)
	if err != nil {
		s.logger.Error("failed to parse command", "robot", robot, "error", err)
		return err
	}

	logger := telemetry.WithToken(telemetry.WithRobot(s.logger, robot), cmd.TaskToken).
		With("order_id", cmd.OrderID)
	logger.Info("command received", "smoothie", cmd.Smoothie)
	s.countHandled(robot)

	if s.silent {
		logger.Warn("silent mode, not answering")
		return nil
	}

	info, makeErr := s.maker.Make(ctx, robot, cmd)
	if makeErr != nil && ctx.Err() != nil {
		// Остановка посреди заказа: ответа не будет, оркестратор дождётся таймаута.
		return ctx.Err()
	}

	success := makeErr == nil
	if !success {
		info = makeErr.Error()
	}

	payload := mq.CompletionPayload{
		TaskToken: cmd.TaskToken,
		Success:   &success,
		Info:      info,
	}
	if err := s.reporter.PublishCompletion(ctx, robot, payload); err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}

	if success {
		logger.Info("smoothie made", "info", info)
	} else {
		logger.Warn("smoothie failed", "info", info)
	}
	return nil
}
