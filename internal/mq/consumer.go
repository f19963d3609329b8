package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerRetryInterval = 5 * time.Second

// Handler — функция обработки сообщения.
//
// nil — ack. Ошибка с ErrInvalidPayload — nack без requeue (DLQ).
// Любая другая ошибка — nack с requeue, но только один раз.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Message — распарсенный конверт (пуст для RawBody consumer).
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// QueueSetup объявляет очередь на канале consumer'а и возвращает её имя.
// Вызывается при каждом (пере)подключении: эксклюзивные и
// auto-delete очереди живут не дольше соединения.
type QueueSetup func(ch *amqp.Channel) (string, error)

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	setup    QueueSetup
	handler  Handler
	prefetch int
	rawBody  bool

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя существующей очереди. Игнорируется, если задан Setup.
	Queue string

	// Setup — объявление собственной очереди.
	Setup QueueSetup

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// RawBody — тело не в конверте Message (протокол роботов).
	RawBody bool
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		setup:    cfg.Setup,
		handler:  cfg.Handler,
		prefetch: prefetch,
		rawBody:  cfg.RawBody,
	}
}

// Start запускает потребление и блокируется до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, queue, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "queue", queue)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", queue)
			if err := c.waitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

// waitReconnect ждёт переподключения. Если оно случилось раньше,
// чем мы начали ждать, повторяем попытку по таймеру.
func (c *Consumer) waitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		return nil
	case <-time.After(consumerRetryInterval):
		return nil
	}
}

// setupConsume объявляет очередь (если нужно) и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, string, error) {
	ch := c.conn.Channel()
	if ch == nil || ch.IsClosed() {
		return nil, "", ErrNoChannel
	}

	queue := c.queue
	if c.setup != nil {
		name, err := c.setup(ch)
		if err != nil {
			return nil, "", err
		}
		queue = name
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack (мы ack вручную)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, queue, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{Raw: raw}

	if !c.rawBody {
		if err := json.Unmarshal(raw.Body, &delivery.Message); err != nil {
			c.logger.Error("failed to unmarshal message",
				"routing_key", raw.RoutingKey,
				"error", err,
				"body", string(raw.Body),
			)
			// Некорректное сообщение — отправляем в DLQ
			raw.Nack(false, false)
			return
		}
	}

	c.logger.Debug("received message",
		"routing_key", raw.RoutingKey,
		"message_id", raw.MessageId,
		"type", delivery.Message.Type,
	)

	err := c.handler(ctx, delivery)
	switch {
	case err == nil:
		raw.Ack(false)

	case errors.Is(err, ErrInvalidPayload):
		c.logger.Warn("rejecting invalid message",
			"routing_key", raw.RoutingKey,
			"message_id", raw.MessageId,
			"error", err,
		)
		raw.Nack(false, false)

	default:
		c.logger.Error("handler failed",
			"routing_key", raw.RoutingKey,
			"message_id", raw.MessageId,
			"error", err,
		)
		raw.Nack(false, !raw.Redelivered)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload парсит payload конверта в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal в any payload — map[string]any
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("%w: marshal payload: %v", ErrInvalidPayload, err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("%w: unmarshal payload: %v", ErrInvalidPayload, err)
	}
	return result, nil
}
