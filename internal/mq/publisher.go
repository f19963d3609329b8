package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeOrderSubmitted MessageType = "order.submitted"
	MessageTypeOrderCompleted MessageType = "order.completed"
)

// Publisher публикует сообщения через общий канал соединения.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт для внутренних событий.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publish публикует конверт в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := p.publishBody(ctx, exchange, routingKey, msg.ID, msg.Timestamp, body); err != nil {
		return err
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishRaw публикует JSON без конверта.
// Так общаются роботы: их протокол не знает о Message.
func (p *Publisher) PublishRaw(ctx context.Context, exchange Exchange, routingKey RoutingKey, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return p.publishBody(ctx, exchange, routingKey, uuid.NewString(), time.Now(), body)
}

func (p *Publisher) publishBody(ctx context.Context, exchange Exchange, routingKey RoutingKey, id string, ts time.Time, body []byte) error {
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    id,
				Timestamp:    ts,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}
		return nil
	})
}

// PublishJSON публикует произвольный payload в конверте.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishOrderSubmitted ставит заказ в очередь.
// Потребитель: Orchestrator.
func (p *Publisher) PublishOrderSubmitted(ctx context.Context, item string) error {
	return p.PublishJSON(ctx, ExchangeOrders, RoutingKeySubmitted, MessageTypeOrderSubmitted,
		OrderSubmittedPayload{Item: item})
}

// PublishOrderCompleted публикует финальный итог заказа.
// Потребители: внешние подписчики orders.completed.
func (p *Publisher) PublishOrderCompleted(ctx context.Context, order *domain.WorkOrder) error {
	payload := OrderCompletedPayload{
		OrderID: order.ID,
		Item:    order.Item,
		Robot:   order.AssignedWorker,
		Outcome: string(order.Outcome),
		Reason:  string(order.Reason),
		Detail:  order.Detail,
	}
	if order.FinishedAt != nil {
		payload.FinishedAt = *order.FinishedAt
	}
	return p.PublishJSON(ctx, ExchangeOrders, RoutingKeyCompleted, MessageTypeOrderCompleted, payload)
}

// PublishCompletion публикует сигнал завершения от имени робота.
// Потребитель: все экземпляры оркестратора.
func (p *Publisher) PublishCompletion(ctx context.Context, robot string, payload CompletionPayload) error {
	return p.PublishRaw(ctx, ExchangeRobots, CompletionRoutingKey(robot), payload)
}
