package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

const (
	defaultConfirmTimeout = 5 * time.Second
	returnsBuffer         = 16
)

// CommandPublisher отправляет команды роботам.
//
// Публикация идёт с mandatory=true в канале с publisher confirms:
// если очереди робота нет, брокер вернёт сообщение (basic.return)
// раньше, чем подтвердит его. Это единственный признак того, что
// команда не дошла; выполнение команды роботом не гарантируется.
//
// Канал один на publisher, отправки сериализуются мьютексом,
// чтобы basic.return однозначно относился к текущей команде.
type CommandPublisher struct {
	conn    *Connection
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ch      *amqp.Channel
	returns chan amqp.Return
}

// CommandPublisherConfig — конфигурация CommandPublisher.
type CommandPublisherConfig struct {
	// ConfirmTimeout — сколько ждать подтверждения брокера (default: 5s).
	ConfirmTimeout time.Duration

	Logger *slog.Logger
}

// NewCommandPublisher создаёт CommandPublisher. Канал открывается лениво.
func NewCommandPublisher(conn *Connection, cfg CommandPublisherConfig) *CommandPublisher {
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CommandPublisher{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
	}
}

// Send публикует команду роботу.
//
// Ошибка всегда оборачивает ErrDeliveryFailed: вызывающему важно лишь,
// что сигнала от робота не будет.
func (p *CommandPublisher) Send(ctx context.Context, robot string, order *domain.WorkOrder, token string) error {
	body, err := json.Marshal(CommandPayload{
		OrderID:   order.ID,
		Smoothie:  order.Item,
		TaskToken: token,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal command: %v", ErrDeliveryFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	p.drainReturns()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msgID := uuid.NewString()
	key := CommandRoutingKey(robot)

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		string(ExchangeRobots),
		string(key),
		true,  // mandatory: нет очереди робота — вернуть
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("%w: publish to %s: %v", ErrDeliveryFailed, key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("%w: await confirm for %s: %v", ErrDeliveryFailed, key, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker nacked command for %s", ErrDeliveryFailed, key)
	}

	// basic.return приходит до basic.ack по тому же соединению,
	// поэтому к этому моменту он уже лежит в буфере.
	if ret, returned := p.takeReturn(msgID); returned {
		return fmt.Errorf("%w: %s returned: %d %s", ErrDeliveryFailed, key, ret.ReplyCode, ret.ReplyText)
	}

	p.logger.Debug("command published",
		"robot", robot,
		"order_id", order.ID,
		"message_id", msgID,
	)
	return nil
}

// channel возвращает confirm-канал, открывая его при необходимости.
// Вызывается под p.mu.
func (p *CommandPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.OpenChannel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p.returns = ch.NotifyReturn(make(chan amqp.Return, returnsBuffer))
	p.ch = ch
	return ch, nil
}

// resetChannel закрывает канал после ошибки; следующий Send откроет новый.
func (p *CommandPublisher) resetChannel() {
	if p.ch != nil {
		p.ch.Close()
	}
	p.ch = nil
	p.returns = nil
}

// drainReturns выбрасывает возвраты прошлых команд.
func (p *CommandPublisher) drainReturns() {
	for {
		select {
		case _, ok := <-p.returns:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// takeReturn ищет возврат текущей команды.
func (p *CommandPublisher) takeReturn(msgID string) (amqp.Return, bool) {
	for {
		select {
		case ret, ok := <-p.returns:
			if !ok {
				return amqp.Return{}, false
			}
			if ret.MessageId == msgID {
				return ret, true
			}
		default:
			return amqp.Return{}, false
		}
	}
}

// Close закрывает confirm-канал.
func (p *CommandPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	p.returns = nil
	return err
}
