package mq

import "errors"

var (
	// ErrNoChannel — соединение с RabbitMQ недоступно.
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrDeliveryFailed — брокер отверг команду: нет очереди робота
	// (basic.return), nack или канал недоступен.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrInvalidPayload — сообщение не разбирается. Такие сообщения
	// не возвращаются в очередь.
	ErrInvalidPayload = errors.New("invalid payload")
)
