package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRobots Exchange = "smoothie.robots"
	ExchangeOrders Exchange = "smoothie.orders"
	ExchangeDLQ    Exchange = "smoothie.dlq"
)

// Queues — имена общих очередей.
const (
	QueueOrdersSubmitted Queue = "orders.submitted"
	QueueOrdersCompleted Queue = "orders.completed"
	QueueDLQOrders       Queue = "dlq.orders"
)

// Routing keys.
const (
	RoutingKeySubmitted RoutingKey = "submitted"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQOrders RoutingKey = "orders"

	// CompletionBindingKey — все сигналы завершения от всех роботов.
	CompletionBindingKey RoutingKey = "robots.*.success"
)

const (
	robotKeyPrefix   = "robots."
	commandKeySuffix = ".order"
	successKeySuffix = ".success"
)

// CommandRoutingKey — ключ команды роботу: robots.<name>.order.
func CommandRoutingKey(robot string) RoutingKey {
	return RoutingKey(robotKeyPrefix + robot + commandKeySuffix)
}

// CompletionRoutingKey — ключ сигнала от робота: robots.<name>.success.
func CompletionRoutingKey(robot string) RoutingKey {
	return RoutingKey(robotKeyPrefix + robot + successKeySuffix)
}

// RobotFromCompletionKey извлекает имя робота из ключа сигнала.
func RobotFromCompletionKey(key string) (string, bool) {
	if !strings.HasPrefix(key, robotKeyPrefix) || !strings.HasSuffix(key, successKeySuffix) {
		return "", false
	}
	name := key[len(robotKeyPrefix) : len(key)-len(successKeySuffix)]
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

// RobotQueue — очередь команд робота.
func RobotQueue(robot string) Queue {
	return Queue("robot." + robot + ".orders")
}

// SetupTopology объявляет общие exchanges, очереди и привязки.
// Очереди роботов и очереди сигналов создаются их потребителями.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		// topic — для wildcard-подписки на сигналы всех роботов
		{ExchangeRobots, amqp.ExchangeTopic},
		{ExchangeOrders, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт общие очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQOrders),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// orders.submitted — битые заказы уходят в DLQ
		{QueueOrdersSubmitted, dlqArgs},

		// orders.completed — уведомления для внешних подписчиков
		{QueueOrdersCompleted, nil},

		{QueueDLQOrders, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает общие очереди.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueOrdersSubmitted, RoutingKeySubmitted, ExchangeOrders},
		{QueueOrdersCompleted, RoutingKeyCompleted, ExchangeOrders},
		{QueueDLQOrders, RoutingKeyDLQOrders, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// DeclareCompletionQueue создаёт эксклюзивную очередь сигналов
// для одного экземпляра оркестратора. Имя генерирует брокер.
//
// Каждый экземпляр видит все сигналы; чужой токен разрешится в no-op.
func DeclareCompletionQueue(ch *amqp.Channel) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare completion queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, string(CompletionBindingKey), string(ExchangeRobots), false, nil); err != nil {
		return "", fmt.Errorf("bind completion queue: %w", err)
	}
	return q.Name, nil
}

// DeclareRobotQueue создаёт очередь команд робота.
//
// Очередь удаляется, когда робот отключается: команда отключённому
// роботу вернётся отправителю как unroutable.
func DeclareRobotQueue(ch *amqp.Channel, robot string) (string, error) {
	name := string(RobotQueue(robot))
	_, err := ch.QueueDeclare(
		name,
		false, // durable
		true,  // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare robot queue %s: %w", name, err)
	}

	if err := ch.QueueBind(name, string(CommandRoutingKey(robot)), string(ExchangeRobots), false, nil); err != nil {
		return "", fmt.Errorf("bind robot queue %s: %w", name, err)
	}
	return name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Smoothie RabbitMQ Topology:

    smoothie.robots (topic)
    ├── robot.<name>.orders [routing: robots.<name>.order]
    │       Consumer: robot <name> (auto-delete)
    └── <server-named> [routing: robots.*.success]
            Consumer: orchestrator instance (exclusive)

    smoothie.orders (direct)
    ├── orders.submitted [routing: submitted]
    │       Consumer: Orchestrator
    │       DLQ: dlq.orders
    └── orders.completed [routing: completed]
            Consumer: external subscribers

    smoothie.dlq (direct)
    └── dlq.orders [routing: orders]
            Manual processing
  `
}
