// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchanges, queues, bindings и routing keys роботов
//   - publisher.go  — публикация событий и сигналов
//   - command.go    — команды роботам с publisher confirms
//   - consumer.go   — потребление сообщений из очередей
//   - payload.go    — форматы сообщений
//
// Протокол роботов (JSON без конверта):
//   - robots.<name>.order    — команда {order_id, smoothie, task_token}
//   - robots.<name>.success  — сигнал {task_token, success, info}
//
// События (конверт Message):
//   - order.submitted — новый заказ
//   - order.completed — финальный итог заказа
//
// Exchanges:
//   - smoothie.robots — topic, команды и сигналы роботов
//   - smoothie.orders — события заказов
//   - smoothie.dlq    — dead letter queue
package mq
