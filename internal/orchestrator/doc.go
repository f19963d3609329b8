// Package orchestrator ведёт заказы от приёма до финального итога.
//
// Для каждого заказа запускается отдельный workflow:
//
//	SELECTING → DISPATCHING → AWAITING_COMPLETION → SUCCEEDING | FAILING → TERMINAL
//
// Workflow захватывает робота в реестре, отправляет ему команду
// с токеном continuation и приостанавливается до сигнала завершения
// или истечения таймаута. Любой путь заканчивается записью финального
// статуса робота в реестр и итога заказа в хранилище.
//
// Компоненты:
//   - orchestrator.go — Engine: приём заказов, жизненный цикл
//   - workflow.go     — автомат одного заказа
//   - handlers.go     — обработчики сообщений RabbitMQ
//   - sweeper.go      — периодическая очистка осиротевших заказов
//   - metrics.go      — Prometheus метрики
package orchestrator
