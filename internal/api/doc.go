// Package api содержит HTTP API оркестратора.
//
// Структура:
//   - handler.go            — Handler с DI (engine, хранилище заказов, реестр, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery, rate limit)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - order_handler.go      — обработчики для /orders
//   - completion_handler.go — сигналы завершения от роботов по HTTP
//   - robot_handler.go      — обработчики для /robots
//
// API принимает заказы, отдаёт их итоги и позволяет оператору
// регистрировать роботов и возвращать FAULTED роботов в пул.
package api
