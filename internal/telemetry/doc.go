// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//
// Метрики workflow живут в пакете orchestrator и
// экспортируются на /metrics endpoint.
package telemetry
