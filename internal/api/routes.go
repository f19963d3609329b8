package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Заказы и управление роботами ограничены по частоте.
	// Сигналы завершения идут мимо лимита: отказ в сигнале до дедлайна
	// превращается в таймаут и выводит исправного робота из пула.
	limited := chain
	if h.rateLimit > 0 {
		limited = Chain(chain, RateLimit(h.rateLimit, h.rateBurst))
	}

	// Orders
	mux.Handle("POST /api/v1/orders", limited(http.HandlerFunc(h.SubmitOrder)))
	mux.Handle("GET /api/v1/orders", chain(http.HandlerFunc(h.ListOrders)))
	mux.Handle("GET /api/v1/orders/{id}", chain(http.HandlerFunc(h.GetOrder)))

	// Completions
	mux.Handle("POST /api/v1/completions", chain(http.HandlerFunc(h.ReportCompletion)))

	// Robots
	mux.Handle("GET /api/v1/robots", chain(http.HandlerFunc(h.ListRobots)))
	mux.Handle("POST /api/v1/robots", limited(http.HandlerFunc(h.RegisterRobot)))
	mux.Handle("GET /api/v1/robots/{name}", chain(http.HandlerFunc(h.GetRobot)))
	mux.Handle("PUT /api/v1/robots/{name}/status", limited(http.HandlerFunc(h.SetRobotStatus)))
}
