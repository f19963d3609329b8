package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/orchestrator"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
)

// SubmitOrder принимает заказ и сразу возвращает его ID.
// POST /api/v1/orders
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	id, err := h.engine.Submit(r.Context(), req.Item)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyItem), errors.Is(err, orchestrator.ErrItemTooLong):
		BadRequest(w, err.Error())
		return
	case errors.Is(err, orchestrator.ErrEngineStopped):
		Unavailable(w, err.Error())
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+id.String())
	Accepted(w, OrderAcceptedResponse{ID: id, Outcome: domain.OrderOutcomePending})
}

// GetOrder возвращает заказ по ID.
// GET /api/v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid order id")
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "order not found") {
		return
	}

	Success(w, OrderFromDomain(*order))
}

// ListOrders возвращает последние заказы.
// GET /api/v1/orders?outcome=...&limit=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := orders.Filter{}

	if outcome := r.URL.Query().Get("outcome"); outcome != "" {
		filter.Outcome = domain.OrderOutcome(outcome)
		switch filter.Outcome {
		case domain.OrderOutcomePending, domain.OrderOutcomeSucceeded, domain.OrderOutcomeFailed:
		default:
			BadRequest(w, "invalid outcome")
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	list, err := h.orders.List(r.Context(), filter)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]OrderResponse, len(list))
	for i, order := range list {
		result[i] = OrderFromDomain(order)
	}

	List(w, result, len(result))
}
