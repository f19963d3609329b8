package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// Order DTOs

// SubmitOrderRequest — запрос на заказ смузи.
type SubmitOrderRequest struct {
	Item string `json:"item"`
}

// OrderAcceptedResponse — заказ принят, итог будет позже.
type OrderAcceptedResponse struct {
	ID      uuid.UUID           `json:"id"`
	Outcome domain.OrderOutcome `json:"outcome"`
}

// OrderResponse — ответ с заказом.
type OrderResponse struct {
	ID         uuid.UUID            `json:"id"`
	Item       string               `json:"item"`
	Robot      string               `json:"robot,omitempty"`
	Stage      domain.Stage         `json:"stage"`
	Outcome    domain.OrderOutcome  `json:"outcome"`
	Reason     domain.FailureReason `json:"reason,omitempty"`
	Detail     string               `json:"detail,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	DurationMs *int64               `json:"duration_ms,omitempty"`
}

// OrderFromDomain конвертирует domain.WorkOrder в OrderResponse.
func OrderFromDomain(o domain.WorkOrder) OrderResponse {
	resp := OrderResponse{
		ID:         o.ID,
		Item:       o.Item,
		Robot:      o.AssignedWorker,
		Stage:      o.Stage,
		Outcome:    o.Outcome,
		Reason:     o.Reason,
		Detail:     o.Detail,
		CreatedAt:  o.CreatedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.FinishedAt != nil {
		ms := o.Duration().Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

// Completion DTOs

// CompletionRequest — сигнал завершения от робота.
// Отсутствие success означает успех.
type CompletionRequest struct {
	TaskToken string `json:"task_token"`
	Success   *bool  `json:"success,omitempty"`
	Info      string `json:"info,omitempty"`
}

// CompletionResponse — результат приёма сигнала.
// Resolved=false — токен неизвестен или уже потреблён.
type CompletionResponse struct {
	Resolved bool `json:"resolved"`
}

// Robot DTOs

// RegisterRobotRequest — запрос на регистрацию робота.
type RegisterRobotRequest struct {
	Name string `json:"name"`
}

// SetRobotStatusRequest — запрос на смену статуса робота.
type SetRobotStatusRequest struct {
	Status domain.WorkerStatus `json:"status"`
}

// RobotResponse — ответ с роботом.
type RobotResponse struct {
	Name      string              `json:"name"`
	Status    domain.WorkerStatus `json:"status"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// RobotFromDomain конвертирует domain.Worker в RobotResponse.
func RobotFromDomain(w domain.Worker) RobotResponse {
	return RobotResponse{
		Name:      w.Name,
		Status:    w.Status,
		UpdatedAt: w.UpdatedAt,
	}
}
