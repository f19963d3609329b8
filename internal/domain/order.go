package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkOrder — заказ на приготовление одного смузи.
//
// Создаётся при поступлении запроса, изменяется только своим
// OrderWorkflow и становится неизменным, когда Outcome уходит из PENDING.
type WorkOrder struct {
	// ID — уникальный идентификатор заказа.
	ID uuid.UUID `json:"id"`

	// Item — что приготовить (например, "mango-banana").
	Item string `json:"item"`

	// AssignedWorker — имя захваченного робота (пусто до захвата).
	AssignedWorker string `json:"assigned_worker,omitempty"`

	// Stage — текущее состояние автомата.
	Stage Stage `json:"stage"`

	// Outcome — итог заказа.
	Outcome OrderOutcome `json:"outcome"`

	// Reason — код причины неудачи.
	Reason FailureReason `json:"reason,omitempty"`

	// Detail — человекочитаемые подробности (ошибка доставки, info от робота).
	Detail string `json:"detail,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewWorkOrder создаёт заказ в статусе PENDING.
func NewWorkOrder(item string) *WorkOrder {
	now := time.Now().UTC()
	return &WorkOrder{
		ID:        uuid.New(),
		Item:      item,
		Stage:     StageSelecting,
		Outcome:   OrderOutcomePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFinished возвращает true, если заказ завершён.
func (o *WorkOrder) IsFinished() bool {
	return o.Outcome.IsTerminal()
}

// Duration возвращает время от создания до завершения.
func (o *WorkOrder) Duration() time.Duration {
	if o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(o.CreatedAt)
}

// MarkStage фиксирует переход автомата.
func (o *WorkOrder) MarkStage(stage Stage) {
	o.Stage = stage
	o.UpdatedAt = time.Now().UTC()
}

// MarkAssigned запоминает захваченного робота.
func (o *WorkOrder) MarkAssigned(worker string) {
	o.AssignedWorker = worker
	o.UpdatedAt = time.Now().UTC()
}

// MarkSucceeded переводит заказ в SUCCEEDED.
func (o *WorkOrder) MarkSucceeded(detail string) {
	o.finish(OrderOutcomeSucceeded, ReasonNone, detail)
}

// MarkFailed переводит заказ в FAILED с причиной.
func (o *WorkOrder) MarkFailed(reason FailureReason, detail string) {
	o.finish(OrderOutcomeFailed, reason, detail)
}

func (o *WorkOrder) finish(outcome OrderOutcome, reason FailureReason, detail string) {
	now := time.Now().UTC()
	o.Stage = StageTerminal
	o.Outcome = outcome
	o.Reason = reason
	o.Detail = detail
	o.UpdatedAt = now
	o.FinishedAt = &now
}
