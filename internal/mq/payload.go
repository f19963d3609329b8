package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandPayload — команда роботу.
// Робот обязан вернуть task_token в сигнале завершения.
type CommandPayload struct {
	OrderID   uuid.UUID `json:"order_id"`
	Smoothie  string    `json:"smoothie"`
	TaskToken string    `json:"task_token"`
}

// CompletionPayload — сигнал завершения от робота.
type CompletionPayload struct {
	TaskToken string `json:"task_token"`

	// Success — отсутствие поля означает успех.
	Success *bool `json:"success,omitempty"`

	Info string `json:"info,omitempty"`
}

// Succeeded возвращает итог с учётом значения по умолчанию.
func (p CompletionPayload) Succeeded() bool {
	return p.Success == nil || *p.Success
}

// DecodeCommand разбирает команду роботу.
func DecodeCommand(body []byte) (CommandPayload, error) {
	var p CommandPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.TaskToken == "" {
		return p, fmt.Errorf("%w: missing task_token", ErrInvalidPayload)
	}
	return p, nil
}

// DecodeCompletion разбирает сигнал завершения.
func DecodeCompletion(body []byte) (CompletionPayload, error) {
	var p CompletionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.TaskToken == "" {
		return p, fmt.Errorf("%w: missing task_token", ErrInvalidPayload)
	}
	return p, nil
}

// OrderSubmittedPayload — заказ, пришедший через очередь.
type OrderSubmittedPayload struct {
	Item string `json:"item"`
}

// OrderCompletedPayload — уведомление о финальном итоге заказа.
type OrderCompletedPayload struct {
	OrderID    uuid.UUID `json:"order_id"`
	Item       string    `json:"item"`
	Robot      string    `json:"robot,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
