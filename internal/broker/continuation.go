package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Result — сигнал завершения от робота.
type Result struct {
	Success bool
	Info    string
}

// Outcome — то, чем будится workflow.
type Outcome struct {
	Result

	// TimedOut — дедлайн истёк раньше сигнала, Result пустой.
	TimedOut bool
}

// Continuation — ожидающий workflow.
//
// Канал done буферизован на одно значение: тот, кто потребил
// continuation, отправляет в него без блокировки.
type Continuation struct {
	Token    string
	OrderID  uuid.UUID
	Deadline time.Time

	done  chan Outcome
	timer *time.Timer
}

// Done возвращает канал, в который придёт ровно один Outcome.
// Для отменённой через Cancel continuation канал никогда не получит значения.
func (c *Continuation) Done() <-chan Outcome {
	return c.done
}

// Wait блокируется до Outcome или отмены ctx.
func (c *Continuation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-c.done:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
