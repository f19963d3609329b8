package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrEmptyItem — в заказе не указано, что готовить.
	ErrEmptyItem = errors.New("order item is empty")

	// ErrItemTooLong — название слишком длинное.
	ErrItemTooLong = errors.New("order item is too long")

	// ErrEngineStopped — оркестратор остановлен, заказы не принимаются.
	ErrEngineStopped = errors.New("orchestrator stopped")

	// ErrTimeout — робот не прислал сигнал до дедлайна.
	ErrTimeout = errors.New("no completion signal before deadline")

	// ErrAborted — workflow прерван остановкой или лимитом времени жизни.
	ErrAborted = errors.New("workflow aborted")

	// ErrWorkerFailed — робот сообщил о неудаче.
	ErrWorkerFailed = errors.New("robot reported failure")
)
