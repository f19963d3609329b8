package domain

import "fmt"

// WorkerStatus — статус робота в реестре.
//
// Жизненный цикл:
//
//	AVAILABLE → BUSY → AVAILABLE
//	               ↘ FAULTED (до ручного восстановления)
type WorkerStatus string

const (
	// WorkerStatusAvailable — робот свободен и может получить заказ.
	WorkerStatusAvailable WorkerStatus = "AVAILABLE"

	// WorkerStatusBusy — робот захвачен workflow и выполняет заказ.
	WorkerStatusBusy WorkerStatus = "BUSY"

	// WorkerStatusFaulted — робот не ответил вовремя, выведен из пула.
	WorkerStatusFaulted WorkerStatus = "FAULTED"
)

// IsValid проверяет, что статус известен.
func (s WorkerStatus) IsValid() bool {
	switch s {
	case WorkerStatusAvailable, WorkerStatusBusy, WorkerStatusFaulted:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление WorkerStatus.
func (s WorkerStatus) String() string {
	return string(s)
}

// ParseWorkerStatus парсит строку в WorkerStatus.
func ParseWorkerStatus(s string) (WorkerStatus, error) {
	status := WorkerStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown worker status %q", s)
	}
	return status, nil
}

// OrderOutcome — итог заказа.
//
// Жизненный цикл:
//
//	PENDING → SUCCEEDED
//	        ↘ FAILED
type OrderOutcome string

const (
	// OrderOutcomePending — заказ в работе.
	OrderOutcomePending OrderOutcome = "PENDING"

	// OrderOutcomeSucceeded — робот сообщил о выполнении.
	OrderOutcomeSucceeded OrderOutcome = "SUCCEEDED"

	// OrderOutcomeFailed — заказ не выполнен (причина в FailureReason).
	OrderOutcomeFailed OrderOutcome = "FAILED"
)

// IsTerminal возвращает true, если итог финальный.
func (o OrderOutcome) IsTerminal() bool {
	return o == OrderOutcomeSucceeded || o == OrderOutcomeFailed
}

// FailureReason — код причины неудачи заказа.
type FailureReason string

const (
	ReasonNone                  FailureReason = ""
	ReasonNoWorkerAvailable     FailureReason = "NO_WORKER_AVAILABLE"
	ReasonDeliveryError         FailureReason = "DELIVERY_ERROR"
	ReasonTimeout               FailureReason = "TIMEOUT"
	ReasonWorkerReportedFailure FailureReason = "WORKER_REPORTED_FAILURE"
	ReasonUnknownWorker         FailureReason = "UNKNOWN_WORKER"
	ReasonRegistryError         FailureReason = "REGISTRY_ERROR"
	ReasonAborted               FailureReason = "ABORTED"
	ReasonOrphaned              FailureReason = "ORPHANED"
)

// Stage — состояние автомата OrderWorkflow.
//
//	SELECTING → DISPATCHING → AWAITING_COMPLETION → SUCCEEDING → TERMINAL
//	    ↓            ↓                            ↘ FAILING    ↗
//	 TERMINAL     FAILING
type Stage string

const (
	StageSelecting          Stage = "SELECTING"
	StageDispatching        Stage = "DISPATCHING"
	StageAwaitingCompletion Stage = "AWAITING_COMPLETION"
	StageSucceeding         Stage = "SUCCEEDING"
	StageFailing            Stage = "FAILING"
	StageTerminal           Stage = "TERMINAL"
)

// stageTransitions — допустимые переходы автомата.
var stageTransitions = map[Stage][]Stage{
	StageSelecting:          {StageDispatching, StageTerminal},
	StageDispatching:        {StageAwaitingCompletion, StageFailing},
	StageAwaitingCompletion: {StageSucceeding, StageFailing},
	StageSucceeding:         {StageTerminal},
	StageFailing:            {StageTerminal},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
