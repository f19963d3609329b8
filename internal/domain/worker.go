package domain

import (
	"fmt"
	"regexp"
	"time"
)

// workerNamePattern — имя робота используется как сегмент routing key,
// поэтому точки и wildcard-символы запрещены.
var workerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Worker — робот, способный выполнить один заказ за раз.
//
// Роботы регистрируются вне оркестратора (fleet-файл, API).
// Оркестратор только меняет их статус и никогда не удаляет.
type Worker struct {
	// Name — уникальное имя робота.
	Name string `json:"name"`

	// Status — текущий статус.
	Status WorkerStatus `json:"status"`

	// UpdatedAt — время последней смены статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateWorkerName проверяет имя робота.
func ValidateWorkerName(name string) error {
	if !workerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid worker name %q: expected %s", name, workerNamePattern.String())
	}
	return nil
}

// IsAvailable возвращает true, если робота можно захватить.
func (w *Worker) IsAvailable() bool {
	return w.Status == WorkerStatusAvailable
}
