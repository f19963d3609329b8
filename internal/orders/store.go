// Package orders хранит заказы и их итоги.
//
// Заказ изменяет только его собственный workflow; остальные
// компоненты (API, sweeper) читают заказы или завершают осиротевшие.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// ErrNotFound — заказ не найден.
var ErrNotFound = errors.New("order not found")

const (
	// DefaultListLimit — лимит List, если не указан.
	DefaultListLimit = 50

	// MaxListLimit — верхняя граница лимита.
	MaxListLimit = 500
)

// Filter — параметры выборки заказов.
type Filter struct {
	// Outcome — пустое значение означает любой итог.
	Outcome domain.OrderOutcome
	Limit   int
}

// NormalizedLimit возвращает лимит в допустимых границах.
func (f Filter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store — хранилище заказов.
type Store interface {
	// Create сохраняет новый заказ.
	Create(ctx context.Context, order *domain.WorkOrder) error

	// Get возвращает заказ по ID или ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkOrder, error)

	// Update перезаписывает заказ целиком.
	Update(ctx context.Context, order *domain.WorkOrder) error

	// List возвращает заказы, новые первыми.
	List(ctx context.Context, filter Filter) ([]domain.WorkOrder, error)

	// ListStale возвращает PENDING заказы, созданные раньше before.
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.WorkOrder, error)
}
