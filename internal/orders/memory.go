package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// MemoryStore — хранилище заказов в памяти процесса.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.WorkOrder
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]domain.WorkOrder)}
}

// Create сохраняет копию заказа.
func (s *MemoryStore) Create(_ context.Context, order *domain.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = clone(order)
	return nil
}

// Get возвращает копию заказа.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &order, nil
}

// Update перезаписывает заказ.
func (s *MemoryStore) Update(_ context.Context, order *domain.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; !ok {
		return ErrNotFound
	}
	s.orders[order.ID] = clone(order)
	return nil
}

// List возвращает заказы, новые первыми.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]domain.WorkOrder, error) {
	s.mu.RLock()
	result := make([]domain.WorkOrder, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.Outcome != "" && order.Outcome != filter.Outcome {
			continue
		}
		result = append(result, order)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit := filter.NormalizedLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListStale возвращает старые PENDING заказы, старые первыми.
func (s *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]domain.WorkOrder, error) {
	s.mu.RLock()
	var result []domain.WorkOrder
	for _, order := range s.orders {
		if order.Outcome == domain.OrderOutcomePending && order.CreatedAt.Before(before) {
			result = append(result, order)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func clone(order *domain.WorkOrder) domain.WorkOrder {
	copied := *order
	if order.FinishedAt != nil {
		finished := *order.FinishedAt
		copied.FinishedAt = &finished
	}
	return copied
}
