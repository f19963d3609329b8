package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// MemoryRegistry — реестр в памяти процесса.
//
// Все операции выполняются под одним мьютексом, поэтому
// ClaimAvailable атомарен относительно любых других вызовов.
type MemoryRegistry struct {
	mu      sync.Mutex
	workers map[string]*domain.Worker
	now     func() time.Time
}

// NewMemoryRegistry создаёт пустой реестр.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		workers: make(map[string]*domain.Worker),
		now:     time.Now,
	}
}

// ClaimAvailable захватывает робота, простаивающего дольше всех.
func (r *MemoryRegistry) ClaimAvailable(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var chosen *domain.Worker
	for _, w := range r.workers {
		if !w.IsAvailable() {
			continue
		}
		if chosen == nil || idleLonger(w, chosen) {
			chosen = w
		}
	}

	if chosen == nil {
		return "", ErrNoWorkerAvailable
	}

	chosen.Status = domain.WorkerStatusBusy
	chosen.UpdatedAt = r.now()
	return chosen.Name, nil
}

// SetStatus перезаписывает статус робота.
func (r *MemoryRegistry) SetStatus(_ context.Context, name string, status domain.WorkerStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}

	// Повторная установка того же статуса ничего не меняет
	if w.Status == status {
		return nil
	}

	w.Status = status
	w.UpdatedAt = r.now()
	return nil
}

// Register добавляет робота в статусе AVAILABLE.
func (r *MemoryRegistry) Register(_ context.Context, name string) error {
	if err := domain.ValidateWorkerName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkerName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("%w: %s", ErrWorkerExists, name)
	}

	r.workers[name] = &domain.Worker{
		Name:      name,
		Status:    domain.WorkerStatusAvailable,
		UpdatedAt: r.now(),
	}
	return nil
}

// Get возвращает копию робота.
func (r *MemoryRegistry) Get(_ context.Context, name string) (*domain.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	copied := *w
	return &copied, nil
}

// List возвращает копии всех роботов.
func (r *MemoryRegistry) List(_ context.Context) ([]domain.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// idleLonger — a простаивает дольше b (при равенстве — по имени).
func idleLonger(a, b *domain.Worker) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
	return a.Name < b.Name
}
