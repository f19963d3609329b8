// Package registry хранит реестр роботов: имя → статус.
//
// Главная операция — ClaimAvailable: атомарно находит AVAILABLE робота,
// переводит его в BUSY и возвращает имя. Два параллельных вызова никогда
// не вернут одного и того же робота — это единственная точка сериализации
// между независимыми workflow.
//
// Реализации:
//   - MemoryRegistry — в памяти процесса (тесты, single-node)
//   - RedisRegistry  — Redis hash + Lua-скрипты
//   - SQLiteRegistry — встраиваемая БД
//   - repo.RobotRepo — PostgreSQL (FOR UPDATE SKIP LOCKED)
package registry

import (
	"context"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// Registry — контракт реестра роботов.
type Registry interface {
	// ClaimAvailable атомарно захватывает одного AVAILABLE робота (→ BUSY).
	// Возвращает ErrNoWorkerAvailable, если свободных нет.
	ClaimAvailable(ctx context.Context) (string, error)

	// SetStatus безусловно перезаписывает статус.
	// Возвращает ErrUnknownWorker, если робота нет.
	SetStatus(ctx context.Context, name string, status domain.WorkerStatus) error

	// Register добавляет нового робота в статусе AVAILABLE.
	// Возвращает ErrWorkerExists, если робот уже есть.
	Register(ctx context.Context, name string) error

	// Get возвращает робота по имени.
	Get(ctx context.Context, name string) (*domain.Worker, error)

	// List возвращает всех роботов, отсортированных по имени.
	List(ctx context.Context) ([]domain.Worker, error)
}
