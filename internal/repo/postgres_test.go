//go:build integration

package repo

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
)

// Интеграционные тесты PostgreSQL:
//
//	SMOOTHIE_TEST_DB_URL=postgresql://... go test -tags integration ./internal/repo/...
//
// testPool подключается к отдельной тестовой БД.
// Таблицы очищаются, поэтому рабочий DB_URL здесь не используется.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("SMOOTHIE_TEST_DB_URL")
	if dsn == "" {
		t.Skip("SMOOTHIE_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE robots, orders`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestRobotRepo_ClaimAndRelease(t *testing.T) {
	repo := NewRobotRepo(testPool(t))
	ctx := context.Background()

	if _, err := repo.ClaimAvailable(ctx); !errors.Is(err, registry.ErrNoWorkerAvailable) {
		t.Fatalf("empty registry: expected ErrNoWorkerAvailable, got %v", err)
	}

	if err := repo.Register(ctx, "robot-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := repo.Register(ctx, "robot-1"); !errors.Is(err, registry.ErrWorkerExists) {
		t.Errorf("duplicate: expected ErrWorkerExists, got %v", err)
	}

	name, err := repo.ClaimAvailable(ctx)
	if err != nil {
		t.Fatalf("ClaimAvailable: %v", err)
	}
	if name != "robot-1" {
		t.Errorf("claimed %q, want robot-1", name)
	}
	if _, err := repo.ClaimAvailable(ctx); !errors.Is(err, registry.ErrNoWorkerAvailable) {
		t.Errorf("busy robot must not be claimed twice, got %v", err)
	}

	if err := repo.SetStatus(ctx, name, domain.WorkerStatusFaulted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	w, err := repo.Get(ctx, name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.Status != domain.WorkerStatusFaulted {
		t.Errorf("status = %s, want FAULTED", w.Status)
	}

	if err := repo.SetStatus(ctx, "robot-gone", domain.WorkerStatusAvailable); !errors.Is(err, registry.ErrUnknownWorker) {
		t.Errorf("unknown robot: expected ErrUnknownWorker, got %v", err)
	}
}

func TestRobotRepo_ConcurrentClaims(t *testing.T) {
	repo := NewRobotRepo(testPool(t))
	ctx := context.Background()

	for _, name := range []string{"robot-1", "robot-2", "robot-3"} {
		if err := repo.Register(ctx, name); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		misses  int
		wg      sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := repo.ClaimAvailable(ctx)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, registry.ErrNoWorkerAvailable) {
				misses++
				return
			}
			if err != nil {
				t.Errorf("ClaimAvailable: %v", err)
				return
			}
			claimed[name]++
		}()
	}
	wg.Wait()

	// Под READ COMMITTED захват может промахнуться при свободном роботе,
	// но выдать одного робота дважды не может.
	if len(claimed) == 0 || len(claimed) > 3 || len(claimed)+misses != 10 {
		t.Fatalf("claimed %v, misses %d", claimed, misses)
	}
	for name, n := range claimed {
		if n != 1 {
			t.Errorf("robot %s claimed %d times", name, n)
		}
	}
}

func TestOrderRepo_Lifecycle(t *testing.T) {
	repo := NewOrderRepo(testPool(t))
	ctx := context.Background()

	order := domain.NewWorkOrder("mango")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	order.MarkAssigned("robot-1")
	order.MarkStage(domain.StageAwaitingCompletion)
	if err := repo.Update(ctx, order); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stale, err := repo.ListStale(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != order.ID {
		t.Errorf("ListStale = %v, want the pending order", stale)
	}

	order.MarkSucceeded("mango ready")
	if err := repo.Update(ctx, order); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcome != domain.OrderOutcomeSucceeded || got.AssignedWorker != "robot-1" || got.Detail != "mango ready" {
		t.Errorf("unexpected order: %+v", got)
	}

	list, err := repo.List(ctx, orders.Filter{Outcome: domain.OrderOutcomeFailed})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("failed filter returned %d orders", len(list))
	}

	missing := domain.NewWorkOrder("kiwi")
	if _, err := repo.Get(ctx, missing.ID); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("expected orders.ErrNotFound, got %v", err)
	}
	if err := repo.Update(ctx, missing); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("update missing: expected orders.ErrNotFound, got %v", err)
	}
}
