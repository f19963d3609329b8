package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/orders"
)

// OrderRepo — хранилище заказов в PostgreSQL.
type OrderRepo struct {
	pool *pgxpool.Pool
}

var _ orders.Store = (*OrderRepo)(nil)

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, item, assigned_robot, stage, outcome, reason, detail, created_at, updated_at, finished_at`

// Create создаёт новый заказ.
func (r *OrderRepo) Create(ctx context.Context, order *domain.WorkOrder) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Item,
		nullString(order.AssignedWorker),
		string(order.Stage),
		string(order.Outcome),
		nullString(string(order.Reason)),
		nullString(order.Detail),
		order.CreatedAt,
		order.UpdatedAt,
		order.FinishedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s", ErrAlreadyExists, order.ID)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Get возвращает заказ по ID.
func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WorkOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		return nil, orders.ErrNotFound
	}
	return order, err
}

// Update обновляет заказ.
func (r *OrderRepo) Update(ctx context.Context, order *domain.WorkOrder) error {
	query := `
		UPDATE orders
		SET assigned_robot = $2, stage = $3, outcome = $4, reason = $5,
		    detail = $6, updated_at = $7, finished_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		order.ID,
		nullString(order.AssignedWorker),
		string(order.Stage),
		string(order.Outcome),
		nullString(string(order.Reason)),
		nullString(order.Detail),
		order.UpdatedAt,
		order.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return orders.ErrNotFound
	}
	return nil
}

// List возвращает заказы, новые первыми.
func (r *OrderRepo) List(ctx context.Context, filter orders.Filter) ([]domain.WorkOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR outcome = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Outcome)),
		filter.NormalizedLimit(),
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collectOrders(rows)
}

// ListStale возвращает PENDING заказы старше before.
func (r *OrderRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.WorkOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE outcome = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	return collectOrders(rows)
}

// --- Helpers ---

func collectOrders(rows pgx.Rows) ([]domain.WorkOrder, error) {
	defer rows.Close()

	var result []domain.WorkOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *order)
	}
	return result, rows.Err()
}

// scanOrder сканирует одну строку в WorkOrder.
// pgx.Rows тоже реализует pgx.Row.
func scanOrder(row pgx.Row) (*domain.WorkOrder, error) {
	var order domain.WorkOrder
	var assigned, reason, detail *string

	err := row.Scan(
		&order.ID,
		&order.Item,
		&assigned,
		&order.Stage,
		&order.Outcome,
		&reason,
		&detail,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if assigned != nil {
		order.AssignedWorker = *assigned
	}
	if reason != nil {
		order.Reason = domain.FailureReason(*reason)
	}
	if detail != nil {
		order.Detail = *detail
	}
	return &order, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
