package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
	"github.com/shaiso/smoothie-dispatch/internal/registry"
)

// RobotRepo — реестр роботов в PostgreSQL.
//
// Реализует registry.Registry. Захват идёт через
// FOR UPDATE SKIP LOCKED, поэтому несколько оркестраторов
// не получат одного и того же робота.
type RobotRepo struct {
	pool *pgxpool.Pool
}

var _ registry.Registry = (*RobotRepo)(nil)

// NewRobotRepo создаёт новый RobotRepo.
func NewRobotRepo(pool *pgxpool.Pool) *RobotRepo {
	return &RobotRepo{pool: pool}
}

// ClaimAvailable захватывает робота, простаивающего дольше всех.
func (r *RobotRepo) ClaimAvailable(ctx context.Context) (string, error) {
	query := `
		UPDATE robots SET status = 'BUSY', updated_at = now()
		WHERE name = (
			SELECT name FROM robots
			WHERE status = 'AVAILABLE'
			ORDER BY updated_at, name
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING name
	`
	var name string
	err := r.pool.QueryRow(ctx, query).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", registry.ErrNoWorkerAvailable
	}
	if err != nil {
		return "", fmt.Errorf("claim robot: %w", err)
	}
	return name, nil
}

// SetStatus перезаписывает статус робота.
func (r *RobotRepo) SetStatus(ctx context.Context, name string, status domain.WorkerStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", registry.ErrInvalidStatus, status)
	}

	// updated_at меняется только при реальной смене статуса
	query := `
		UPDATE robots
		SET updated_at = CASE WHEN status = $2 THEN updated_at ELSE now() END,
		    status = $2
		WHERE name = $1
	`
	result, err := r.pool.Exec(ctx, query, name, string(status))
	if err != nil {
		return fmt.Errorf("set robot status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", registry.ErrUnknownWorker, name)
	}
	return nil
}

// Register добавляет робота в статусе AVAILABLE.
func (r *RobotRepo) Register(ctx context.Context, name string) error {
	if err := domain.ValidateWorkerName(name); err != nil {
		return fmt.Errorf("%w: %v", registry.ErrInvalidWorkerName, err)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO robots (name, status, updated_at) VALUES ($1, 'AVAILABLE', now())`,
		name,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", registry.ErrWorkerExists, name)
	}
	if err != nil {
		return fmt.Errorf("insert robot: %w", err)
	}
	return nil
}

// Get возвращает робота по имени.
func (r *RobotRepo) Get(ctx context.Context, name string) (*domain.Worker, error) {
	var w domain.Worker
	err := r.pool.QueryRow(ctx,
		`SELECT name, status, updated_at FROM robots WHERE name = $1`, name,
	).Scan(&w.Name, &w.Status, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownWorker, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get robot: %w", err)
	}
	return &w, nil
}

// List возвращает всех роботов.
func (r *RobotRepo) List(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, status, updated_at FROM robots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	defer rows.Close()

	var workers []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.Name, &w.Status, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan robot: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}
