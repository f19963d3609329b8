package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS robots (
	name       TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS robots_status_idx ON robots (status, updated_at);
`

// SQLiteRegistry — реестр во встраиваемой SQLite.
//
// Захват выполняется одним UPDATE ... RETURNING, что атомарно в SQLite.
// updated_at хранится в наносекундах Unix.
type SQLiteRegistry struct {
	db *sql.DB
}

// OpenSQLite открывает (и при необходимости создаёт) файл БД.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRegistry, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один писатель — SQLite всё равно сериализует запись
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Close закрывает БД.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// ClaimAvailable захватывает робота, простаивающего дольше всех.
func (r *SQLiteRegistry) ClaimAvailable(ctx context.Context) (string, error) {
	query := `
		UPDATE robots SET status = ?, updated_at = ?
		WHERE name = (
			SELECT name FROM robots WHERE status = ?
			ORDER BY updated_at, name
			LIMIT 1
		)
		RETURNING name
	`
	var name string
	err := r.db.QueryRowContext(ctx, query,
		string(domain.WorkerStatusBusy),
		time.Now().UnixNano(),
		string(domain.WorkerStatusAvailable),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoWorkerAvailable
	}
	if err != nil {
		return "", fmt.Errorf("claim worker: %w", err)
	}
	return name, nil
}

// SetStatus перезаписывает статус робота.
func (r *SQLiteRegistry) SetStatus(ctx context.Context, name string, status domain.WorkerStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	// updated_at меняется только при реальной смене статуса
	result, err := r.db.ExecContext(ctx, `
		UPDATE robots
		SET updated_at = CASE WHEN status = ? THEN updated_at ELSE ? END,
		    status = ?
		WHERE name = ?
	`, string(status), time.Now().UnixNano(), string(status), name)
	if err != nil {
		return fmt.Errorf("set worker status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return nil
}

// Register добавляет робота в статусе AVAILABLE.
func (r *SQLiteRegistry) Register(ctx context.Context, name string) error {
	if err := domain.ValidateWorkerName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkerName, err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO robots (name, status, updated_at) VALUES (?, ?, ?)`,
		name, string(domain.WorkerStatusAvailable), time.Now().UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrWorkerExists, name)
		}
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

// Get возвращает робота по имени.
func (r *SQLiteRegistry) Get(ctx context.Context, name string) (*domain.Worker, error) {
	var w domain.Worker
	var status string
	var updatedAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT name, status, updated_at FROM robots WHERE name = ?`, name,
	).Scan(&w.Name, &status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}

	w.Status = domain.WorkerStatus(status)
	w.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &w, nil
}

// List возвращает всех роботов.
func (r *SQLiteRegistry) List(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, status, updated_at FROM robots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var result []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var status string
		var updatedAt int64
		if err := rows.Scan(&w.Name, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Status = domain.WorkerStatus(status)
		w.UpdatedAt = time.Unix(0, updatedAt).UTC()
		result = append(result, w)
	}
	return result, rows.Err()
}
