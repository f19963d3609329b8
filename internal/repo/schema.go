package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы реестра роботов и заказов.
const schema = `
CREATE TABLE IF NOT EXISTS robots (
	name       TEXT PRIMARY KEY,
	status     TEXT NOT NULL CHECK (status IN ('AVAILABLE', 'BUSY', 'FAULTED')),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS robots_available_idx
	ON robots (updated_at, name) WHERE status = 'AVAILABLE';

CREATE TABLE IF NOT EXISTS orders (
	id             UUID PRIMARY KEY,
	item           TEXT NOT NULL,
	assigned_robot TEXT,
	stage          TEXT NOT NULL,
	outcome        TEXT NOT NULL CHECK (outcome IN ('PENDING', 'SUCCEEDED', 'FAILED')),
	reason         TEXT,
	detail         TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS orders_created_idx ON orders (created_at DESC);
CREATE INDEX IF NOT EXISTS orders_pending_idx ON orders (created_at) WHERE outcome = 'PENDING';
`

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
