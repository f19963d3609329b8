package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

// DefaultRedisKey — hash с роботами (field = имя, value = статус).
const DefaultRedisKey = "smoothie:robots"

// claimScript выполняется атомарно на стороне Redis:
// первый найденный AVAILABLE переводится в BUSY.
var claimScript = redis.NewScript(`
local robots = redis.call('HGETALL', KEYS[1])
for i = 1, #robots, 2 do
  if robots[i + 1] == ARGV[1] then
    redis.call('HSET', KEYS[1], robots[i], ARGV[2])
    return robots[i]
  end
end
return false
`)

// setStatusScript — HSET только для существующего поля.
var setStatusScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisRegistry — реестр в Redis hash.
//
// Выбор среди нескольких AVAILABLE произвольный (порядок HGETALL),
// атомарность обеспечивает однопоточное выполнение Lua-скрипта.
// UpdatedAt не хранится.
type RedisRegistry struct {
	client redis.UniversalClient
	key    string
}

// NewRedisRegistry создаёт реестр поверх клиента Redis.
func NewRedisRegistry(client redis.UniversalClient, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRegistry{client: client, key: key}
}

// ClaimAvailable захватывает AVAILABLE робота.
func (r *RedisRegistry) ClaimAvailable(ctx context.Context) (string, error) {
	name, err := claimScript.Run(ctx, r.client, []string{r.key},
		string(domain.WorkerStatusAvailable),
		string(domain.WorkerStatusBusy),
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoWorkerAvailable
	}
	if err != nil {
		return "", fmt.Errorf("claim worker: %w", err)
	}
	return name, nil
}

// SetStatus перезаписывает статус робота.
func (r *RedisRegistry) SetStatus(ctx context.Context, name string, status domain.WorkerStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	updated, err := setStatusScript.Run(ctx, r.client, []string{r.key}, name, string(status)).Int()
	if err != nil {
		return fmt.Errorf("set worker status: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	return nil
}

// Register добавляет робота через HSETNX.
func (r *RedisRegistry) Register(ctx context.Context, name string) error {
	if err := domain.ValidateWorkerName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkerName, err)
	}

	created, err := r.client.HSetNX(ctx, r.key, name, string(domain.WorkerStatusAvailable)).Result()
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrWorkerExists, name)
	}
	return nil
}

// Get возвращает робота по имени.
func (r *RedisRegistry) Get(ctx context.Context, name string) (*domain.Worker, error) {
	status, err := r.client.HGet(ctx, r.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return &domain.Worker{Name: name, Status: domain.WorkerStatus(status)}, nil
}

// List возвращает всех роботов.
func (r *RedisRegistry) List(ctx context.Context) ([]domain.Worker, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	result := make([]domain.Worker, 0, len(all))
	for name, status := range all {
		result = append(result, domain.Worker{Name: name, Status: domain.WorkerStatus(status)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
