package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/smoothie-dispatch/internal/domain"
)

func newOrder(item string, createdAt time.Time) *domain.WorkOrder {
	order := domain.NewWorkOrder(item)
	order.CreatedAt = createdAt
	order.UpdatedAt = createdAt
	return order
}

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	order := domain.NewWorkOrder("mango-banana")
	require.NoError(t, s.Create(ctx, order))
	assert.Error(t, s.Create(ctx, order))

	got, err := s.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "mango-banana", got.Item)
	assert.Equal(t, domain.OrderOutcomePending, got.Outcome)

	// Get отдаёт копию
	got.Item = "changed"
	again, err := s.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "mango-banana", again.Item)

	order.MarkSucceeded("ready")
	require.NoError(t, s.Update(ctx, order))
	got, err = s.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOutcomeSucceeded, got.Outcome)
	require.NotNil(t, got.FinishedAt)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, domain.NewWorkOrder("x")), ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	oldest := newOrder("a", base)
	middle := newOrder("b", base.Add(time.Minute))
	newest := newOrder("c", base.Add(2*time.Minute))
	newest.MarkFailed(domain.ReasonTimeout, "")
	for _, o := range []*domain.WorkOrder{oldest, middle, newest} {
		require.NoError(t, s.Create(ctx, o))
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Item)
	assert.Equal(t, "a", all[2].Item)

	pending, err := s.List(ctx, Filter{Outcome: domain.OrderOutcomePending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].Item)
}

func TestMemoryStore_ListStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	stale := newOrder("stale", now.Add(-time.Hour))
	fresh := newOrder("fresh", now)
	done := newOrder("done", now.Add(-2*time.Hour))
	done.MarkSucceeded("")
	for _, o := range []*domain.WorkOrder{stale, fresh, done} {
		require.NoError(t, s.Create(ctx, o))
	}

	result, err := s.ListStale(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, stale.ID, result[0].ID)
}

func TestFilter_NormalizedLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, Filter{}.NormalizedLimit())
	assert.Equal(t, 10, Filter{Limit: 10}.NormalizedLimit())
	assert.Equal(t, MaxListLimit, Filter{Limit: 10000}.NormalizedLimit())
}
