package execution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	store, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	rec := &Record{
		ID:         uuid.New(),
		WorkflowID: "wf-1",
		Status:     StatusPending,
		Input:      "topic",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "topic", got.Input)

	// Put replaces the whole record.
	rec.Status = StatusCompleted
	rec.Result = "done"
	require.NoError(t, store.Put(ctx, rec))

	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
}

func TestRedisStore_GetMissing(t *testing.T) {
	store := newTestRedisStore(t)

	_, err := store.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRedisStore_Delete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	rec := &Record{ID: uuid.New(), WorkflowID: "wf-1", Status: StatusPending}
	require.NoError(t, store.Put(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err := store.Get(ctx, rec.ID)
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	// Deleting again is fine.
	require.NoError(t, store.Delete(ctx, rec.ID))
}

func TestRedisStore_BacksManager(t *testing.T) {
	store := newTestRedisStore(t)

	m := NewManager(func(_ context.Context, workflowID, _ string) (string, error) {
		return "result of " + workflowID, nil
	}, WithStore(store))
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)

	rec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "result of wf-1", rec.Result)
}
