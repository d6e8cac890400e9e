package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewflow/types"
)

// recordingObserver captures lifecycle events.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []Status
}

func (o *recordingObserver) ExecutionStarted(workflowID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, workflowID)
}

func (o *recordingObserver) ExecutionFinished(_ string, status Status, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func TestManager_SubmitCompletes(t *testing.T) {
	obs := &recordingObserver{}
	m := NewManager(func(_ context.Context, workflowID, input string) (string, error) {
		return "output for " + workflowID + "/" + input, nil
	}, WithObserver(obs))
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "topic")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	rec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "output for wf-1/topic", rec.Result)
	assert.Equal(t, "wf-1", rec.WorkflowID)
	assert.Empty(t, rec.Error)
	assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"wf-1"}, obs.started)
	assert.Equal(t, []Status{StatusCompleted}, obs.finished)
}

func TestManager_SubmitReturnsBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(func(_ context.Context, _, _ string) (string, error) {
		<-release
		return "done", nil
	})
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)

	// The record is visible and non-terminal while the pipeline blocks.
	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, rec.Status.Terminal())

	close(release)
	rec, err = m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestManager_PipelineFailure(t *testing.T) {
	m := NewManager(func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("tool crystal_ball is not available")
	})
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)

	rec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)
	assert.Contains(t, rec.Error, "crystal_ball")
	assert.Empty(t, rec.Result)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)

	m.Cancel(id)
	rec, err := m.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)
	assert.Contains(t, rec.Error, "context canceled")

	// Cancelling a finished execution is a no-op.
	m.Cancel(id)
	m.Cancel(uuid.New())
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(func(_ context.Context, _, _ string) (string, error) { return "", nil })
	defer m.Close()

	_, err := m.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestManager_Discard(t *testing.T) {
	m := NewManager(func(_ context.Context, _, _ string) (string, error) { return "ok", nil })
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)
	_, err = m.Wait(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, m.Discard(context.Background(), id))
	_, err = m.Get(context.Background(), id)
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	// Discarding again, or discarding an unknown ID, stays quiet.
	require.NoError(t, m.Discard(context.Background(), id))
	require.NoError(t, m.Discard(context.Background(), uuid.New()))
}

func TestManager_DiscardWhileRunning(t *testing.T) {
	started := make(chan struct{})
	m := NewManager(func(ctx context.Context, _, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	defer m.Close()

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)
	<-started

	// Discard drains the worker, so the worker's terminal write must not
	// resurrect the deleted record afterwards.
	require.NoError(t, m.Discard(context.Background(), id))

	_, err = m.Get(context.Background(), id)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	// Still gone once the manager has fully settled.
	require.NoError(t, m.Discard(context.Background(), id))
	_, err = m.Get(context.Background(), id)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestManager_CloseRejectsNewSubmissions(t *testing.T) {
	m := NewManager(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	id, err := m.Submit(context.Background(), "wf-1", "")
	require.NoError(t, err)

	m.Close()

	// Close cancelled the live execution and waited for its worker.
	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)

	_, err = m.Submit(context.Background(), "wf-2", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ConcurrentSubmissions(t *testing.T) {
	m := NewManager(func(_ context.Context, workflowID, _ string) (string, error) {
		return workflowID, nil
	})
	defer m.Close()

	ids := make([]uuid.UUID, 0, 10)
	for i := 0; i < 10; i++ {
		id, err := m.Submit(context.Background(), "wf", "")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		rec, err := m.Wait(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, rec.Status)
	}
}
