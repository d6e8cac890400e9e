package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Pipeline runs one workflow to completion and returns its output.
// The manager treats the pipeline as opaque; cancellation arrives through
// the context.
type Pipeline func(ctx context.Context, workflowID, input string) (string, error)

// Observer receives execution lifecycle events, for metrics.
type Observer interface {
	ExecutionStarted(workflowID string)
	ExecutionFinished(workflowID string, status Status, duration time.Duration)
}

// track is the in-process handle for one live execution.
type track struct {
	cancel context.CancelFunc
	done   chan struct{}

	// discarded is guarded by Manager.mu. A discarded execution must not
	// write its terminal record; the caller asked for the record to go away.
	discarded bool
}

// Manager runs workflows asynchronously and exposes their records.
//
// Submit returns as soon as the pending record is stored; a worker
// goroutine moves the record through PROCESSING to its terminal status.
// Status only ever advances; a terminal record is never rewritten.
type Manager struct {
	store    Store
	pipeline Pipeline
	observer Observer
	logger   *zap.Logger

	mu     sync.Mutex
	live   map[uuid.UUID]*track
	closed bool
	wg     sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithStore overrides the record store. The default keeps records in
// memory.
func WithStore(store Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithObserver attaches a lifecycle observer.
func WithObserver(obs Observer) ManagerOption {
	return func(m *Manager) { m.observer = obs }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager around the given pipeline.
func NewManager(pipeline Pipeline, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    NewMemoryStore(),
		pipeline: pipeline,
		logger:   zap.NewNop(),
		live:     make(map[uuid.UUID]*track),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "execution_manager"))
	return m
}

// Submit accepts a workflow execution and returns its record ID
// immediately. The workflow runs on a detached context so it outlives the
// submission call; use Cancel to stop it.
func (m *Manager) Submit(ctx context.Context, workflowID, input string) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now()
	rec := &Record{
		ID:         id,
		WorkflowID: workflowID,
		Status:     StatusPending,
		Input:      input,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return uuid.Nil, types.NewError(types.ErrInternal, "execution manager is closed").
			WithComponent("execution_manager")
	}
	if err := m.store.Put(ctx, rec); err != nil {
		m.mu.Unlock()
		return uuid.Nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	tr := &track{cancel: cancel, done: make(chan struct{})}
	m.live[id] = tr
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("execution submitted",
		zap.String("id", id.String()),
		zap.String("workflow", workflowID),
	)

	go m.run(runCtx, rec.Clone(), tr)
	return id, nil
}

// run drives one execution to its terminal status.
func (m *Manager) run(ctx context.Context, rec *Record, tr *track) {
	defer m.wg.Done()
	defer close(tr.done)
	defer func() {
		m.mu.Lock()
		delete(m.live, rec.ID)
		m.mu.Unlock()
	}()

	start := time.Now()
	if m.observer != nil {
		m.observer.ExecutionStarted(rec.WorkflowID)
	}

	rec.Status = StatusProcessing
	rec.UpdatedAt = time.Now()
	if err := m.store.Put(ctx, rec); err != nil {
		m.logger.Error("execution status update failed",
			zap.String("id", rec.ID.String()), zap.Error(err))
	}

	output, err := m.pipeline(ctx, rec.WorkflowID, rec.Input)

	rec.UpdatedAt = time.Now()
	if err != nil {
		rec.Status = StatusError
		rec.Error = err.Error()
		m.logger.Error("execution failed",
			zap.String("id", rec.ID.String()),
			zap.String("workflow", rec.WorkflowID),
			zap.Error(err),
		)
	} else {
		rec.Status = StatusCompleted
		rec.Result = output
		m.logger.Info("execution completed",
			zap.String("id", rec.ID.String()),
			zap.String("workflow", rec.WorkflowID),
			zap.Duration("duration", time.Since(start)),
		)
	}

	// The run context may already be cancelled; the terminal record must
	// still land in the store. A discarded execution is the exception: its
	// record was removed on purpose and must stay gone.
	m.mu.Lock()
	discarded := tr.discarded
	m.mu.Unlock()

	if discarded {
		m.logger.Info("execution discarded, dropping terminal record",
			zap.String("id", rec.ID.String()))
	} else if perr := m.store.Put(context.WithoutCancel(ctx), rec); perr != nil {
		m.logger.Error("terminal record store failed",
			zap.String("id", rec.ID.String()), zap.Error(perr))
	}

	if m.observer != nil {
		m.observer.ExecutionFinished(rec.WorkflowID, rec.Status, time.Since(start))
	}
}

// Get returns the current record for the execution.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return m.store.Get(ctx, id)
}

// Cancel stops a running execution. The worker records the cancellation
// as an ERROR terminal status. Cancelling a finished or unknown execution
// is a no-op.
func (m *Manager) Cancel(id uuid.UUID) {
	m.mu.Lock()
	tr, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		m.logger.Info("cancelling execution", zap.String("id", id.String()))
		tr.cancel()
	}
}

// Discard cancels the execution if still running, waits for its worker to
// stop, and deletes its record. Discarding an unknown or finished ID is
// not an error.
func (m *Manager) Discard(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	tr, ok := m.live[id]
	if ok {
		tr.discarded = true
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("discarding execution", zap.String("id", id.String()))
		tr.cancel()
		// The worker skips its terminal store write once the track is
		// marked; draining it here keeps the delete below from racing a
		// store write that was already in flight.
		select {
		case <-tr.done:
		case <-ctx.Done():
			return types.NewError(types.ErrCancelled, "discard interrupted").
				WithComponent("execution_manager").WithCause(ctx.Err())
		}
	}
	return m.store.Delete(ctx, id)
}

// Wait blocks until the execution reaches a terminal status or the
// context is done, then returns the record.
func (m *Manager) Wait(ctx context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	tr, ok := m.live[id]
	m.mu.Unlock()

	if ok {
		select {
		case <-tr.done:
		case <-ctx.Done():
			return nil, types.NewError(types.ErrCancelled, "wait for execution interrupted").
				WithComponent("execution_manager").WithCause(ctx.Err())
		}
	}
	return m.store.Get(ctx, id)
}

// Close stops accepting submissions, cancels live executions, and waits
// for their workers to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, tr := range m.live {
		tr.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("execution manager closed")
}
