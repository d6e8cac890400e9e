package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/types"
)

// State is the per-run status of one flow method.
type State string

const (
	// StatePending means the method is not yet eligible to run.
	StatePending State = "PENDING"
	// StateReady means every predecessor is done and dispatch is imminent.
	StateReady State = "READY"
	// StateRunning means the method's action is executing.
	StateRunning State = "RUNNING"
	// StateDone means the action completed and its result is recorded.
	StateDone State = "DONE"
	// StateFailed means the action raised an error.
	StateFailed State = "FAILED"
)

// MethodResult reports one method's final state after a flow run.
type MethodResult struct {
	Name  string `json:"name"`
	State State  `json:"state"`
	// Skipped marks a method that was permanently blocked by a failed
	// predecessor and never executed.
	Skipped bool   `json:"skipped,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of one flow run.
type Result struct {
	// Output concatenates the sink methods' outputs in declaration order.
	Output  string         `json:"output"`
	Methods []MethodResult `json:"methods"`
}

// runState is the mutable status map for one flow run. All access goes
// through the mutex; the executor is the single writer per method.
type runState struct {
	mu      sync.Mutex
	states  map[string]State
	outputs map[string]string
	errs    map[string]error
}

func newRunState(g *Graph) *runState {
	rs := &runState{
		states:  make(map[string]State, len(g.Methods())),
		outputs: make(map[string]string, len(g.Methods())),
		errs:    make(map[string]error),
	}
	for _, m := range g.Methods() {
		if m.Type == config.MethodStart {
			rs.states[m.Name] = StateReady
		} else {
			rs.states[m.Name] = StatePending
		}
	}
	return rs
}

// promote moves every pending listener whose predecessors are all done to
// READY, then returns the READY set in declaration order. A listener with
// any failed predecessor is left pending forever.
func (rs *runState) promote(g *Graph) []*Method {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var ready []*Method
	for _, m := range g.Methods() {
		switch rs.states[m.Name] {
		case StateReady:
			ready = append(ready, m)
		case StatePending:
			if m.Type != config.MethodListen {
				continue
			}
			blocked := false
			satisfied := true
			for _, pred := range m.ListenTo {
				switch rs.states[pred] {
				case StateFailed:
					blocked = true
				case StateDone:
					// satisfied so far
				default:
					satisfied = false
				}
			}
			if !blocked && satisfied {
				rs.states[m.Name] = StateReady
				ready = append(ready, m)
			}
		}
	}
	return ready
}

// demote returns an undispatched wave to PENDING so its methods report as
// skipped rather than ready.
func (rs *runState) demote(wave []*Method) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, m := range wave {
		rs.states[m.Name] = StatePending
	}
}

func (rs *runState) setRunning(name string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.states[name] = StateRunning
}

func (rs *runState) setDone(name, output string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.states[name] = StateDone
	rs.outputs[name] = output
}

func (rs *runState) setFailed(name string, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.states[name] = StateFailed
	rs.errs[name] = err
}

func (rs *runState) output(name string) (string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out, ok := rs.outputs[name]
	return out, ok
}

func (rs *runState) state(name string) State {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.states[name]
}

// Executor drives a flow graph to completion.
//
// Methods that are simultaneously ready with no ordering constraint run as
// a bounded concurrent wave; the dependency partial order is the only hard
// ordering guarantee, and result concatenation uses declaration order so
// flow output stays deterministic either way.
type Executor struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	maxParallel int
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithMaxParallel bounds how many ready methods run at once. A value of 1
// forces declaration-order sequential execution.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:      zap.NewNop(),
		maxParallel: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "flow_executor"))
	e.tracer = otel.Tracer("crewflow/flow")
	return e
}

// Execute runs the flow with the caller-supplied input. The flow is
// complete when every reachable method is done or permanently blocked.
//
// A method failure blocks its descendants but does not abort independent
// branches; the first failure (in declaration order) becomes the returned
// error, alongside a Result describing every method. Cancellation stops
// dispatching new waves and returns a CANCELLED error; in-flight methods
// finish or fail naturally, and a cancellation arriving after the last
// method completes leaves the run successful.
func (e *Executor) Execute(ctx context.Context, g *Graph, input string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "flow.execute",
		trace.WithAttributes(
			attribute.String("flow.name", g.Name),
			attribute.Int("flow.methods", len(g.Methods())),
		))
	defer span.End()

	e.logger.Info("starting flow execution",
		zap.String("flow", g.Name),
		zap.Int("methods", len(g.Methods())),
	)
	start := time.Now()

	rs := newRunState(g)
	cancelled := false

	for {
		wave := rs.promote(g)
		if len(wave) == 0 {
			break
		}
		// Cancellation only matters while undispatched work remains; a
		// cancel that lands after the final wave completes is not an error.
		if ctx.Err() != nil {
			rs.demote(wave)
			cancelled = true
			break
		}

		var eg errgroup.Group
		eg.SetLimit(e.maxParallel)
		for _, m := range wave {
			m := m
			rs.setRunning(m.Name)
			eg.Go(func() error {
				e.runMethod(ctx, rs, m, input)
				return nil
			})
		}
		_ = eg.Wait()
	}

	result := e.collect(g, rs)
	err := e.flowError(g, rs, cancelled)

	e.logger.Info("flow execution finished",
		zap.String("flow", g.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("failed", err != nil),
	)
	return result, err
}

// runMethod dispatches one ready method and records its outcome.
func (e *Executor) runMethod(ctx context.Context, rs *runState, m *Method, input string) {
	ctx, span := e.tracer.Start(ctx, "flow.method",
		trace.WithAttributes(attribute.String("method.name", m.Name)))
	defer span.End()

	e.logger.Debug("dispatching flow method", zap.String("method", m.Name))

	output, err := e.runAction(ctx, rs, m, input)
	if err != nil {
		e.logger.Error("flow method failed", zap.String("method", m.Name), zap.Error(err))
		rs.setFailed(m.Name, err)
		return
	}
	if m.Output != "" {
		output = m.Output
	}
	rs.setDone(m.Name, output)
	e.logger.Debug("flow method done", zap.String("method", m.Name))
}

// runAction executes the method's tagged action variant.
func (e *Executor) runAction(ctx context.Context, rs *runState, m *Method, input string) (string, error) {
	switch m.Action {
	case config.ActionRunCrew:
		if m.Crew == nil {
			// Pass-through marker method: the static output is the result.
			if m.Output != "" {
				return "", nil
			}
			return "", types.Errorf(types.ErrInternal, "flow method %q has no crew wired", m.Name).
				WithComponent(m.Name)
		}
		res, err := m.Crew.Run(ctx, e.effectiveInput(rs, m, input))
		if err != nil {
			return "", types.Errorf(types.ErrExecution, "crew %q failed", m.Crew.Name).
				WithComponent(m.Name).WithCause(err)
		}
		return res.Raw, nil
	default:
		return "", types.Errorf(types.ErrExecution, "unsupported action %q", m.Action).
			WithComponent(m.Name)
	}
}

// effectiveInput combines the caller-supplied flow input with the recorded
// outputs of the method's predecessors, in listen_to order. Predecessor
// outputs are run-time context; they are never merged back into the
// configuration.
func (e *Executor) effectiveInput(rs *runState, m *Method, input string) string {
	parts := make([]string, 0, len(m.ListenTo)+1)
	if input != "" {
		parts = append(parts, input)
	}
	for _, pred := range m.ListenTo {
		if out, ok := rs.output(pred); ok && out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

// collect builds the per-method report in declaration order. Methods still
// pending at termination were permanently blocked and are reported as
// skipped, not executed.
func (e *Executor) collect(g *Graph, rs *runState) *Result {
	result := &Result{Methods: make([]MethodResult, 0, len(g.Methods()))}

	for _, m := range g.Methods() {
		mr := MethodResult{Name: m.Name, State: rs.state(m.Name)}
		switch mr.State {
		case StateDone:
			mr.Output, _ = rs.output(m.Name)
		case StateFailed:
			mr.Error = rs.errs[m.Name].Error()
		case StatePending:
			mr.Skipped = true
		}
		result.Methods = append(result.Methods, mr)
	}

	var sinkOutputs []string
	for _, sink := range g.Sinks() {
		if rs.state(sink.Name) == StateDone {
			if out, ok := rs.output(sink.Name); ok {
				sinkOutputs = append(sinkOutputs, out)
			}
		}
	}
	result.Output = strings.Join(sinkOutputs, "\n\n")
	return result
}

// flowError derives the overall flow error: cancellation wins, otherwise
// the first failed method in declaration order.
func (e *Executor) flowError(g *Graph, rs *runState, cancelled bool) error {
	if cancelled {
		return types.NewError(types.ErrCancelled, "flow execution cancelled before completion")
	}
	for _, m := range g.Methods() {
		if rs.state(m.Name) == StateFailed {
			return rs.errs[m.Name]
		}
	}
	return nil
}
