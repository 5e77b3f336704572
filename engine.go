package weave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultConcurrency bounds how many ready nodes execute at once. A ready
// set larger than this is drained in waves rather than fanned out unbounded.
const DefaultConcurrency = 5

// FailureAction is the unattended response to a failed node.
type FailureAction int

const (
	// FailAsk defers to the steering handler (or aborts when there is none).
	FailAsk FailureAction = iota
	// FailRetry re-queues the node up to MaxRetries times.
	FailRetry
	// FailSkip marks the node skipped and lets the rest of the graph run.
	FailSkip
	// FailAbort ends the run on the first failure.
	FailAbort
)

// FailurePolicy configures unattended failure handling.
type FailurePolicy struct {
	Action     FailureAction
	MaxRetries int
}

// Signal is a steering handler's verdict on a paused run.
type Signal int

const (
	// SignalResume returns control to the scheduler.
	SignalResume Signal = iota
	// SignalAbort ends the run.
	SignalAbort
)

// PauseHandler is invoked with the scheduler suspended, whenever execution
// reaches a checkpoint or a failure with no unattended policy. The handler
// may mutate engine state through the engine's steering methods; no other
// goroutine touches state while a handler runs.
type PauseHandler interface {
	OnCheckpoint(ctx context.Context, eng *Engine, nodeID int) (Signal, error)
	OnFailure(ctx context.Context, eng *Engine, nodeID int) (Signal, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency sets the parallel batch ceiling.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithFailurePolicy sets the unattended failure policy.
func WithFailurePolicy(p FailurePolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithHandler installs the steering subsystem.
func WithHandler(h PauseHandler) EngineOption {
	return func(e *Engine) {
		e.handler = h
	}
}

// WithRenderer installs a renderer notified after every state transition.
func WithRenderer(r Renderer) EngineOption {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithNodeTimeout sets a default per-node invocation deadline.
func WithNodeTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.nodeTimeout = d
	}
}

// WithLogger overrides the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine walks a validated graph, respecting dependencies and conditions,
// invoking the step backend and capturing outputs. One logical scheduler
// owns all state mutation; parallel batches only compute their own node's
// output and hand it back.
type Engine struct {
	state       *ExecutionState
	backend     Backend
	handler     PauseHandler
	renderer    Renderer
	policy      FailurePolicy
	concurrency int
	nodeTimeout time.Duration
	logger      *slog.Logger
	bus         eventBus

	retries       map[int]int
	accepted      map[int]bool // failures handled by a conditional edge
	notTaken      map[int]bool // skipped because no incoming edge was satisfiable
	lastCompleted int
}

// NewEngine creates an engine for a compiled graph.
func NewEngine(g *Graph, backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		state:         NewExecutionState(g),
		backend:       backend,
		concurrency:   DefaultConcurrency,
		logger:        slog.Default(),
		retries:       make(map[int]int),
		accepted:      make(map[int]bool),
		notTaken:      make(map[int]bool),
		lastCompleted: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State exposes the run state to steering and rendering. Callers other than
// the scheduler and its pause handlers must treat it as read-only.
func (e *Engine) State() *ExecutionState {
	return e.state
}

// Subscribe registers a callback for engine events.
func (e *Engine) Subscribe(fn func(Event)) {
	e.bus.subscribe(fn)
}

// Run executes the graph to completion, a steering abort, or an error.
func (e *Engine) Run(ctx context.Context) error {
	if e.backend == nil {
		return ErrNoBackend
	}
	e.logger.Info("run started", "run_id", e.state.RunID, "nodes", len(e.state.Graph.Nodes))

	for {
		if err := ctx.Err(); err != nil {
			e.publish(Event{Type: EventRunAborted, Error: err.Error()})
			return err
		}

		e.propagateSkips()

		ready := e.readySet()
		if len(ready) == 0 {
			pending := e.state.NodesInStatus(StatusPending)
			var failed []int
			for _, id := range e.state.NodesInStatus(StatusFailed) {
				if !e.accepted[id] {
					failed = append(failed, id)
				}
			}
			if len(pending) == 0 && len(failed) == 0 {
				e.publish(Event{Type: EventRunCompleted})
				e.render()
				e.logger.Info("run completed", "run_id", e.state.RunID)
				return nil
			}
			if len(failed) > 0 {
				// Unresolved failures with nothing else runnable.
				return e.failedRunError(failed)
			}
			err := fmt.Errorf("%w (stuck nodes: %s)", ErrDeadlock, e.nodeNames(pending))
			e.publish(Event{Type: EventRunDeadlocked, Error: err.Error()})
			return err
		}

		// Synthetic nodes complete without backend work; fold them in first
		// so the ready set reflects their completion.
		if e.completeSynthetic(ready) {
			continue
		}

		if steps := filterKind(e.state.Graph, ready, KindStep); len(steps) > 0 {
			if err := e.runBatch(ctx, steps); err != nil {
				return err
			}
			continue
		}

		// Only checkpoints are ready: suspend.
		cp := filterKind(e.state.Graph, ready, KindCheckpoint)[0]
		if err := e.pauseAtCheckpoint(ctx, cp); err != nil {
			return err
		}
	}
}

// readySet returns pending nodes all of whose incoming edges are satisfied.
// Back edges (loops written by re-targeting an earlier step) are ignored
// until their source has actually run, so loop bodies can start.
func (e *Engine) readySet() []int {
	var ready []int
	for _, n := range e.state.Graph.Nodes {
		if n.Status != StatusPending {
			continue
		}
		ok := true
		for _, edge := range e.state.Graph.Incoming(n.ID) {
			if edge.To <= edge.From && !e.sourceDecided(edge.From) {
				continue // dormant back edge
			}
			if !e.edgeSatisfied(edge) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n.ID)
		}
	}
	return ready
}

// edgeSatisfied reports whether a single edge permits advancing to its
// target. A completed source satisfies unconditional edges; a conditional
// edge additionally needs its condition to evaluate true against the
// source output. A failed source satisfies only conditional edges whose
// condition matches the failure (the error-handler path). Skips come in
// two flavors: a pass-through skip (steering or policy stepped over a
// failure) releases unconditional edges so the rest of the graph runs,
// while a branch-not-taken skip does not, so the whole untaken branch
// cascades.
func (e *Engine) edgeSatisfied(edge Edge) bool {
	src := e.state.Graph.Node(edge.From)
	out := e.state.Outputs[edge.From]
	switch src.Status {
	case StatusCompleted:
		if edge.Condition == "" {
			return true
		}
		return EvalCondition(edge.Condition, out)
	case StatusSkipped:
		return edge.Condition == "" && !e.notTaken[edge.From]
	case StatusFailed:
		return edge.Condition != "" && EvalCondition(edge.Condition, out)
	default:
		return false
	}
}

// sourceDecided reports whether a node has reached a state that decides its
// outgoing edges one way or the other.
func (e *Engine) sourceDecided(id int) bool {
	switch e.state.Graph.Node(id).Status {
	case StatusCompleted, StatusSkipped:
		return true
	case StatusFailed:
		return e.accepted[id]
	default:
		return false
	}
}

// propagateSkips marks pending nodes whose every incoming edge is decided
// but not satisfied: the branch was not taken. Cascades to fixpoint.
func (e *Engine) propagateSkips() {
	for changed := true; changed; {
		changed = false
		for _, n := range e.state.Graph.Nodes {
			if n.Status != StatusPending {
				continue
			}
			incoming := e.state.Graph.Incoming(n.ID)
			if len(incoming) == 0 {
				continue
			}
			decided, satisfied := true, false
			for _, edge := range incoming {
				if !e.sourceDecided(edge.From) {
					decided = false
					break
				}
				if e.edgeSatisfied(edge) {
					satisfied = true
				}
			}
			if decided && !satisfied {
				n.Status = StatusSkipped
				e.notTaken[n.ID] = true
				e.publish(Event{Type: EventNodeSkipped, NodeID: n.ID, Step: n.DisplayName()})
				e.render()
				changed = true
			}
		}
	}
}

// completeSynthetic finishes ready parallel-entry and parallel-merge nodes.
// Returns true if anything completed.
func (e *Engine) completeSynthetic(ready []int) bool {
	done := false
	for _, id := range ready {
		n := e.state.Graph.Node(id)
		switch n.Kind {
		case KindParallelEntry:
			e.applyOutput(id, &NodeOutput{Success: true})
			done = true
		case KindParallelMerge:
			e.completeMerge(id)
			done = true
		}
	}
	return done
}

// completeMerge finishes a parallel-merge. The merge always transitions to
// completed; tributary failures surface through the aggregate output's
// success flag, which downstream conditions evaluate against.
func (e *Engine) completeMerge(id int) {
	n := e.state.Graph.Node(id)
	out := e.mergeOutput(id)
	e.state.Outputs[id] = out
	n.Status = StatusCompleted
	e.lastCompleted = id
	if n.Capture != "" {
		e.state.Vars.Set(n.Capture, out.Result)
	}
	e.publish(Event{Type: EventNodeCompleted, NodeID: id, Step: n.DisplayName()})
	e.logger.Info("merge completed", "node", id, "tributaries", len(out.Tributaries), "success", out.Success)
	e.render()
	e.followBackEdges([]int{id})
}

// mergeOutput synthesizes the aggregate output of a parallel-merge:
// success is the AND of tributary successes, and the result is the
// declaration-ordered list of tributary results. A tributary that never
// produced output (branch not taken) is excluded; one that ran and was
// then skipped still contributes its recorded failure.
func (e *Engine) mergeOutput(mergeID int) *NodeOutput {
	out := &NodeOutput{Success: true}
	var results []string
	for _, tid := range e.state.Graph.Tributaries(mergeID) {
		tout := e.state.Outputs[tid]
		if tout == nil {
			continue
		}
		out.Tributaries = append(out.Tributaries, TributaryOutput{
			NodeID:  tid,
			Result:  tout.Result,
			Success: tout.Success,
		})
		out.Success = out.Success && tout.Success
		results = append(results, tout.Result)
	}
	out.Result = strings.Join(results, "\n")
	return out
}

type batchResult struct {
	id  int
	out *NodeOutput
}

// runBatch executes a set of ready step nodes as a parallel batch, bounded
// by the concurrency ceiling, then applies the results on the scheduler
// goroutine and resolves any failures.
func (e *Engine) runBatch(ctx context.Context, ids []int) error {
	sem := make(chan struct{}, e.concurrency)
	results := make(chan batchResult, len(ids))
	var wg sync.WaitGroup

	for _, id := range ids {
		n := e.state.Graph.Node(id)
		n.Status = StatusExecuting
		e.publish(Event{Type: EventNodeStarted, NodeID: id, Step: n.DisplayName()})
	}
	e.render()

	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- batchResult{id: id, out: e.invoke(ctx, id)}
		}(id)
	}
	wg.Wait()
	close(results)

	var failures []int
	for res := range results {
		e.applyOutput(res.id, res.out)
		if !res.out.Success {
			failures = append(failures, res.id)
		}
	}

	// A cancelled run is an abort, not a per-node failure to resolve.
	if err := ctx.Err(); err != nil {
		e.publish(Event{Type: EventRunAborted, Error: err.Error()})
		return err
	}

	e.followBackEdges(ids)

	for _, id := range failures {
		if e.state.Graph.Node(id).Status != StatusFailed {
			continue // already steered elsewhere
		}
		if err := e.resolveFailure(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs one node's backend call off the scheduler goroutine. It
// reads shared state (variables) but writes nothing; the output travels
// back to the scheduler for application.
func (e *Engine) invoke(ctx context.Context, id int) *NodeOutput {
	n := e.state.Graph.Node(id)
	start := time.Now()

	instruction, err := e.state.Vars.Interpolate(n.Instruction)
	if err != nil {
		// Unset variable at interpolation time is an execution error on the
		// consuming node, by contract.
		return &NodeOutput{
			Error:    err.Error(),
			Success:  false,
			Duration: time.Since(start),
		}
	}

	timeout := e.nodeTimeout
	invokeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := e.backend.Invoke(invokeCtx, InvokeRequest{
		Step:        n.StepName,
		Instruction: instruction,
		Model:       n.Model,
		Timeout:     timeout,
	})
	duration := time.Since(start)

	if err != nil {
		out := &NodeOutput{Error: err.Error(), Success: false, Duration: duration}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			out.TimedOut = true
			out.Error = ErrTimeout.Error()
		}
		return out
	}
	return &NodeOutput{
		Result:   res.Payload,
		Error:    res.Err,
		Success:  res.Success,
		Duration: duration,
	}
}

// applyOutput records an output and transitions the node. Runs only on the
// scheduler goroutine.
func (e *Engine) applyOutput(id int, out *NodeOutput) {
	n := e.state.Graph.Node(id)
	e.state.Outputs[id] = out
	if out.Success {
		n.Status = StatusCompleted
		e.lastCompleted = id
		if n.Capture != "" {
			e.state.Vars.Set(n.Capture, out.Result)
		}
		e.publish(Event{Type: EventNodeCompleted, NodeID: id, Step: n.DisplayName()})
		e.logger.Info("node completed", "node", id, "step", n.DisplayName(), "duration", out.Duration)
	} else {
		n.Status = StatusFailed
		e.publish(Event{Type: EventNodeFailed, NodeID: id, Step: n.DisplayName(), Error: out.Error})
		e.logger.Warn("node failed", "node", id, "step", n.DisplayName(), "error", out.Error, "timeout", out.TimedOut)
	}
	e.render()
}

// followBackEdges re-arms loops: when a just-finished node has a satisfied
// edge pointing at an earlier node, that region is reset to pending and
// re-runs.
func (e *Engine) followBackEdges(finished []int) {
	for _, id := range finished {
		for _, edge := range e.state.Graph.Outgoing(id) {
			if edge.To > edge.From {
				continue
			}
			if !e.edgeSatisfied(edge) {
				continue
			}
			e.logger.Info("loop edge taken", "from", edge.From, "to", edge.To, "condition", edge.Condition)
			e.resetRegion(edge.To)
		}
	}
}

// resolveFailure applies the unattended policy, or defers to steering. A
// failure already answered by an outgoing conditional edge (for example a
// `~> fixer` error-handler path) needs no intervention at all.
func (e *Engine) resolveFailure(ctx context.Context, id int) error {
	out := e.state.Outputs[id]
	for _, edge := range e.state.Graph.Outgoing(id) {
		if edge.Condition != "" && EvalCondition(edge.Condition, out) {
			e.accepted[id] = true
			e.logger.Info("failure handled by conditional edge", "node", id, "condition", edge.Condition)
			return nil
		}
	}

	switch e.policy.Action {
	case FailRetry:
		if e.retries[id] < e.policy.MaxRetries {
			e.retries[id]++
			e.logger.Info("retrying node", "node", id, "attempt", e.retries[id])
			e.resetNode(id)
			return nil
		}
		// Retries exhausted: fall through to ask/abort.
	case FailSkip:
		n := e.state.Graph.Node(id)
		n.Status = StatusSkipped
		e.publish(Event{Type: EventNodeSkipped, NodeID: id, Step: n.DisplayName()})
		e.render()
		return nil
	case FailAbort:
		return e.failedRunError([]int{id})
	}

	if e.handler == nil {
		return e.failedRunError([]int{id})
	}
	sig, err := e.handler.OnFailure(ctx, e, id)
	if err != nil {
		return err
	}
	if sig == SignalAbort {
		e.publish(Event{Type: EventRunAborted, NodeID: id})
		return ErrRunAborted
	}
	return nil
}

// pauseAtCheckpoint suspends the scheduler at a checkpoint node. Without a
// handler the checkpoint is auto-released so unattended runs can finish.
func (e *Engine) pauseAtCheckpoint(ctx context.Context, id int) error {
	n := e.state.Graph.Node(id)
	e.publish(Event{Type: EventCheckpointPaused, NodeID: id, Step: n.DisplayName()})
	e.render()

	if e.handler == nil {
		e.logger.Info("checkpoint auto-released (unattended)", "node", id, "label", n.Label)
		e.ReleaseCheckpoint(id)
		return nil
	}

	e.logger.Info("paused at checkpoint", "node", id, "label", n.Label)
	sig, err := e.handler.OnCheckpoint(ctx, e, id)
	if err != nil {
		return err
	}
	if sig == SignalAbort {
		e.publish(Event{Type: EventRunAborted, NodeID: id})
		return ErrRunAborted
	}
	return nil
}

func (e *Engine) failedRunError(ids []int) error {
	id := ids[0]
	n := e.state.Graph.Node(id)
	out := e.state.Outputs[id]
	errMsg := "unknown error"
	if out != nil && out.Error != "" {
		errMsg = out.Error
	}
	err := &ExecutionError{NodeID: id, Step: n.DisplayName(), Err: errors.New(errMsg)}
	e.publish(Event{Type: EventRunAborted, NodeID: id, Error: err.Error()})
	return err
}

func (e *Engine) nodeNames(ids []int) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = fmt.Sprintf("#%d %s", id, e.state.Graph.Node(id).DisplayName())
	}
	return strings.Join(names, ", ")
}

func (e *Engine) publish(ev Event) {
	ev.RunID = e.state.RunID
	e.bus.publish(ev)
}

func (e *Engine) render() {
	if e.renderer != nil {
		e.renderer.Render(e.state.View())
	}
}

// resetNode returns a single node to pending, clearing its output and any
// variable it captured.
func (e *Engine) resetNode(id int) {
	n := e.state.Graph.Node(id)
	n.Status = StatusPending
	delete(e.state.Outputs, id)
	delete(e.accepted, id)
	delete(e.notTaken, id)
	if n.Capture != "" {
		e.state.Vars.Delete(n.Capture)
	}
	e.publish(Event{Type: EventNodeReset, NodeID: id, Step: n.DisplayName()})
	e.render()
}

// resetRegion resets a node and everything reachable from it.
func (e *Engine) resetRegion(id int) {
	if err := e.state.ResetFrom(id); err != nil {
		return
	}
	delete(e.accepted, id)
	delete(e.notTaken, id)
	for _, did := range e.state.Graph.Descendants(id) {
		delete(e.accepted, did)
		delete(e.notTaken, did)
	}
	e.publish(Event{Type: EventNodeReset, NodeID: id})
	e.render()
}

func filterKind(g *Graph, ids []int, kind NodeKind) []int {
	var out []int
	for _, id := range ids {
		if g.Node(id).Kind == kind {
			out = append(out, id)
		}
	}
	return out
}
