// Package weave executes agent workflows compiled from a compact text syntax.
//
// A workflow names steps ("agents") and wires them with a handful of
// operators:
//
//   - `->` sequence: the right side waits for the left
//   - `||` parallel: siblings run concurrently and merge
//   - `~>` conditional transition, guarded by a preceding `(if ...)`
//   - `@label` checkpoint: execution pauses for review
//   - `[...]` grouping
//   - `:name` captures a step's output, `{name}` interpolates it later
//
// The dsl package compiles syntax into a *Graph; this package schedules it.
//
// # Quick Start
//
// Compile and run a workflow against a backend:
//
//	graph, err := dsl.Compile(`plan -> [code || docs] -> @review -> ship`, dir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	backend := weave.BackendFunc(func(ctx context.Context, req weave.InvokeRequest) (*weave.Result, error) {
//	    out, err := callAgent(ctx, req.Step, req.Instruction)
//	    if err != nil {
//	        return &weave.Result{Success: false, Err: err.Error()}, nil
//	    }
//	    return &weave.Result{Success: true, Payload: out}, nil
//	})
//
//	eng := weave.NewEngine(graph, backend)
//	err = eng.Run(ctx)
//
// # Scheduling
//
// The engine repeatedly computes a ready set: pending nodes all of whose
// incoming edges are satisfied. Ready steps are dispatched as a parallel
// batch bounded by a concurrency ceiling (WithConcurrency). A single
// scheduler goroutine applies every state transition; batch workers only
// compute their own node's output.
//
// An edge is satisfied when its source is completed or skipped and its
// condition, if any, evaluates true against the source output. A failed
// source satisfies only conditional edges that match the failure, which is
// how error-handler paths (`~> fixer`) work. Nodes whose every incoming
// edge is decided but unsatisfiable are skipped, and skips cascade.
//
// # Steering
//
// Checkpoints and unhandled failures suspend the scheduler and surface to a
// PauseHandler. The Steering implementation drives an interactive menu
// through the Prompter interface: continue, jump, repeat, edit, view,
// debug, fork, undo, quit. Destructive commands snapshot the run state
// first so undo can restore it. Without a handler, checkpoints auto-release
// and failures follow the configured FailurePolicy.
//
// # Variables
//
// A `:name` capture stores the step's output; `{name}` references are
// interpolated into instructions just before invocation. Referencing a
// variable no step has captured fails the consuming node with a
// VariableError listing what is available.
//
// # Thread Safety
//
// An Engine is driven by one Run call at a time. The steering mutators
// (JumpTo, ReplaceGraph, ...) are only safe from inside a PauseHandler,
// where the scheduler is suspended.
package weave
