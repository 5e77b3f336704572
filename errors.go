package weave

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors returned by the engine and steering.
var (
	ErrRunAborted     = errors.New("run aborted")
	ErrDeadlock       = errors.New("execution deadlocked: no node is ready and none are executing")
	ErrTimeout        = errors.New("node invocation timed out")
	ErrNoBackend      = errors.New("no step backend configured")
	ErrNotPaused      = errors.New("engine is not paused")
	ErrNothingToReset = errors.New("no completed node to reset")
	ErrNodeNotFound   = errors.New("node not found")
)

// SyntaxError reports a tokenizer or parser failure, anchored to a rune
// position in the source text.
type SyntaxError struct {
	Pos  int
	Msg  string
	Hint string
}

func (e *SyntaxError) Error() string {
	msg := fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
	if e.Hint != "" {
		msg += "\n  -> " + e.Hint
	}
	return msg
}

// ValidationError reports a graph-level problem found before execution.
// Check names the validator pass that failed; Nodes lists the offending
// node ids when the problem is node-anchored.
type ValidationError struct {
	Check string
	Msg   string
	Hint  string
	Nodes []int
}

func (e *ValidationError) Error() string {
	msg := e.Msg
	if e.Check != "" {
		msg = e.Check + ": " + msg
	}
	if len(e.Nodes) > 0 {
		ids := make([]string, len(e.Nodes))
		for i, id := range e.Nodes {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		msg += " (nodes " + strings.Join(ids, ", ") + ")"
	}
	if e.Hint != "" {
		msg += "\n  -> " + e.Hint
	}
	return msg
}

// ExecutionError wraps a node-level failure during a run. It never crashes
// the scheduler; only the offending node transitions to failed.
type ExecutionError struct {
	NodeID int
	Step   string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node #%d (%s): %v", e.NodeID, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// VariableError reports interpolation of a name that was never captured.
// Available lists the names that are set, so the message is actionable.
type VariableError struct {
	Name      string
	Available []string
}

func (e *VariableError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("variable %q is not set (no variables captured yet)", e.Name)
	}
	return fmt.Sprintf("variable %q is not set (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
