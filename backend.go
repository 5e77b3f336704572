package weave

import (
	"context"
	"time"
)

// InvokeRequest is everything a step backend needs to run one node.
type InvokeRequest struct {
	// Step is the resolved step name.
	Step string

	// Instruction is the node's instruction after variable interpolation.
	Instruction string

	// Model optionally selects a backend model for this invocation.
	Model string

	// Timeout is the per-invocation deadline; zero means no deadline.
	Timeout time.Duration
}

// Result is what a backend invocation produced. The engine treats Payload
// as opaque text: it is only ever interpolated into later instructions or
// matched by the condition heuristics.
type Result struct {
	Success bool
	Payload string
	Err     string
}

// Backend performs the actual unit of work for a step node. Implementations
// must honor ctx cancellation; quitting a run mid-flight cancels in-flight
// invocations cooperatively.
type Backend interface {
	Invoke(ctx context.Context, req InvokeRequest) (*Result, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req InvokeRequest) (*Result, error)

func (f BackendFunc) Invoke(ctx context.Context, req InvokeRequest) (*Result, error) {
	return f(ctx, req)
}

// StepKind classifies how a step name was registered.
type StepKind int

const (
	StepBuiltin StepKind = iota
	StepDefined
	StepTemporary
)

func (k StepKind) String() string {
	switch k {
	case StepBuiltin:
		return "builtin"
	case StepDefined:
		return "defined"
	case StepTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a directory lookup.
type Resolution struct {
	Found bool
	Kind  StepKind
}

// Directory resolves step names at compile time. A name that does not
// resolve is a compile-time error, never a runtime surprise.
type Directory interface {
	Resolve(name string) Resolution

	// Names lists every known step name, used for suggestions.
	Names() []string
}

// Choice is one selectable option in a steering menu.
type Choice struct {
	Label  string
	Detail string
}

// Prompter collects an operator's decisions. It is used exclusively by the
// steering subsystem.
type Prompter interface {
	// Select asks the operator to pick exactly one option.
	Select(question string, options []Choice) (string, error)

	// MultiSelect asks the operator to pick one or more options.
	MultiSelect(question string, options []Choice) ([]string, error)

	// Input collects a free-form line of text.
	Input(prompt string) (string, error)

	// Confirm asks a yes/no question.
	Confirm(question string) (bool, error)
}

// Renderer consumes a read-only snapshot after every state transition.
// Purely observational; nothing it does feeds back into the engine.
type Renderer interface {
	Render(view View)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(view View)

func (f RendererFunc) Render(view View) {
	f(view)
}
