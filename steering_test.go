package weave_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/everydev1618/weave"
	"github.com/everydev1618/weave/dsl"
)

// scriptedPrompter answers prompts from fixed queues.
type scriptedPrompter struct {
	selects  []string
	inputs   []string
	confirms []bool
}

func (p *scriptedPrompter) Select(question string, options []weave.Choice) (string, error) {
	if len(p.selects) == 0 {
		return "", errors.New("scripted prompter: out of select answers")
	}
	answer := p.selects[0]
	p.selects = p.selects[1:]
	return answer, nil
}

func (p *scriptedPrompter) MultiSelect(question string, options []weave.Choice) ([]string, error) {
	return nil, errors.New("scripted prompter: multiselect not scripted")
}

func (p *scriptedPrompter) Input(prompt string) (string, error) {
	if len(p.inputs) == 0 {
		return "", errors.New("scripted prompter: out of input answers")
	}
	answer := p.inputs[0]
	p.inputs = p.inputs[1:]
	return answer, nil
}

func (p *scriptedPrompter) Confirm(question string) (bool, error) {
	if len(p.confirms) == 0 {
		return false, errors.New("scripted prompter: out of confirm answers")
	}
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer, nil
}

func steeringEngine(t *testing.T, src string, backend *stubBackend, p *scriptedPrompter, opts ...weave.SteeringOption) (*weave.Engine, *bytes.Buffer) {
	t.Helper()
	g := compile(t, src)
	out := &bytes.Buffer{}
	base := []weave.SteeringOption{
		weave.WithOutput(out),
		weave.WithRecompiler(func(text string) (*weave.Graph, error) {
			return dsl.Compile(text, nil)
		}),
	}
	steering := weave.NewSteering(p, append(base, opts...)...)
	return weave.NewEngine(g, backend, weave.WithHandler(steering)), out
}

func TestSteeringContinueAtCheckpoint(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{selects: []string{"continue"}}
	eng, _ := steeringEngine(t, "plan -> @review -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("ship") != 1 {
		t.Error("ship should run after continue")
	}
}

func TestSteeringRetryOnFailure(t *testing.T) {
	backend := newStubBackend()
	backend.script("build",
		weave.Result{Success: false, Err: "flaky"},
		weave.Result{Success: true, Payload: "ok"},
	)
	p := &scriptedPrompter{selects: []string{"retry"}}
	eng, _ := steeringEngine(t, "build -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := backend.callCount("build"); n != 2 {
		t.Errorf("build ran %d times, want 2", n)
	}
	if backend.callCount("ship") != 1 {
		t.Error("ship should run after the retry")
	}
}

func TestSteeringSkipOnFailure(t *testing.T) {
	backend := newStubBackend()
	backend.script("build", weave.Result{Success: false, Err: "broken"})
	p := &scriptedPrompter{selects: []string{"skip"}}
	eng, _ := steeringEngine(t, "build -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("ship") != 1 {
		t.Error("ship should run past the skipped failure")
	}
}

func TestSteeringQuitNeedsConfirmation(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{
		selects:  []string{"quit", "quit"},
		confirms: []bool{false, true}, // first quit backed out
	}
	eng, out := steeringEngine(t, "plan -> @review -> ship", backend, p)

	if err := eng.Run(context.Background()); !errors.Is(err, weave.ErrRunAborted) {
		t.Fatalf("got %v, want ErrRunAborted", err)
	}
	if backend.callCount("ship") != 0 {
		t.Error("ship must not run after abort")
	}
	if !strings.Contains(out.String(), "aborted") {
		t.Errorf("quit should print a summary, got %q", out.String())
	}
}

func TestSteeringJumpResetsRegionOnly(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{selects: []string{"jump", "#1 b", "continue"}}
	eng, _ := steeringEngine(t, "a -> b -> @gate -> c", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := backend.callCount("a"); n != 1 {
		t.Errorf("a ran %d times; jump must not touch nodes outside the region", n)
	}
	if n := backend.callCount("b"); n != 2 {
		t.Errorf("b ran %d times, want 2 after the jump", n)
	}
	if backend.callCount("c") != 1 {
		t.Error("c should run once at the end")
	}
}

func TestSteeringRepeatRerunsLastCompleted(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{selects: []string{"repeat", "continue"}}
	eng, _ := steeringEngine(t, "a -> b -> @gate -> c", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := backend.callCount("b"); n != 2 {
		t.Errorf("b ran %d times, want 2 (repeat re-queues the last completed)", n)
	}
	if n := backend.callCount("a"); n != 1 {
		t.Errorf("a ran %d times, want 1", n)
	}
}

func TestSteeringEditSwapsGraph(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{
		selects: []string{"edit"},
		inputs:  []string{"x -> y"},
	}
	eng, _ := steeringEngine(t, "plan -> @review -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("x") != 1 || backend.callCount("y") != 1 {
		t.Errorf("replacement workflow did not run, calls: %v", backend.calls)
	}
	if backend.callCount("ship") != 0 {
		t.Error("old workflow must not keep running after edit")
	}
}

func TestSteeringEditRejectsBadSyntaxAndKeepsGraph(t *testing.T) {
	backend := newStubBackend()
	p := &scriptedPrompter{
		selects: []string{"edit", "continue"},
		inputs:  []string{"a -> [unclosed"},
	}
	eng, out := steeringEngine(t, "plan -> @review -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "edit rejected") {
		t.Errorf("expected rejection message, got %q", out.String())
	}
	if backend.callCount("ship") != 1 {
		t.Error("original workflow should finish after a rejected edit")
	}
}

func TestSteeringViewShowsOutput(t *testing.T) {
	backend := newStubBackend()
	backend.script("plan", weave.Result{Success: true, Payload: "the grand plan"})
	p := &scriptedPrompter{selects: []string{"view", "#0 plan", "continue"}}
	eng, out := steeringEngine(t, "plan -> @review -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "the grand plan") {
		t.Errorf("view should print the node output, got %q", out.String())
	}
}

func TestSteeringDebugInsertsDiagnostic(t *testing.T) {
	backend := newStubBackend()
	backend.script("diagnostic", weave.Result{Success: true, Payload: "state looks fine"})

	var registered []string
	p := &scriptedPrompter{
		selects: []string{"debug", "continue"},
		inputs:  []string{"inspect the working directory"},
	}
	eng, out := steeringEngine(t, "plan -> @review -> ship", backend, p,
		weave.WithTemporaryRegistrar(func(name string) { registered = append(registered, name) }))

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("diagnostic") != 1 {
		t.Error("diagnostic step did not run")
	}
	if !strings.Contains(out.String(), "state looks fine") {
		t.Errorf("diagnostic output not shown, got %q", out.String())
	}
	if len(registered) != 1 || registered[0] != "diagnostic" {
		t.Errorf("registered = %v, want [diagnostic]", registered)
	}
	if backend.callCount("ship") != 1 {
		t.Error("run should finish after the debug detour")
	}
}

func TestSteeringForkRunsAlternatives(t *testing.T) {
	backend := newStubBackend()
	var registered []string
	p := &scriptedPrompter{
		selects: []string{"fork", "continue"},
		inputs:  []string{"2", "try approach one", "try approach two"},
	}
	eng, out := steeringEngine(t, "plan -> @review -> ship", backend, p,
		weave.WithTemporaryRegistrar(func(name string) { registered = append(registered, name) }))

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("alternative-1") != 1 || backend.callCount("alternative-2") != 1 {
		t.Errorf("alternatives did not run, calls: %v", backend.calls)
	}
	if len(registered) != 2 {
		t.Errorf("registered = %v, want both alternatives", registered)
	}
	if !strings.Contains(out.String(), "fork complete") {
		t.Errorf("missing fork summary, got %q", out.String())
	}
}

func TestSteeringDebugFromFailureMenu(t *testing.T) {
	backend := newStubBackend()
	backend.script("build",
		weave.Result{Success: false, Err: "segfault"},
		weave.Result{Success: true, Payload: "ok"},
	)
	backend.script("diagnostic", weave.Result{Success: true, Payload: "stale object files"})
	p := &scriptedPrompter{
		selects: []string{"debug", "retry"},
		inputs:  []string{"inspect the build tree"},
	}
	eng, out := steeringEngine(t, "build -> ship", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if backend.callCount("diagnostic") != 1 {
		t.Error("diagnostic step should be available from the failure menu")
	}
	if !strings.Contains(out.String(), "stale object files") {
		t.Errorf("diagnostic output not shown, got %q", out.String())
	}
	if backend.callCount("build") != 2 {
		t.Errorf("build ran %d times, want 2 after the retry", backend.callCount("build"))
	}
	if backend.callCount("ship") != 1 {
		t.Error("ship should run once build passes")
	}
}

func TestRunForkWithNoBranches(t *testing.T) {
	backend := newStubBackend()
	g := compile(t, "plan -> ship")
	eng := weave.NewEngine(g, backend)

	// No branches inserted: must be a no-op, not a panic.
	eng.RunFork(context.Background(), nil, 0)

	if got := g.Node(0).Status; got != weave.StatusPending {
		t.Errorf("node 0 status = %s, want untouched pending", got)
	}
}

func TestSteeringUndoRestoresPreJumpState(t *testing.T) {
	backend := newStubBackend()
	// First pause: jump back to b. Second pause: undo the jump, continue.
	p := &scriptedPrompter{selects: []string{"jump", "#1 b", "undo", "continue"}}
	eng, out := steeringEngine(t, "a -> b -> @gate -> c", backend, p)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "restored state") {
		t.Errorf("undo message missing, got %q", out.String())
	}
	if backend.callCount("c") != 1 {
		t.Error("run should finish after the undo")
	}
}
