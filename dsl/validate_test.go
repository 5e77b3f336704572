package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/everydev1618/weave"
)

// fakeDirectory resolves a fixed name set.
type fakeDirectory struct {
	names []string
}

func (d *fakeDirectory) Resolve(name string) weave.Resolution {
	for _, n := range d.names {
		if n == name {
			return weave.Resolution{Found: true, Kind: weave.StepDefined}
		}
	}
	return weave.Resolution{}
}

func (d *fakeDirectory) Names() []string {
	return append([]string(nil), d.names...)
}

func testDir(names ...string) weave.Directory {
	return &fakeDirectory{names: names}
}

func validationError(t *testing.T, err error, check string) *weave.ValidationError {
	t.Helper()
	if err == nil {
		t.Fatalf("want a %s validation error, got nil", check)
	}
	var ve *weave.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want *ValidationError", err)
	}
	if ve.Check != check {
		t.Fatalf("check: got %q, want %q (err: %v)", ve.Check, check, err)
	}
	return ve
}

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	const src = "plan -> [code || docs] -> @review (if approved)~> ship"
	tokens, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	g := mustLower(t, src)
	if err := Validate(g, tokens, testDir("plan", "code", "docs", "ship")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateUnknownStepSuggestsNearest(t *testing.T) {
	const src = "plan -> reviwer"
	tokens, _ := Tokenize(src)
	g := mustLower(t, src)
	err := Validate(g, tokens, testDir("plan", "reviewer", "ship"))
	ve := validationError(t, err, "unknown-step")
	if !strings.Contains(ve.Hint, `"reviewer"`) {
		t.Errorf("hint %q should suggest reviewer", ve.Hint)
	}
	if len(ve.Nodes) != 1 || ve.Nodes[0] != 1 {
		t.Errorf("nodes: got %v, want [1]", ve.Nodes)
	}
}

func TestValidateUnknownStepNoSuggestionWhenFar(t *testing.T) {
	const src = "zzzzzzzz"
	tokens, _ := Tokenize(src)
	g := mustLower(t, src)
	err := Validate(g, tokens, testDir("plan", "ship"))
	ve := validationError(t, err, "unknown-step")
	if ve.Hint != "" {
		t.Errorf("hint: got %q, want none for a distant name", ve.Hint)
	}
}

func TestValidateRejectsUnconditionalCycle(t *testing.T) {
	const src = "a -> b -> a"
	tokens, _ := Tokenize(src)
	g := mustLower(t, src)
	err := Validate(g, tokens, testDir("a", "b"))
	ve := validationError(t, err, "cycle")
	if !strings.Contains(ve.Msg, "a -> b -> a") {
		t.Errorf("message %q should name the cycle path", ve.Msg)
	}
}

func TestValidateAcceptsCycleWithConditionedEdge(t *testing.T) {
	const src = "a (if failed)~> b -> a"
	tokens, _ := Tokenize(src)
	g := mustLower(t, src)
	if err := Validate(g, tokens, testDir("a", "b")); err != nil {
		t.Fatalf("a conditioned loop must validate, got: %v", err)
	}
}

func TestValidateReportsMultipleFailuresAtOnce(t *testing.T) {
	const src = "ghost1 -> ghost2"
	tokens, _ := Tokenize(src)
	g := mustLower(t, src)
	err := Validate(g, tokens, testDir("plan"))
	if err == nil {
		t.Fatal("want errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "ghost1") || !strings.Contains(msg, "ghost2") {
		t.Errorf("aggregated error %q should name both unknown steps", msg)
	}
}

func TestValidateConnectivity(t *testing.T) {
	// Two disconnected components cannot be written in the surface
	// syntax, so build the graph directly.
	g := &weave.Graph{}
	g.AddNode(&weave.Node{Kind: weave.KindStep, StepName: "a", Status: weave.StatusPending})
	g.AddNode(&weave.Node{Kind: weave.KindStep, StepName: "b", Status: weave.StatusPending})
	g.AddNode(&weave.Node{Kind: weave.KindStep, StepName: "c", Status: weave.StatusPending})
	g.AddEdge(0, 1, "")

	err := Validate(g, nil, testDir("a", "b", "c"))
	ve := validationError(t, err, "connectivity")
	if len(ve.Nodes) != 1 || ve.Nodes[0] != 2 {
		t.Errorf("nodes: got %v, want [2]", ve.Nodes)
	}
}

func TestAnalyzeVariablesOrdering(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{"capture before use", `a:"list":items -> b:"fix {items}"`, false},
		{"use before capture", `a:"fix {items}" -> b:"list":items`, true},
		{"never captured", `a:"fix {items}"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustLower(t, tt.src)
			err := AnalyzeVariables(g)
			if tt.wantErr {
				validationError(t, err, "variables")
			} else if err != nil {
				t.Fatalf("AnalyzeVariables: %v", err)
			}
		})
	}
}

func TestAnalyzeVariablesReportsBothNodes(t *testing.T) {
	g := mustLower(t, `a:"fix {items}" -> b:"list":items`)
	err := AnalyzeVariables(g)
	ve := validationError(t, err, "variables")
	if len(ve.Nodes) != 2 || ve.Nodes[0] != 0 || ve.Nodes[1] != 1 {
		t.Errorf("nodes: got %v, want [0 1]", ve.Nodes)
	}
}

func TestCompileEndToEnd(t *testing.T) {
	g, err := Compile(`analyzer:"find issues":issues -> fixer:"fix {issues}" -> @done`,
		testDir("analyzer", "fixer"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(g.Nodes))
	}
	if g.Nodes[2].Kind != weave.KindCheckpoint || g.Nodes[2].Label != "done" {
		t.Errorf("last node should be checkpoint @done, got %+v", g.Nodes[2])
	}
}

func TestCompileEmptyInput(t *testing.T) {
	if _, err := Compile("   ", testDir()); err == nil {
		t.Fatal("want error for blank workflow")
	}
}
