package weave

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStandardErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrRunAborted", ErrRunAborted, "run aborted"},
		{"ErrDeadlock", ErrDeadlock, "execution deadlocked"},
		{"ErrTimeout", ErrTimeout, "timed out"},
		{"ErrNoBackend", ErrNoBackend, "no step backend"},
		{"ErrNodeNotFound", ErrNodeNotFound, "node not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("got %q, want substring %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestSyntaxErrorMessage(t *testing.T) {
	err := &SyntaxError{Pos: 12, Msg: "unterminated instruction string", Hint: `close the instruction with '"'`}
	msg := err.Error()
	if !strings.Contains(msg, "position 12") {
		t.Errorf("message %q missing position", msg)
	}
	if !strings.Contains(msg, "close the instruction") {
		t.Errorf("message %q missing hint", msg)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Check: "cycle",
		Msg:   "unconditional cycle: a -> b -> a",
		Nodes: []int{0, 1},
		Hint:  "give at least one edge in the loop an (if ...) condition so the run can escape",
	}
	msg := err.Error()
	for _, want := range []string{"cycle:", "#0", "#1", "(if ...)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("wrap: %w", ErrTimeout)
	err := &ExecutionError{NodeID: 3, Step: "builder", Err: inner}
	if !errors.Is(err, ErrTimeout) {
		t.Error("ExecutionError should unwrap to the inner error")
	}
	if !strings.Contains(err.Error(), "#3") || !strings.Contains(err.Error(), "builder") {
		t.Errorf("message %q missing node identity", err.Error())
	}
}

func TestVariableErrorListsAvailable(t *testing.T) {
	err := &VariableError{Name: "bugs", Available: []string{"issues", "plan"}}
	msg := err.Error()
	if !strings.Contains(msg, `"bugs"`) {
		t.Errorf("message %q missing the unset name", msg)
	}
	if !strings.Contains(msg, "issues, plan") {
		t.Errorf("message %q missing available names", msg)
	}

	empty := &VariableError{Name: "bugs"}
	if !strings.Contains(empty.Error(), "no variables captured yet") {
		t.Errorf("empty-store message %q not actionable", empty.Error())
	}
}
