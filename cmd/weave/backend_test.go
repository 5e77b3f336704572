package main

import (
	"context"
	"strings"
	"testing"

	"github.com/everydev1618/weave"
)

func TestCommandBackendSuccess(t *testing.T) {
	b := &CommandBackend{Command: `echo "step=$WEAVE_STEP"; cat`}
	res, err := b.Invoke(context.Background(), weave.InvokeRequest{
		Step:        "analyzer",
		Instruction: "find bugs",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success {
		t.Fatalf("success = false, err: %s", res.Err)
	}
	if !strings.Contains(res.Payload, "step=analyzer") {
		t.Errorf("payload missing step env: %q", res.Payload)
	}
	if !strings.Contains(res.Payload, "find bugs") {
		t.Errorf("payload missing stdin instruction: %q", res.Payload)
	}
}

func TestCommandBackendFailure(t *testing.T) {
	b := &CommandBackend{Command: `echo "broken" >&2; exit 3`}
	res, err := b.Invoke(context.Background(), weave.InvokeRequest{Step: "x"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Success {
		t.Fatal("success = true for nonzero exit")
	}
	if !strings.Contains(res.Err, "broken") {
		t.Errorf("err %q should carry stderr", res.Err)
	}
}

func TestEchoBackend(t *testing.T) {
	b := &EchoBackend{}
	res, err := b.Invoke(context.Background(), weave.InvokeRequest{
		Step:        "planner",
		Instruction: "outline the release",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Success || !strings.Contains(res.Payload, "planner") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestFailurePolicyMapping(t *testing.T) {
	cfg := &Config{}
	tests := []struct {
		action  string
		retries int
		want    weave.FailureAction
	}{
		{"", 0, weave.FailAsk},
		{"ask", 0, weave.FailAsk},
		{"retry", 3, weave.FailRetry},
		{"skip", 0, weave.FailSkip},
		{"abort", 0, weave.FailAbort},
	}
	for _, tt := range tests {
		p, err := failurePolicy(cfg, tt.action, tt.retries)
		if err != nil {
			t.Fatalf("failurePolicy(%q): %v", tt.action, err)
		}
		if p.Action != tt.want {
			t.Errorf("action %q: got %v, want %v", tt.action, p.Action, tt.want)
		}
	}
	if _, err := failurePolicy(cfg, "explode", 0); err == nil {
		t.Fatal("want error for unknown action")
	}
	if p, _ := failurePolicy(cfg, "retry", 0); p.MaxRetries <= 0 {
		t.Errorf("retry with no count should default, got %d", p.MaxRetries)
	}
}
