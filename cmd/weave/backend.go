package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/everydev1618/weave"
)

// CommandBackend runs a configured shell command once per step invocation.
// The instruction arrives on stdin, the step name and model in the
// environment; exit status 0 means success, stdout is the payload and
// stderr the error text.
type CommandBackend struct {
	Command string
}

// Invoke implements weave.Backend.
func (b *CommandBackend) Invoke(ctx context.Context, req weave.InvokeRequest) (*weave.Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", b.Command)
	cmd.Stdin = strings.NewReader(req.Instruction)
	cmd.Env = append(cmd.Environ(),
		"WEAVE_STEP="+req.Step,
		"WEAVE_MODEL="+req.Model,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = err.Error()
		}
		return &weave.Result{
			Success: false,
			Payload: strings.TrimSpace(stdout.String()),
			Err:     errText,
		}, nil
	}
	return &weave.Result{
		Success: true,
		Payload: strings.TrimSpace(stdout.String()),
	}, nil
}

// EchoBackend is the dry-run backend: every step succeeds immediately and
// its payload describes what would have run.
type EchoBackend struct {
	// Delay simulates work, so dry runs show scheduling order.
	Delay time.Duration
}

// Invoke implements weave.Backend.
func (b *EchoBackend) Invoke(ctx context.Context, req weave.InvokeRequest) (*weave.Result, error) {
	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	payload := fmt.Sprintf("[dry-run] %s", req.Step)
	if req.Instruction != "" {
		payload += ": " + req.Instruction
	}
	return &weave.Result{Success: true, Payload: payload}, nil
}
