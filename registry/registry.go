// Package registry persists reusable step definitions. The engine never
// touches it; the CLI loads definitions from a Store into the agent
// directory before compiling, and saves new ones on request.
package registry

import (
	"context"
	"time"
)

// StepDef is one reusable step: a named agent with an optional model and
// default prompt, created once and referenced from many workflows.
type StepDef struct {
	Name        string
	Description string
	Model       string
	Prompt      string
	CreatedAt   time.Time
}

// RunRecord summarizes one finished workflow run for history queries.
type RunRecord struct {
	RunID     string
	Workflow  string
	Status    string
	Completed int
	Failed    int
	Skipped   int
	StartedAt time.Time
	Duration  time.Duration
}

// Store is the persistence boundary for reusable steps and run history.
type Store interface {
	Load(ctx context.Context) ([]StepDef, error)
	Save(ctx context.Context, def StepDef) error
	Delete(ctx context.Context, name string) error

	RecordRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}
