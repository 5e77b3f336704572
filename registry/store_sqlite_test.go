package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "weave.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	defs := []StepDef{
		{Name: "migrator", Description: "upgrades schemas", Model: "large"},
		{Name: "auditor", Prompt: "check for leaks"},
	}
	for _, def := range defs {
		if err := s.Save(ctx, def); err != nil {
			t.Fatalf("Save(%s): %v", def.Name, err)
		}
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d defs, want 2", len(loaded))
	}
	// Name-ordered.
	if loaded[0].Name != "auditor" || loaded[1].Name != "migrator" {
		t.Errorf("order: got %s, %s", loaded[0].Name, loaded[1].Name)
	}
	if loaded[1].Description != "upgrades schemas" || loaded[1].Model != "large" {
		t.Errorf("migrator fields not preserved: %+v", loaded[1])
	}

	if err := s.Delete(ctx, "auditor"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "migrator" {
		t.Errorf("after delete: %+v", loaded)
	}
}

func TestSaveUpsertsByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, StepDef{Name: "auditor", Model: "small"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, StepDef{Name: "auditor", Model: "large"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d defs, want 1 after upsert", len(loaded))
	}
	if loaded[0].Model != "large" {
		t.Errorf("model = %q, want large", loaded[0].Model)
	}
}

func TestSaveRejectsEmptyName(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), StepDef{}); err == nil {
		t.Fatal("want error for empty name")
	}
}

func TestRunHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{"completed", "failed", "completed"} {
		rec := RunRecord{
			RunID:     string(rune('a' + i)),
			Workflow:  "plan -> ship",
			Status:    status,
			Completed: i,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Duration:  3 * time.Second,
		}
		if err := s.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	recs, err := s.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d runs, want 2", len(recs))
	}
	// Newest first.
	if recs[0].RunID != "c" || recs[1].RunID != "b" {
		t.Errorf("order: got %s, %s", recs[0].RunID, recs[1].RunID)
	}
	if recs[0].Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", recs[0].Duration)
	}
}
