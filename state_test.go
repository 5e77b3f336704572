package weave

import "testing"

func runState() *ExecutionState {
	s := NewExecutionState(diamond())
	s.Graph.Node(1).Capture = "left"

	s.Graph.Node(0).Status = StatusCompleted
	s.Outputs[0] = &NodeOutput{Result: "start", Success: true}
	s.Graph.Node(1).Status = StatusCompleted
	s.Outputs[1] = &NodeOutput{Result: "left out", Success: true}
	s.Vars.Set("left", "left out")
	return s
}

func TestResetFromClearsRegionOnly(t *testing.T) {
	s := runState()

	if err := s.ResetFrom(1); err != nil {
		t.Fatalf("ResetFrom: %v", err)
	}

	if s.Graph.Node(1).Status != StatusPending || s.Graph.Node(3).Status != StatusPending {
		t.Error("node 1 and its descendant 3 should be pending")
	}
	if s.Graph.Node(0).Status != StatusCompleted {
		t.Error("node 0 is outside the region and must keep its state")
	}
	if _, ok := s.Outputs[1]; ok {
		t.Error("node 1 output should be cleared")
	}
	if _, ok := s.Vars.Get("left"); ok {
		t.Error("capture of a reset node should be dropped")
	}

	if err := s.ResetFrom(99); err == nil {
		t.Error("ResetFrom on an unknown node should fail")
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	s := runState()
	snap := s.Snapshot()
	if snap.ID == "" {
		t.Error("snapshot needs an id")
	}

	// Mutate past the snapshot.
	s.Graph.Node(3).Status = StatusFailed
	s.Outputs[3] = &NodeOutput{Error: "boom"}
	s.Vars.Set("left", "overwritten")
	s.Outputs[0].Result = "mutated"

	s.Restore(snap)

	if s.Graph.Node(3).Status != StatusPending {
		t.Errorf("node 3 status = %v, want pending after restore", s.Graph.Node(3).Status)
	}
	if _, ok := s.Outputs[3]; ok {
		t.Error("output written after the snapshot should be gone")
	}
	if s.Outputs[0].Result != "start" {
		t.Errorf("output 0 = %q, mutation leaked through the snapshot", s.Outputs[0].Result)
	}
	if v, ok := s.Vars.Get("left"); !ok || v != "left out" {
		t.Errorf("left = %q (set=%v), want pre-snapshot value", v, ok)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := runState()
	snap := s.Snapshot()

	snap.Graph.Node(0).Status = StatusFailed
	snap.Outputs[0].Result = "scribbled"

	if s.Graph.Node(0).Status != StatusCompleted {
		t.Error("mutating the snapshot graph must not touch live state")
	}
	if s.Outputs[0].Result != "start" {
		t.Error("mutating snapshot outputs must not touch live state")
	}
}

func TestResetAll(t *testing.T) {
	s := runState()
	s.ResetAll()

	for _, n := range s.Graph.Nodes {
		if n.Status != StatusPending {
			t.Errorf("node %d status = %v, want pending", n.ID, n.Status)
		}
	}
	if len(s.Outputs) != 0 {
		t.Error("outputs should be cleared")
	}
	if names := s.Vars.Names(); len(names) != 0 {
		t.Errorf("variables should be cleared, got %v", names)
	}
}

func TestViewCopies(t *testing.T) {
	s := runState()
	v := s.View()

	v.Graph.Node(0).Status = StatusFailed
	if s.Graph.Node(0).Status != StatusCompleted {
		t.Error("renderer view must be detached from live state")
	}
	if v.Outputs[0].Result != "start" {
		t.Errorf("view output = %q, want %q", v.Outputs[0].Result, "start")
	}
}
