package weave

import (
	"time"

	"github.com/google/uuid"
)

// NodeOutput records what one node invocation produced.
type NodeOutput struct {
	Result   string
	Error    string
	Success  bool
	Duration time.Duration

	// TimedOut distinguishes deadline expiry from other failures; timeouts
	// are eligible for the same recovery commands as any other failure.
	TimedOut bool

	// Tributaries holds the per-branch results of a parallel-merge node,
	// in declaration order, for aggregate condition evaluation.
	Tributaries []TributaryOutput
}

// TributaryOutput is one branch's contribution to a parallel-merge.
type TributaryOutput struct {
	NodeID  int
	Result  string
	Success bool
}

// ExecutionState is the single owned mutable state of one run. It is
// mutated only by the scheduler goroutine and by steering commands, which
// run with the scheduler paused.
type ExecutionState struct {
	RunID     string
	Graph     *Graph
	Outputs   map[int]*NodeOutput
	Vars      *Variables
	StartedAt time.Time
}

// NewExecutionState creates run state for a compiled graph.
func NewExecutionState(g *Graph) *ExecutionState {
	return &ExecutionState{
		RunID:     uuid.NewString(),
		Graph:     g,
		Outputs:   make(map[int]*NodeOutput),
		Vars:      NewVariables(),
		StartedAt: time.Now(),
	}
}

// NodesInStatus returns the ids of nodes currently in the given status.
func (s *ExecutionState) NodesInStatus(status NodeStatus) []int {
	var ids []int
	for _, n := range s.Graph.Nodes {
		if n.Status == status {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// StatusCounts tallies nodes by status, for run summaries.
func (s *ExecutionState) StatusCounts() map[NodeStatus]int {
	counts := make(map[NodeStatus]int)
	for _, n := range s.Graph.Nodes {
		counts[n.Status]++
	}
	return counts
}

// LastCompleted returns the id of the most recently completed node, or -1.
// "Most recent" is tracked by the engine; this fallback scans in reverse id
// order for state inspected outside a run.
func (s *ExecutionState) LastCompleted() int {
	for i := len(s.Graph.Nodes) - 1; i >= 0; i-- {
		if s.Graph.Nodes[i].Status == StatusCompleted {
			return s.Graph.Nodes[i].ID
		}
	}
	return -1
}

// ResetFrom resets the node and every node reachable from it to pending and
// clears their stored outputs. Captured variables produced by the reset
// nodes are dropped so a re-run recaptures them. Unrelated branches are
// untouched.
func (s *ExecutionState) ResetFrom(id int) error {
	node := s.Graph.Node(id)
	if node == nil {
		return ErrNodeNotFound
	}
	ids := append([]int{id}, s.Graph.Descendants(id)...)
	for _, nid := range ids {
		n := s.Graph.Node(nid)
		n.Status = StatusPending
		delete(s.Outputs, nid)
		if n.Capture != "" {
			s.Vars.Delete(n.Capture)
		}
	}
	return nil
}

// ResetAll returns every node to pending and clears outputs and variables.
// Used when steering swaps in a recompiled graph.
func (s *ExecutionState) ResetAll() {
	for _, n := range s.Graph.Nodes {
		n.Status = StatusPending
	}
	s.Outputs = make(map[int]*NodeOutput)
	s.Vars = NewVariables()
}

// Snapshot is a structural copy of graph, outputs and variables, cheap
// enough to take before every destructive steering command.
type Snapshot struct {
	ID      string
	TakenAt time.Time
	Graph   *Graph
	Outputs map[int]*NodeOutput
	Vars    *Variables
}

// Snapshot copies the mutable run state.
func (s *ExecutionState) Snapshot() *Snapshot {
	outputs := make(map[int]*NodeOutput, len(s.Outputs))
	for id, out := range s.Outputs {
		c := *out
		c.Tributaries = append([]TributaryOutput(nil), out.Tributaries...)
		outputs[id] = &c
	}
	return &Snapshot{
		ID:      uuid.NewString(),
		TakenAt: time.Now(),
		Graph:   s.Graph.Clone(),
		Outputs: outputs,
		Vars:    s.Vars.Clone(),
	}
}

// Restore replaces the run state with a previously taken snapshot.
func (s *ExecutionState) Restore(snap *Snapshot) {
	s.Graph = snap.Graph.Clone()
	s.Outputs = make(map[int]*NodeOutput, len(snap.Outputs))
	for id, out := range snap.Outputs {
		c := *out
		c.Tributaries = append([]TributaryOutput(nil), out.Tributaries...)
		s.Outputs[id] = &c
	}
	s.Vars = snap.Vars.Clone()
}

// View is the read-only snapshot handed to renderers.
type View struct {
	RunID   string
	Graph   *Graph
	Outputs map[int]NodeOutput
}

// View builds a renderer snapshot from the current state.
func (s *ExecutionState) View() View {
	outputs := make(map[int]NodeOutput, len(s.Outputs))
	for id, out := range s.Outputs {
		outputs[id] = *out
	}
	return View{
		RunID:   s.RunID,
		Graph:   s.Graph.Clone(),
		Outputs: outputs,
	}
}
