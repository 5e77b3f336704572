package weave

import "fmt"

// NodeKind identifies what a graph node represents.
type NodeKind int

const (
	// KindStep is a unit of work invoked on the step backend.
	KindStep NodeKind = iota
	// KindCheckpoint always suspends the scheduler until steering resumes it.
	KindCheckpoint
	// KindParallelEntry is the synthetic fan-out node of a parallel region.
	KindParallelEntry
	// KindParallelMerge is the synthetic fan-in node of a parallel region.
	KindParallelMerge
)

func (k NodeKind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindCheckpoint:
		return "checkpoint"
	case KindParallelEntry:
		return "parallel-entry"
	case KindParallelMerge:
		return "parallel-merge"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// NodeStatus is the execution state of a single node.
type NodeStatus int

const (
	StatusPending NodeStatus = iota
	StatusExecuting
	StatusCompleted
	StatusFailed
	StatusSkipped
)

func (s NodeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("NodeStatus(%d)", int(s))
	}
}

// Terminal reports whether a node in this status will not run again
// without being reset.
func (s NodeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// Node is one vertex of a compiled workflow graph. Nodes are allocated in
// declaration order by the compiler; the ID doubles as that ordering, which
// the variable analyzer relies on. Nodes are never deleted, only reset.
type Node struct {
	ID          int
	Kind        NodeKind
	StepName    string
	Instruction string

	// Capture names the variable this node's output is stored under.
	Capture string

	// Uses lists the {name} references found in Instruction.
	Uses []string

	Status NodeStatus

	// Model optionally overrides the backend model for this node.
	Model string

	// Label is the checkpoint label (checkpoint nodes only).
	Label string
}

// DisplayName returns the name to show an operator for this node.
func (n *Node) DisplayName() string {
	switch n.Kind {
	case KindCheckpoint:
		return "@" + n.Label
	case KindParallelEntry, KindParallelMerge:
		return n.Kind.String()
	default:
		return n.StepName
	}
}

// Edge connects two nodes. A non-empty Condition gates traversal; an empty
// one means unconditional advance.
type Edge struct {
	From      int
	To        int
	Condition string
}

// Graph is the compiled form of a workflow: nodes indexed by ID plus a flat
// edge list. Edges are immutable after lowering; node statuses are mutated
// by the engine and by steering.
type Graph struct {
	Nodes []*Node
	Edges []Edge
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// Incoming returns all edges ending at id.
func (g *Graph) Incoming(id int) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.To == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// Outgoing returns all edges starting at id.
func (g *Graph) Outgoing(id int) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.From == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// Roots returns the ids of nodes with no incoming edge, in id order.
func (g *Graph) Roots() []int {
	hasIncoming := make([]bool, len(g.Nodes))
	for _, e := range g.Edges {
		if e.To >= 0 && e.To < len(g.Nodes) {
			hasIncoming[e.To] = true
		}
	}
	var roots []int
	for _, n := range g.Nodes {
		if !hasIncoming[n.ID] {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// Descendants returns every node reachable from id by forward traversal,
// excluding id itself, in id order.
func (g *Graph) Descendants(id int) []int {
	seen := make(map[int]bool)
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Outgoing(cur) {
			if !seen[e.To] {
				seen[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	delete(seen, id)
	var ids []int
	for _, n := range g.Nodes {
		if seen[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Tributaries returns the ids feeding a parallel-merge node, in the order
// the branches were declared. For any other node it returns the sources of
// its incoming edges.
func (g *Graph) Tributaries(mergeID int) []int {
	var ids []int
	for _, e := range g.Edges {
		if e.To == mergeID {
			ids = append(ids, e.From)
		}
	}
	return ids
}

// Producer returns the id of the first node capturing the given variable
// name, or -1.
func (g *Graph) Producer(name string) int {
	for _, n := range g.Nodes {
		if n.Capture == name {
			return n.ID
		}
	}
	return -1
}

// Clone makes a deep structural copy of the graph. Snapshots for steering
// undo are built on this; it copies nodes and edges only, so it stays cheap
// even for large runs.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes: make([]*Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(c.Edges, g.Edges)
	for i, n := range g.Nodes {
		cn := *n
		cn.Uses = append([]string(nil), n.Uses...)
		c.Nodes[i] = &cn
	}
	return c
}

// AddNode appends a node, assigning the next sequential id.
func (g *Graph) AddNode(n *Node) *Node {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n
}

// AddEdge appends an edge.
func (g *Graph) AddEdge(from, to int, condition string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Condition: condition})
}
