package dsl

import (
	"github.com/everydev1618/weave"
)

// Lower flattens an AST into a directed graph. It walks the tree depth
// first, threading a "current predecessor" id through the walk; every step
// and checkpoint allocates a fresh node wired from its predecessor, a
// parallel block is bracketed by synthesized parallel-entry and
// parallel-merge nodes, and a subgraph is transparent.
//
// A bare reference to a step name that was already lowered re-targets the
// existing node instead of allocating a new one; that is how loops are
// written (`a (if failed)~> b -> a`). A step carrying its own instruction
// always allocates.
func Lower(ast *ASTNode) (*weave.Graph, error) {
	l := &lowerer{
		graph:  &weave.Graph{},
		byName: make(map[string]int),
	}
	if _, err := l.lower(ast, -1); err != nil {
		return nil, err
	}
	return l.graph, nil
}

type lowerer struct {
	graph  *weave.Graph
	byName map[string]int
}

// lower emits graph structure for one AST node and returns the exit node
// id a successor should wire from. pred is -1 at the root.
func (l *lowerer) lower(n *ASTNode, pred int) (int, error) {
	switch n.Type {
	case NodeStep:
		return l.lowerStep(n, pred), nil

	case NodeCheckpoint:
		node := l.graph.AddNode(&weave.Node{
			Kind:   weave.KindCheckpoint,
			Label:  n.Label,
			Status: weave.StatusPending,
		})
		l.connect(pred, node.ID)
		return node.ID, nil

	case NodeSequence:
		exit := pred
		for _, step := range n.Steps {
			var err error
			exit, err = l.lower(step, exit)
			if err != nil {
				return -1, err
			}
		}
		return exit, nil

	case NodeParallel:
		entry := l.graph.AddNode(&weave.Node{
			Kind:   weave.KindParallelEntry,
			Status: weave.StatusPending,
		})
		l.connect(pred, entry.ID)
		exits := make([]int, 0, len(n.Branches))
		for _, branch := range n.Branches {
			exit, err := l.lower(branch, entry.ID)
			if err != nil {
				return -1, err
			}
			exits = append(exits, exit)
		}
		merge := l.graph.AddNode(&weave.Node{
			Kind:   weave.KindParallelMerge,
			Status: weave.StatusPending,
		})
		for _, exit := range exits {
			l.graph.AddEdge(exit, merge.ID, "")
		}
		return merge.ID, nil

	case NodeConditional:
		srcExit, err := l.lower(n.Source, pred)
		if err != nil {
			return -1, err
		}
		mark := len(l.graph.Edges)
		tgtExit, err := l.lower(n.Target, srcExit)
		if err != nil {
			return -1, err
		}
		// The first edge out of the source created while lowering the
		// target is the conditional hop itself.
		for i := mark; i < len(l.graph.Edges); i++ {
			if l.graph.Edges[i].From == srcExit {
				l.graph.Edges[i].Condition = n.Condition
				break
			}
		}
		return tgtExit, nil

	case NodeSubgraph:
		return l.lower(n.Child, pred)

	default:
		return -1, &weave.SyntaxError{Pos: n.Pos, Msg: "internal: unknown AST node type"}
	}
}

func (l *lowerer) lowerStep(n *ASTNode, pred int) int {
	if n.Instruction == "" && n.Capture == "" {
		if id, ok := l.byName[n.Name]; ok {
			l.connect(pred, id)
			return id
		}
	}
	node := l.graph.AddNode(&weave.Node{
		Kind:        weave.KindStep,
		StepName:    n.Name,
		Instruction: n.Instruction,
		Capture:     n.Capture,
		Uses:        weave.ReferencedVariables(n.Instruction),
		Status:      weave.StatusPending,
	})
	if _, ok := l.byName[n.Name]; !ok {
		l.byName[n.Name] = node.ID
	}
	l.connect(pred, node.ID)
	return node.ID
}

func (l *lowerer) connect(from, to int) {
	if from >= 0 {
		l.graph.AddEdge(from, to, "")
	}
}
