package dsl

import "fmt"

// NodeType tags an AST node.
type NodeType int

const (
	NodeSequence NodeType = iota
	NodeParallel
	NodeConditional
	NodeStep
	NodeCheckpoint
	NodeSubgraph
)

func (t NodeType) String() string {
	switch t {
	case NodeSequence:
		return "sequence"
	case NodeParallel:
		return "parallel"
	case NodeConditional:
		return "conditional"
	case NodeStep:
		return "step"
	case NodeCheckpoint:
		return "checkpoint"
	case NodeSubgraph:
		return "subgraph"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// ASTNode is the parse tree produced by BuildAST. It is a tagged union:
// which fields are meaningful depends on Type. Immutable once built; owned
// by the compiler until lowering.
type ASTNode struct {
	Type NodeType

	// Sequence
	Steps []*ASTNode

	// Parallel
	Branches []*ASTNode

	// Conditional
	Source    *ASTNode
	Condition string
	Target    *ASTNode

	// Step
	Name        string
	Instruction string
	Capture     string

	// Checkpoint
	Label string

	// Subgraph
	Child *ASTNode

	// Pos is the source position of the first token this node covers.
	Pos int
}
