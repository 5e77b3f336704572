package dsl

import (
	"fmt"

	"github.com/everydev1618/weave"
)

// DefaultCondition is the conditional-edge semantics applied when a `~>`
// has no `(if ...)` annotation directly before it. This is a documented
// convention, not an inference.
const DefaultCondition = "if failed"

// BuildAST consumes a token stream with operator-precedence parsing.
// Bracket grouping binds tightest, then `||`, then `->`, then `~>`.
// Repeated same-precedence operators fold left-associatively into one
// n-ary node, so a->b->c is a single 3-element sequence; that flat
// ordering is what the variable analyzer later leans on.
func BuildAST(tokens []Token) (*ASTNode, error) {
	if len(tokens) == 0 {
		return nil, &weave.SyntaxError{Pos: 0, Msg: "empty workflow"}
	}
	p := &astParser{tokens: tokens}
	node, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		tok := p.peek()
		return nil, &weave.SyntaxError{
			Pos: tok.Pos,
			Msg: fmt.Sprintf("unexpected %s %q", tok.Kind, tok.Value),
		}
	}
	return node, nil
}

type astParser struct {
	tokens []Token
	pos    int
}

func (p *astParser) eof() bool {
	return p.pos >= len(p.tokens)
}

func (p *astParser) peek() Token {
	return p.tokens[p.pos]
}

func (p *astParser) peekAt(offset int) (Token, bool) {
	if p.pos+offset >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.pos+offset], true
}

func (p *astParser) next() Token {
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

// parseConditional handles `~>`, the loosest operator. A condition token
// immediately preceding the arrow annotates it; a bare `~>` defaults to
// "if failed".
func (p *astParser) parseConditional() (*ASTNode, error) {
	left, err := p.parseSequence()
	if err != nil {
		return nil, err
	}

	for !p.eof() {
		var condition string
		switch p.peek().Kind {
		case TokenCondition:
			arrow, ok := p.peekAt(1)
			if !ok || arrow.Kind != TokenConditional {
				return nil, &weave.SyntaxError{
					Pos:  p.peek().Pos,
					Msg:  fmt.Sprintf("condition %q is not followed by ~>", p.peek().Value),
					Hint: "write the annotation directly before the arrow: a (if failed)~> b",
				}
			}
			condition = p.next().Value
			p.next() // consume ~>
		case TokenConditional:
			p.next()
			condition = DefaultCondition
		default:
			return left, nil
		}

		target, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		left = &ASTNode{
			Type:      NodeConditional,
			Source:    left,
			Condition: condition,
			Target:    target,
			Pos:       left.Pos,
		}
	}
	return left, nil
}

// parseSequence folds repeated `->` into one n-ary sequence.
func (p *astParser) parseSequence() (*ASTNode, error) {
	left, err := p.parseParallel()
	if err != nil {
		return nil, err
	}

	for !p.eof() && p.peek().Kind == TokenSequential {
		p.next()
		right, err := p.parseParallel()
		if err != nil {
			return nil, err
		}
		if left.Type == NodeSequence {
			left.Steps = append(left.Steps, right)
		} else {
			left = &ASTNode{Type: NodeSequence, Steps: []*ASTNode{left, right}, Pos: left.Pos}
		}
	}
	return left, nil
}

// parseParallel folds repeated `||` into one n-ary parallel.
func (p *astParser) parseParallel() (*ASTNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for !p.eof() && p.peek().Kind == TokenParallel {
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if left.Type == NodeParallel {
			left.Branches = append(left.Branches, right)
		} else {
			left = &ASTNode{Type: NodeParallel, Branches: []*ASTNode{left, right}, Pos: left.Pos}
		}
	}
	return left, nil
}

func (p *astParser) parsePrimary() (*ASTNode, error) {
	if p.eof() {
		return nil, &weave.SyntaxError{
			Pos: p.endPos(),
			Msg: "expected a step, checkpoint or bracketed group",
		}
	}

	tok := p.next()
	switch tok.Kind {
	case TokenStep, TokenStepWithInstruction:
		return &ASTNode{
			Type:        NodeStep,
			Name:        tok.Name,
			Instruction: tok.Instruction,
			Capture:     tok.Capture,
			Pos:         tok.Pos,
		}, nil

	case TokenCheckpoint:
		return &ASTNode{Type: NodeCheckpoint, Label: tok.Name, Pos: tok.Pos}, nil

	case TokenOpenBracket:
		child, err := p.parseConditional()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().Kind != TokenCloseBracket {
			return nil, &weave.SyntaxError{
				Pos:  tok.Pos,
				Msg:  fmt.Sprintf("unclosed bracket opened at position %d", tok.Pos),
				Hint: "add the matching ']'",
			}
		}
		p.next()
		return &ASTNode{Type: NodeSubgraph, Child: child, Pos: tok.Pos}, nil

	default:
		return nil, &weave.SyntaxError{
			Pos: tok.Pos,
			Msg: fmt.Sprintf("unexpected %s %q", tok.Kind, tok.Value),
		}
	}
}

func (p *astParser) endPos() int {
	if len(p.tokens) == 0 {
		return 0
	}
	last := p.tokens[len(p.tokens)-1]
	return last.Pos + len([]rune(last.Value))
}
