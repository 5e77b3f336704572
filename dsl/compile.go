package dsl

import (
	"strings"

	"github.com/everydev1618/weave"
)

// Compile turns workflow text into an executable graph: tokenize, parse,
// lower, then run the static checks and the variable analysis. The
// returned graph is valid against dir and safe to hand to an engine.
func Compile(text string, dir weave.Directory) (*weave.Graph, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &weave.SyntaxError{Pos: 0, Msg: "empty workflow"}
	}
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	ast, err := BuildAST(tokens)
	if err != nil {
		return nil, err
	}
	g, err := Lower(ast)
	if err != nil {
		return nil, err
	}
	if err := Validate(g, tokens, dir); err != nil {
		return nil, err
	}
	if err := AnalyzeVariables(g); err != nil {
		return nil, err
	}
	return g, nil
}
