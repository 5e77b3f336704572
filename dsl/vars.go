package dsl

import (
	"errors"
	"fmt"

	"github.com/everydev1618/weave"
)

// AnalyzeVariables checks every {name} reference against the captures
// declared earlier in the graph. A reference with no producer, or whose
// producer is declared after the first consumer, would always fail at run
// time with an unset variable, so both are surfaced at compile time.
func AnalyzeVariables(g *weave.Graph) error {
	producers := make(map[string]int)
	for _, n := range g.Nodes {
		if n.Capture == "" {
			continue
		}
		if _, seen := producers[n.Capture]; !seen {
			producers[n.Capture] = n.ID
		}
	}

	var errs []error
	for _, n := range g.Nodes {
		for _, name := range n.Uses {
			prod, ok := producers[name]
			if !ok {
				errs = append(errs, &weave.ValidationError{
					Check: "variables",
					Msg:   fmt.Sprintf("node #%d %s references {%s} but no step captures it", n.ID, n.DisplayName(), name),
					Nodes: []int{n.ID},
					Hint:  fmt.Sprintf("add :%s after the step that should produce it", name),
				})
				continue
			}
			if prod > n.ID {
				errs = append(errs, &weave.ValidationError{
					Check: "variables",
					Msg: fmt.Sprintf("node #%d %s references {%s} before node #%d %s captures it",
						n.ID, n.DisplayName(), name, prod, g.Node(prod).DisplayName()),
					Nodes: []int{n.ID, prod},
					Hint:  "move the capturing step earlier in the workflow",
				})
			}
		}
	}
	return errors.Join(errs...)
}
