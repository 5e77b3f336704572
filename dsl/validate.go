package dsl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/everydev1618/weave"
)

// suggestionThreshold is the maximum edit distance for a "did you mean"
// hint on an unknown step name.
const suggestionThreshold = 3

// Validate runs the static graph checks and aggregates every failure so
// the operator sees all problems at once: bracket balance (re-derived from
// tokens), unknown step names, connectivity, unconditional cycles. The
// condition well-formedness check never fails; unrecognized condition text
// is accepted with a warning since it may match dynamically against
// output content.
func Validate(g *weave.Graph, tokens []Token, dir weave.Directory) error {
	var errs []error
	errs = append(errs, checkBrackets(tokens)...)
	errs = append(errs, checkStepNames(g, dir)...)
	errs = append(errs, checkConnectivity(g)...)
	errs = append(errs, checkCycles(g)...)
	warnConditions(g)
	return errors.Join(errs...)
}

// checkBrackets re-derives balance from the token stream: depth never goes
// negative and ends at zero.
func checkBrackets(tokens []Token) []error {
	depth := 0
	var lastOpen Token
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenOpenBracket:
			depth++
			lastOpen = tok
		case TokenCloseBracket:
			depth--
			if depth < 0 {
				return []error{&weave.ValidationError{
					Check: "brackets",
					Msg:   fmt.Sprintf("']' at position %d has no matching '['", tok.Pos),
					Hint:  "remove it or add an opening bracket",
				}}
			}
		}
	}
	if depth > 0 {
		return []error{&weave.ValidationError{
			Check: "brackets",
			Msg:   fmt.Sprintf("'[' at position %d is never closed", lastOpen.Pos),
			Hint:  "add the matching ']'",
		}}
	}
	return nil
}

// checkStepNames resolves every step node against the agent directory. An
// unresolved name is a compile-time error, with a nearest-name suggestion
// when one is close enough.
func checkStepNames(g *weave.Graph, dir weave.Directory) []error {
	if dir == nil {
		return nil
	}
	var errs []error
	reported := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Kind != weave.KindStep || reported[n.StepName] {
			continue
		}
		if dir.Resolve(n.StepName).Found {
			continue
		}
		reported[n.StepName] = true
		ve := &weave.ValidationError{
			Check: "unknown-step",
			Msg:   fmt.Sprintf("step %q is not in the agent directory", n.StepName),
			Nodes: []int{n.ID},
		}
		if suggestion := nearestName(n.StepName, dir.Names()); suggestion != "" {
			ve.Hint = fmt.Sprintf("did you mean %q?", suggestion)
		}
		errs = append(errs, ve)
	}
	return errs
}

func nearestName(name string, candidates []string) string {
	best := ""
	bestDist := suggestionThreshold + 1
	for _, c := range candidates {
		if d := levenshtein.Distance(strings.ToLower(name), strings.ToLower(c), nil); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// checkConnectivity verifies every node is reachable by forward traversal
// from the entry set. The entry set is the nodes with no incoming edge;
// a workflow that loops back into its first node has none, so the first
// lowered node stands in.
func checkConnectivity(g *weave.Graph) []error {
	if len(g.Nodes) == 0 {
		return nil
	}
	starts := g.Roots()
	if len(starts) == 0 {
		starts = []int{0}
	}
	reached := make(map[int]bool)
	stack := append([]int(nil), starts...)
	for _, id := range starts {
		reached[id] = true
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.Outgoing(cur) {
			if !reached[e.To] {
				reached[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}

	var orphaned []int
	var names []string
	for _, n := range g.Nodes {
		if !reached[n.ID] {
			orphaned = append(orphaned, n.ID)
			names = append(names, n.DisplayName())
		}
	}
	if len(orphaned) == 0 {
		return nil
	}
	return []error{&weave.ValidationError{
		Check: "connectivity",
		Msg:   "unreachable nodes: " + strings.Join(names, ", "),
		Nodes: orphaned,
		Hint:  "connect them with ->, || or ~>, or remove them",
	}}
}

// checkCycles finds cycles by depth-first traversal. A cycle is permitted
// only when at least one of its edges carries a condition, so a run can
// escape it; a fully unconditional cycle can never terminate and is fatal.
func checkCycles(g *weave.Graph) []error {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.Nodes))
	parentEdge := make([]weave.Edge, len(g.Nodes))
	var errs []error

	var visit func(id int)
	visit = func(id int) {
		color[id] = grey
		for _, e := range g.Outgoing(id) {
			switch color[e.To] {
			case white:
				parentEdge[e.To] = e
				visit(e.To)
			case grey:
				// Back edge: reconstruct the cycle e.To -> ... -> id -> e.To.
				cycle := []weave.Edge{e}
				for cur := id; cur != e.To; cur = parentEdge[cur].From {
					cycle = append(cycle, parentEdge[cur])
				}
				if !cycleHasEscape(cycle) {
					errs = append(errs, unconditionalCycleError(g, cycle))
				}
			}
		}
		color[id] = black
	}

	for _, n := range g.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return errs
}

func cycleHasEscape(cycle []weave.Edge) bool {
	for _, e := range cycle {
		if e.Condition != "" {
			return true
		}
	}
	return false
}

func unconditionalCycleError(g *weave.Graph, cycle []weave.Edge) error {
	ids := make([]int, 0, len(cycle))
	names := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		ids = append(ids, cycle[i].From)
		names = append(names, g.Node(cycle[i].From).DisplayName())
	}
	names = append(names, names[0])
	return &weave.ValidationError{
		Check: "cycle",
		Msg:   "unconditional cycle: " + strings.Join(names, " -> "),
		Nodes: ids,
		Hint:  "give at least one edge in the loop an (if ...) condition so the run can escape",
	}
}

// warnConditions logs edges whose condition text is not one of the
// documented predicates or an "if contains" form.
func warnConditions(g *weave.Graph) {
	for _, e := range g.Edges {
		if e.Condition == "" || weave.IsBuiltinCondition(e.Condition) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(e.Condition)), "if contains ") {
			continue
		}
		slog.Warn("unrecognized condition, will be matched against output content",
			"condition", e.Condition, "from", e.From, "to", e.To)
	}
}
