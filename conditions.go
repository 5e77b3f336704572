package weave

import "strings"

// Built-in condition forms. Anything else is evaluated by the containment
// heuristic in EvalCondition.
var builtinConditions = map[string]bool{
	"if passed":      true,
	"if failed":      true,
	"if all success": true,
	"if any success": true,
	"if all failed":  true,
	"if any failed":  true,
}

// IsBuiltinCondition reports whether text is one of the documented
// predicates. Used by the validator, which accepts unknown conditions with
// a warning since they may match dynamically against output content.
func IsBuiltinCondition(text string) bool {
	return builtinConditions[normalizeCondition(text)]
}

func normalizeCondition(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

// EvalCondition decides whether a conditional edge may be traversed, given
// the source node's output. The aggregate predicates only make sense on a
// parallel-merge source, whose output carries tributary results.
//
// Unrecognized condition text falls back to substring containment against
// the serialized output ("if contains X" and friends), defaulting to the
// source's success flag when nothing matches. The heuristic is deliberately
// loose; see DESIGN.md.
func EvalCondition(condition string, out *NodeOutput) bool {
	if out == nil {
		return false
	}
	cond := normalizeCondition(condition)
	if cond == "" {
		return true
	}

	switch cond {
	case "if passed", "if success":
		return out.Success
	case "if failed":
		return !out.Success
	case "if all success":
		return allTributaries(out, true)
	case "if any success":
		return anyTributary(out, true)
	case "if all failed":
		return allTributaries(out, false)
	case "if any failed":
		return anyTributary(out, false)
	}

	if phrase, ok := strings.CutPrefix(cond, "if contains "); ok {
		return containsFold(serializedOutput(out), strings.TrimSpace(phrase))
	}

	// Loose fallback: treat the condition body as a keyword to look for in
	// the output, then fall back to the success flag.
	phrase := strings.TrimSpace(strings.TrimPrefix(cond, "if "))
	if phrase != "" && containsFold(serializedOutput(out), phrase) {
		return true
	}
	return out.Success
}

func allTributaries(out *NodeOutput, success bool) bool {
	if len(out.Tributaries) == 0 {
		return out.Success == success
	}
	for _, t := range out.Tributaries {
		if t.Success != success {
			return false
		}
	}
	return true
}

func anyTributary(out *NodeOutput, success bool) bool {
	if len(out.Tributaries) == 0 {
		return out.Success == success
	}
	for _, t := range out.Tributaries {
		if t.Success == success {
			return true
		}
	}
	return false
}

func serializedOutput(out *NodeOutput) string {
	if out.Error != "" {
		return out.Result + "\n" + out.Error
	}
	return out.Result
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
