package weave

import (
	"regexp"
	"sort"
	"sync"
)

// MaxInterpolatedLen caps how many runes of a captured value are substituted
// into a downstream instruction. Longer values are cut with a visible marker
// so instructions stay within practical size limits.
const MaxInterpolatedLen = 2000

const truncationMarker = "...[truncated]"

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_-]*)\}`)

// ReferencedVariables returns the {name} references found in text, in order
// of first appearance, without duplicates.
func ReferencedVariables(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Variables is the store of captured step outputs, keyed by capture name.
// It is global to one execution. Under normal flow each name is written
// once; re-execution via steering overwrites.
type Variables struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewVariables creates an empty store.
func NewVariables() *Variables {
	return &Variables{values: make(map[string]string)}
}

// Set stores a value under name, overwriting any previous value.
func (v *Variables) Set(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[name] = value
}

// Get returns the value for name if set.
func (v *Variables) Get(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[name]
	return val, ok
}

// Delete removes a name from the store.
func (v *Variables) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, name)
}

// Names returns the set names in sorted order.
func (v *Variables) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone copies the store. Used by steering snapshots.
func (v *Variables) Clone() *Variables {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c := NewVariables()
	for k, val := range v.values {
		c.values[k] = val
	}
	return c
}

// Interpolate replaces every {name} in text with the stored value for name.
// A reference to an unset name is a hard *VariableError, not literal
// passthrough. Values longer than MaxInterpolatedLen runes are truncated
// with a marker.
func (v *Variables) Interpolate(text string) (string, error) {
	var missing *VariableError

	result := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := v.Get(name)
		if !ok {
			if missing == nil {
				missing = &VariableError{Name: name, Available: v.Names()}
			}
			return match
		}
		return truncate(val, MaxInterpolatedLen)
	})

	if missing != nil {
		return "", missing
	}
	return result, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncationMarker
}
