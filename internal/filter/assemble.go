package filter

import (
	"maps"
	"slices"
)

// Assemble returns the non-empty rule tokens of values, ordered by field name.
// The result doubles as the wire payload and the fencing key, so two calls with
// equal contents always yield identical slices. It is never nil.
func Assemble(values map[string]Value) []string {
	rules := make([]string, 0, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if tok := values[name].Token(); tok != "" {
			rules = append(rules, tok)
		}
	}
	return rules
}

// Equal reports whether two rule lists have the same length, order and values.
func Equal(a, b []string) bool {
	return slices.Equal(a, b)
}
