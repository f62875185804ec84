// Package strings holds small string-slice helpers shared by config parsing.
package strings

import "strings"

// DedupeAndTrim trims each value, drops empties and keeps the first
// occurrence of each remaining value, in order. Comparison is
// case-sensitive.
//
//	DedupeAndTrim([]string{" gov ", "ops", "gov", ""}) // []string{"gov", "ops"}
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
