// Package graph derives the data-flow graph of a workflow document: it scans
// blocks for {placeholder} references, matches them against declared outputs
// and assigns execution levels from the resulting edges.
package graph

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a reference name for equality comparison: NFKC,
// whitespace runs collapsed to one space, trimmed, lower-cased. Two names
// refer to the same signal iff their normalized forms are equal.
func Normalize(name string) string {
	return strings.ToLower(clean(name))
}

// clean applies NFKC and whitespace collapsing but keeps the author's casing.
func clean(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
