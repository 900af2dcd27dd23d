// Package casing rewrites the CamelCase keys of cloud API documents into
// snake_case.
package casing

import (
	"strings"
	"unicode"
)

// SnakeCase converts a CamelCase identifier. A run of capitals is kept as
// one word, so DBInstanceIdentifier becomes db_instance_identifier.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// NormalizeKeys returns a copy of a decoded JSON document with every object
// key converted by SnakeCase. Values are left untouched.
func NormalizeKeys(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[SnakeCase(k)] = NormalizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = NormalizeKeys(val)
		}
		return out
	default:
		return doc
	}
}
