// Package normalize holds the canonical forms used for storage and comparison.
package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization trims surrounding whitespace
// and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Content returns message text with surrounding whitespace removed.
// An empty result means the message must be rejected.
func Content(s string) string {
	return strings.TrimSpace(s)
}

// Role lower-cases a role name so "Admin" and "admin" compare equal.
func Role(r string) string {
	return strings.ToLower(strings.TrimSpace(r))
}
