package normalize

import "strings"

// Username returns the canonical form of a username suitable for storage,
// lookups and identity comparisons. Normalization trims surrounding
// whitespace and lower-cases the name.
func Username(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Text trims surrounding whitespace from free-form message text. The
// result is empty when the input only contained whitespace.
func Text(s string) string {
	return strings.TrimSpace(s)
}
