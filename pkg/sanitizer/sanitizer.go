// Package sanitizer normalizes untrusted user input before it reaches
// storage or comparison logic.
package sanitizer

import "strings"

// NormalizeEmail lowercases and trims an email address so that lookups and
// uniqueness checks are case-insensitive. Structurally invalid input is
// returned trimmed and lowercased; validation happens elsewhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
