package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace.
// Used by the CLI and TUI to display a visible placeholder for optional
// fields in table output.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}
