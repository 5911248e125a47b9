package validate

import "strings"

// NormalizeText prepares free-text content for the transport payload:
// CRLF and bare CR line endings become LF, and surrounding whitespace is
// trimmed.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
