// Package text normalizes text content and generates and applies unified
// diffs between text documents.
package text

import "strings"

// Sanitize normalizes text for storage: carriage returns are stripped and a
// trailing newline is appended when the text is non-empty. Sanitizing an
// already sanitized text returns it unchanged.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

// splitLines splits sanitized text into lines without the trailing newline.
// Empty text yields no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// joinLines is the inverse of splitLines.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
