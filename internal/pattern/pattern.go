// Package pattern compiles glob-style path patterns and matches them against
// absolute file paths. A pattern is a comma-separated list of terms; within a
// term, "**" matches any number of path segments (including zero) and "*"
// matches any run of characters inside a single segment. A term without a
// leading '/' is anchored with an implicit "/**/" prefix.
package pattern

import (
	"fmt"
	"strings"
)

const doubleStar = "**"

// Pattern is a compiled path pattern.
type Pattern struct {
	source string
	terms  [][]string
	all    bool
}

// All matches every path.
var All = mustCompile("/**")

// Compile parses a path pattern.
func Compile(pathPattern string) (*Pattern, error) {
	if pathPattern == "" {
		return nil, fmt.Errorf("empty path pattern")
	}

	p := &Pattern{source: pathPattern}
	for _, term := range strings.Split(pathPattern, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if !strings.HasPrefix(term, "/") {
			term = "/**/" + term
		}

		segments := splitSegments(term)
		if len(segments) == 0 {
			return nil, fmt.Errorf("invalid path pattern term: %q", term)
		}
		if len(segments) == 1 && segments[0] == doubleStar {
			p.all = true
		}
		p.terms = append(p.terms, segments)
	}

	if len(p.terms) == 0 {
		return nil, fmt.Errorf("path pattern has no terms: %q", pathPattern)
	}
	return p, nil
}

func mustCompile(pathPattern string) *Pattern {
	p, err := Compile(pathPattern)
	if err != nil {
		panic(err)
	}
	return p
}

func splitSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// String returns the original pattern source.
func (p *Pattern) String() string { return p.source }

// MatchesAll reports whether the pattern accepts any path.
func (p *Pattern) MatchesAll() bool { return p.all }

// Matches reports whether the given absolute path matches the pattern.
func (p *Pattern) Matches(path string) bool {
	if p.all {
		return true
	}
	segments := splitSegments(path)
	for _, term := range p.terms {
		if matchSegments(term, segments) {
			return true
		}
	}
	return false
}

// MatchesPrefix reports whether any path under the given directory path could
// match the pattern. Tree walkers use it to prune subtrees early.
func (p *Pattern) MatchesPrefix(dirPath string) bool {
	if p.all {
		return true
	}
	segments := splitSegments(dirPath)
	for _, term := range p.terms {
		if matchPrefix(term, segments) {
			return true
		}
	}
	return false
}

func matchSegments(term, segments []string) bool {
	if len(term) == 0 {
		return len(segments) == 0
	}
	if term[0] == doubleStar {
		// "**" consumes zero or more segments.
		if matchSegments(term[1:], segments) {
			return true
		}
		return len(segments) > 0 && matchSegments(term, segments[1:])
	}
	if len(segments) == 0 {
		return false
	}
	return matchSegment(term[0], segments[0]) && matchSegments(term[1:], segments[1:])
}

func matchPrefix(term, segments []string) bool {
	if len(segments) == 0 {
		// Deeper entries may still satisfy the remaining term.
		return true
	}
	if len(term) == 0 {
		return false
	}
	if term[0] == doubleStar {
		return true
	}
	return matchSegment(term[0], segments[0]) && matchPrefix(term[1:], segments[1:])
}

// matchSegment matches a single segment against a term segment where '*'
// matches any run of characters.
func matchSegment(pat, s string) bool {
	if pat == "*" {
		return true
	}
	if !strings.Contains(pat, "*") {
		return pat == s
	}

	parts := strings.Split(pat, "*")

	// The first part must anchor at the beginning, the last at the end.
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	if !strings.HasSuffix(s, last) {
		return false
	}
	s = s[:len(s)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}
