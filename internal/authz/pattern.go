package authz

import (
	"errors"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern matches a concrete, dot-segmented resource name against a resource_pattern: segments
// are separated by '.', '*' matches exactly one segment, and a trailing '*' or '**' matches the
// remainder of the resource name (zero or more trailing segments). gobwas/glob compiles each
// fixed segment (so a segment itself may contain partial wildcards like "docs-*"); the
// cross-segment "match the remainder" behavior has no equivalent in the library and is
// implemented here directly.
type Pattern struct {
	raw      string
	segments []glob.Glob
	open     bool // true when the pattern ends in a trailing '*' or '**' remainder segment
}

// CompilePattern validates and compiles a resource_pattern. Invalid patterns (empty segments,
// unparseable glob syntax) are rejected here, at grant-creation time, per spec.md §9.
func CompilePattern(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, errors.New("resource_pattern must not be empty")
	}
	parts := strings.Split(pattern, ".")
	open := false
	if last := parts[len(parts)-1]; last == "*" || last == "**" {
		open = true
		parts = parts[:len(parts)-1]
	}
	segments := make([]glob.Glob, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, errors.New("resource_pattern must not contain empty segments")
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.New("resource_pattern has invalid wildcard syntax: " + err.Error())
		}
		segments = append(segments, g)
	}
	if len(segments) == 0 && !open {
		return nil, errors.New("resource_pattern must not be empty")
	}
	return &Pattern{raw: pattern, segments: segments, open: open}, nil
}

// Match reports whether resource (itself dot-segmented, e.g. "database.accounts.rows") satisfies
// the pattern.
func (p *Pattern) Match(resource string) bool {
	resourceSegments := strings.Split(resource, ".")
	if p.open {
		if len(resourceSegments) < len(p.segments) {
			return false
		}
	} else if len(resourceSegments) != len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if !seg.Match(resourceSegments[i]) {
			return false
		}
	}
	return true
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }
