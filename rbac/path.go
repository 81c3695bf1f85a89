package rbac

import (
	"strings"

	"github.com/ncatbot/ncatbot-go/errors"
)

// PermissionPath is an ordered, non-empty tuple of segments used both to
// declare permissions and to check against them. Wildcards ("*" matches
// exactly one segment, "**" matches one-or-more trailing segments) are
// only meaningful on the pattern side of a match; they must never be
// added to the permission registry itself.
type PermissionPath struct {
	raw  string
	path []string
}

// NewPath builds a PermissionPath from a dotted string.
func NewPath(dotted string) PermissionPath {
	return PermissionPath{raw: dotted, path: splitNonEmpty(dotted)}
}

// NewPathFromSegments builds a PermissionPath from already-split
// segments.
func NewPathFromSegments(segments []string) PermissionPath {
	return PermissionPath{raw: strings.Join(segments, "."), path: append([]string(nil), segments...)}
}

func splitNonEmpty(dotted string) []string {
	if dotted == "" {
		return nil
	}
	return strings.Split(dotted, ".")
}

// String returns the dotted representation.
func (p PermissionPath) String() string { return p.raw }

// Segments returns the path's individual segments.
func (p PermissionPath) Segments() []string {
	out := make([]string, len(p.path))
	copy(out, p.path)
	return out
}

// Len returns the number of segments.
func (p PermissionPath) Len() int { return len(p.path) }

// Get returns the segment at i, or def if i is out of range.
func (p PermissionPath) Get(i int, def string) string {
	if i < 0 || i >= len(p.path) {
		return def
	}
	return p.path[i]
}

// Join appends further dotted segments, returning a new PermissionPath.
// Empty strings are ignored so Join("") is a no-op.
func (p PermissionPath) Join(parts ...string) PermissionPath {
	segs := append([]string(nil), p.path...)
	for _, part := range parts {
		if part == "" {
			continue
		}
		segs = append(segs, splitNonEmpty(part)...)
	}
	return NewPathFromSegments(segs)
}

// HasWildcard reports whether any segment is "*" or "**".
func (p PermissionPath) HasWildcard() bool {
	for _, s := range p.path {
		if s == "*" || s == "**" {
			return true
		}
	}
	return false
}

// ErrBothWildcard is returned by MatchingPath when both the receiver and
// the argument carry wildcard segments; matching a pattern against
// another pattern is undefined.
var ErrBothWildcard = errors.New("rbac: cannot match two wildcard paths against each other")

// MatchingPath reports whether p (used as the pattern) matches other
// (the dotted concrete path being tested), honoring "*"/"**" segments in
// p. Either side running out first is a prefix match and counts as a
// hit — this mirrors the permissive "a.b matches a.b.c" behavior the
// engine relies on when checking a shallower declared permission
// against a deeper requested one, or vice versa.
func (p PermissionPath) MatchingPath(other string) (bool, error) {
	target := NewPath(other)
	if p.HasWildcard() && target.HasWildcard() {
		return false, ErrBothWildcard
	}
	return matchSegments(p.path, target.path), nil
}

func matchSegments(pattern, target []string) bool {
	i := 0
	for i < len(pattern) && i < len(target) {
		seg := pattern[i]
		if seg == "**" {
			return true
		}
		if seg != "*" && seg != target[i] {
			return false
		}
		i++
	}
	return true
}
