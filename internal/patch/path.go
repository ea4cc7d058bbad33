package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// AppendSegment is the path segment that addresses "one past the end" of an
// array: add appends, remove pops, replace targets the last element.
const AppendSegment = "-"

// Path is an ordered sequence of object keys or array indices.
// The empty Path addresses the document root.
type Path []string

// P builds a Path from segments.
func P(segments ...string) Path {
	return Path(segments)
}

// ParsePointer parses an RFC 6901 JSON pointer ("/a/b/0").
// The empty string addresses the root.
func ParsePointer(ptr string) (Path, error) {
	if ptr == "" {
		return Path{}, nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, fmt.Errorf("invalid pointer %q: must start with '/'", ptr)
	}
	parts := strings.Split(ptr[1:], "/")
	path := make(Path, len(parts))
	for i, part := range parts {
		path[i] = unescapeSegment(part)
	}
	return path, nil
}

// MustParsePointer is like ParsePointer but panics on error.
func MustParsePointer(ptr string) Path {
	p, err := ParsePointer(ptr)
	if err != nil {
		panic(err)
	}
	return p
}

var (
	segmentEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	segmentUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

func unescapeSegment(s string) string {
	if !strings.Contains(s, "~") {
		return s
	}
	return segmentUnescaper.Replace(s)
}

// String renders the path as a JSON pointer.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(segmentEscaper.Replace(seg))
	}
	return b.String()
}

// IsRoot reports whether p addresses the whole document.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Parent returns p without its last segment. The root's parent is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final segment, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Append returns a new path with segments added; p is not modified.
func (p Path) Append(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Clone returns an independent copy.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// parseIndex parses an array index segment. Leading zeros and signs are
// rejected, matching RFC 6901.
func parseIndex(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 || strconv.Itoa(n) != seg {
		return 0, false
	}
	return n, true
}
