// Package hierarchy parses resource hierarchy strings: the chain of resource
// names from the root of a resource tree down to the leaf that holds a
// replica's bytes, joined by a single reserved delimiter ("root/child/leaf").
package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates resource names in a hierarchy string.
const Delimiter = "/"

// ErrInvalidHierarchyPath is returned for empty hierarchy strings, strings
// without a delimiter and strings with an empty segment.
var ErrInvalidHierarchyPath = errors.New("invalid hierarchy path")

// Hierarchy is a parsed, non-empty resource chain ordered root to leaf.
type Hierarchy struct {
	names []string
}

// Parse splits a hierarchy string into its resource names. A hierarchy has
// at least a root and a leaf.
func Parse(s string) (Hierarchy, error) {
	if s == "" {
		return Hierarchy{}, fmt.Errorf("%w: empty string", ErrInvalidHierarchyPath)
	}
	if !strings.Contains(s, Delimiter) {
		return Hierarchy{}, fmt.Errorf("%w: missing delimiter in %q", ErrInvalidHierarchyPath, s)
	}
	names := strings.Split(s, Delimiter)
	for i, n := range names {
		if n == "" {
			return Hierarchy{}, fmt.Errorf("%w: empty segment %d in %q", ErrInvalidHierarchyPath, i, s)
		}
	}
	return Hierarchy{names: names}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Hierarchy {
	h, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Leaf returns the last resource name, the one holding the bytes.
func (h Hierarchy) Leaf() string {
	if len(h.names) == 0 {
		return ""
	}
	return h.names[len(h.names)-1]
}

// Root returns the first resource name.
func (h Hierarchy) Root() string {
	if len(h.names) == 0 {
		return ""
	}
	return h.names[0]
}

// Depth returns the number of resources in the chain.
func (h Hierarchy) Depth() int {
	return len(h.names)
}

// Names returns a copy of the resource names, root first.
func (h Hierarchy) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Contains reports whether name appears anywhere in the chain.
func (h Hierarchy) Contains(name string) bool {
	for _, n := range h.names {
		if n == name {
			return true
		}
	}
	return false
}

// AddChild returns a new hierarchy with name appended as the leaf.
// The receiver is not modified.
func (h Hierarchy) AddChild(name string) (Hierarchy, error) {
	if name == "" || strings.Contains(name, Delimiter) {
		return Hierarchy{}, fmt.Errorf("%w: bad child name %q", ErrInvalidHierarchyPath, name)
	}
	names := make([]string, len(h.names), len(h.names)+1)
	copy(names, h.names)
	return Hierarchy{names: append(names, name)}, nil
}

// String joins the chain back into its delimited form.
func (h Hierarchy) String() string {
	return strings.Join(h.names, Delimiter)
}
