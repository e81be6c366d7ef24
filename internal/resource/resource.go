// Package resource describes a storage resource node: a named vault on a host
// with an availability status and a capacity policy.
package resource

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfiguration is returned when a node is missing required
// settings such as its vault path.
var ErrInvalidConfiguration = errors.New("invalid resource configuration")

// Status is the operational status of a resource.
type Status int

const (
	StatusUp Status = iota
	StatusDown
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus parses "up" or "down" (case-insensitive). An empty string is up.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "up":
		return StatusUp, nil
	case "down":
		return StatusDown, nil
	default:
		return StatusUp, fmt.Errorf("unknown resource status %q", s)
	}
}

// Default permission bits for vault entries. Directories and files are
// world-readable so system processes outside the grid can read them.
const (
	DefaultDirMode  os.FileMode = 0755
	DefaultFileMode os.FileMode = 0644
)

// Node is one storage resource. It is treated as an immutable value for the
// duration of a request; status changes arrive as a new Node.
type Node struct {
	Name          string
	Location      string // host identifier the resource is served from
	Status        Status
	VaultPath     string // storage root
	HighWaterMark HighWaterMark
	DirMode       os.FileMode
	FileMode      os.FileMode

	// Properties holds the raw key/value pairs from the resource context string.
	Properties map[string]string
}

// IsDown reports whether the node is marked down.
func (n Node) IsDown() bool {
	return n.Status == StatusDown
}

// Property returns a context property and whether it was set.
func (n Node) Property(key string) (string, bool) {
	v, ok := n.Properties[key]
	return v, ok
}

// Validate checks the fields every vault operation depends on.
func (n Node) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfiguration)
	}
	if strings.Contains(n.Name, "/") {
		return fmt.Errorf("%w: name %q must not contain '/'", ErrInvalidConfiguration, n.Name)
	}
	if n.VaultPath == "" {
		return fmt.Errorf("%w: resource %s has no vault path", ErrInvalidConfiguration, n.Name)
	}
	return nil
}

// WithDefaults returns a copy of n with zero modes replaced by the defaults.
func (n Node) WithDefaults() Node {
	if n.DirMode == 0 {
		n.DirMode = DefaultDirMode
	}
	if n.FileMode == 0 {
		n.FileMode = DefaultFileMode
	}
	return n
}
