package vault

import (
	"fmt"
	"strings"
)

// Separator joins a vault root and an object path. Vault paths are always
// slash-separated, matching the logical paths the grid hands us.
const Separator = "/"

// Resolve maps a path relative to the vault root onto the physical path.
// Absolute paths and paths already under root are returned unchanged, so
// Resolve(root, Resolve(root, p)) == Resolve(root, p).
func Resolve(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: vault path is not set", ErrInvalidConfiguration)
	}
	if strings.HasPrefix(rel, Separator) || strings.HasPrefix(rel, root) {
		return rel, nil
	}
	return root + Separator + rel, nil
}

// Relative strips the vault root from a physical path. It returns false if
// the path is not under root.
func Relative(root, abs string) (string, bool) {
	prefix := root + Separator
	if root == "" || !strings.HasPrefix(abs, prefix) {
		return "", false
	}
	return abs[len(prefix):], true
}
