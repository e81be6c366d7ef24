package vault

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// MakeDirs creates path and any missing parents. Every directory it creates
// ends up with exactly mode, whatever the process umask is: the mode is
// applied with chmod after creation instead of relying on the mask. A
// component that already exists is not an error, so concurrent calls for
// overlapping paths both succeed.
func MakeDirs(path string, mode os.FileMode) error {
	if path == "" {
		return opError("mkdir", path, ErrDirectoryCreate, fs.ErrInvalid)
	}

	// Collect prefixes leaf-first, then create them root-first.
	var prefixes []string
	for p := filepath.Clean(path); ; {
		prefixes = append(prefixes, p)
		parent := filepath.Dir(p)
		if parent == p || parent == "." {
			break
		}
		p = parent
	}

	perm := mode.Perm()
	for i := len(prefixes) - 1; i >= 0; i-- {
		dir := prefixes[i]
		err := os.Mkdir(dir, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return opError("mkdir", dir, ErrDirectoryCreate, err)
		}
		if err := os.Chmod(dir, perm); err != nil {
			return opError("mkdir", dir, ErrDirectoryCreate, err)
		}
	}
	return nil
}
