//go:build !windows

package capacity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// volumeStats returns total and available bytes for the filesystem holding path.
// Free uses Bavail (space available to non-root writers).
func volumeStats(path string) (Usage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	// Bsize is int64 on linux but uint32 on darwin.
	bsize := int64(stat.Bsize) //nolint:unconvert
	return Usage{
		Total: int64(stat.Blocks) * bsize,
		Free:  int64(stat.Bavail) * bsize,
	}, nil
}
