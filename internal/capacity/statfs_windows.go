//go:build windows

package capacity

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// volumeStats returns total and available bytes for the volume holding path.
func volumeStats(path string) (Usage, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Usage{}, fmt.Errorf("utf16 path: %w", err)
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return Usage{}, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}

	return Usage{
		Total: int64(totalBytes),
		Free:  int64(freeBytesAvailable),
	}, nil
}
