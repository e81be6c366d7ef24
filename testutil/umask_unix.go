//go:build !windows

package testutil

import (
	"testing"

	"golang.org/x/sys/unix"
)

// SetUmask sets the process umask for the duration of the test. Tests that
// call it must not run in parallel.
func SetUmask(t *testing.T, mask int) {
	t.Helper()
	old := unix.Umask(mask)
	t.Cleanup(func() { unix.Umask(old) })
}
