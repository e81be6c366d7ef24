//go:build windows

package testutil

import "testing"

// SetUmask is a no-op on Windows, which has no umask.
func SetUmask(t *testing.T, _ int) {
	t.Helper()
}
