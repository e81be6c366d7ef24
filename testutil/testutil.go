// Package testutil provides shared test utilities and mocks for vaultnode tests.
package testutil

import (
	"crypto/rand"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TempDir creates a temporary directory for testing and returns a cleanup function.
func TempDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "vaultnode-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return dir, func() {
		_ = os.RemoveAll(dir)
	}
}

// TempFile creates a temporary file with the given content and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// RandomFile writes size random bytes to path and returns them.
func RandomFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate data: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return data
}

// Perm returns the permission bits of path.
func Perm(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	return info.Mode().Perm()
}

// MockFile is an in-memory file for copy tests. It reports StatSize from
// Stat regardless of how much ReadData it actually yields, which makes it
// easy to simulate a source that shrinks mid-copy.
type MockFile struct {
	ReadData []byte
	ReadErr  error
	StatSize int64
	StatMode fs.FileMode
	StatErr  error

	WriteData  []byte
	WriteErr   error
	ShortWrite bool // write one byte less than asked

	Closed bool
}

func (m *MockFile) Read(b []byte) (n int, err error) {
	if len(m.ReadData) == 0 {
		if m.ReadErr != nil {
			return 0, m.ReadErr
		}
		return 0, io.EOF
	}
	n = copy(b, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockFile) Write(b []byte) (n int, err error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if m.ShortWrite && len(b) > 0 {
		m.WriteData = append(m.WriteData, b[:len(b)-1]...)
		return len(b) - 1, nil
	}
	m.WriteData = append(m.WriteData, b...)
	return len(b), nil
}

func (m *MockFile) Close() error {
	m.Closed = true
	return nil
}

func (m *MockFile) Stat() (fs.FileInfo, error) {
	if m.StatErr != nil {
		return nil, m.StatErr
	}
	return MockFileInfo{FileName: "mock", FileSize: m.StatSize, FileMode: m.StatMode}, nil
}

// MockFileInfo is a static fs.FileInfo.
type MockFileInfo struct {
	FileName string
	FileSize int64
	FileMode fs.FileMode
}

func (i MockFileInfo) Name() string       { return i.FileName }
func (i MockFileInfo) Size() int64        { return i.FileSize }
func (i MockFileInfo) Mode() fs.FileMode  { return i.FileMode }
func (i MockFileInfo) ModTime() time.Time { return time.Time{} }
func (i MockFileInfo) IsDir() bool        { return i.FileMode.IsDir() }
func (i MockFileInfo) Sys() any           { return nil }
