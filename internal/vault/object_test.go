package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextFile(t *testing.T) {
	rc := ForFile(FileObject{PhysicalPath: "a/b", Mode: 0600, Flags: os.O_RDONLY, Size: 12})

	assert.Equal(t, KindFile, rc.Kind())
	assert.Equal(t, "a/b", rc.PhysicalPath())

	f, err := rc.File()
	require.NoError(t, err)
	assert.Equal(t, int64(12), f.Size)

	_, err = rc.Collection()
	assert.ErrorIs(t, err, ErrWrongObjectKind)
}

func TestRequestContextCollection(t *testing.T) {
	rc := ForCollection(CollectionObject{PhysicalPath: "coll"})

	assert.Equal(t, KindCollection, rc.Kind())
	assert.Equal(t, "coll", rc.PhysicalPath())

	_, err := rc.File()
	assert.ErrorIs(t, err, ErrWrongObjectKind)
}

func TestRequestContextZeroValue(t *testing.T) {
	var rc RequestContext
	assert.Equal(t, "", rc.PhysicalPath())
	assert.Equal(t, "unknown", rc.Kind().String())

	_, err := rc.File()
	assert.ErrorIs(t, err, ErrWrongObjectKind)
	_, err = rc.Collection()
	assert.ErrorIs(t, err, ErrWrongObjectKind)
}

func TestOpError(t *testing.T) {
	cause := &fs.PathError{Op: "open", Path: "/v/f", Err: syscall.EACCES}
	err := fmt.Errorf("staging: %w", opError("copy", "/v/f", ErrSourceOpen, cause))

	assert.ErrorIs(t, err, ErrSourceOpen)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), "copy /v/f: source open failed")

	errno, ok := Errno(err)
	require.True(t, ok)
	assert.Equal(t, syscall.EACCES, errno)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "copy", opErr.Op)
}

func TestOpErrorWithoutCause(t *testing.T) {
	err := opError("copy", "/dir", ErrNotARegularFile, nil)
	assert.Equal(t, "copy /dir: source is not a regular file", err.Error())
	assert.ErrorIs(t, err, ErrNotARegularFile)

	_, ok := Errno(err)
	assert.False(t, ok)
}

func TestIsPolicyRejection(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{opError("create", "p", ErrCapacityExceeded, nil), true},
		{opError("create", "p", ErrInsufficientSpace, nil), true},
		{opError("create", "p", ErrFilesystem, syscall.EIO), false},
		{opError("copy", "p", ErrCopyLengthMismatch, nil), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPolicyRejection(tt.err), "%v", tt.err)
	}
}
