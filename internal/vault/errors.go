package vault

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/vaultnode/vaultnode/internal/resource"
)

// Vault error kinds. Every filesystem fault is an *OpError whose Kind is one
// of these and whose Err is the underlying OS error.
var (
	ErrInvalidConfiguration = resource.ErrInvalidConfiguration

	ErrDirectoryCreate    = errors.New("directory create failed")
	ErrSourceOpen         = errors.New("source open failed")
	ErrSourceStat         = errors.New("source stat failed")
	ErrSourceRead         = errors.New("source read failed")
	ErrNotARegularFile    = errors.New("source is not a regular file")
	ErrDestOpen           = errors.New("destination open failed")
	ErrWrite              = errors.New("write failed")
	ErrCopyLengthMismatch = errors.New("copied length does not match source size")
	ErrFilesystem         = errors.New("filesystem operation failed")

	ErrWrongObjectKind = errors.New("wrong object kind for operation")
	ErrInvalidHandle   = errors.New("invalid file handle")

	// Capacity policy rejections. These are not faults: the caller should try
	// another resource.
	ErrCapacityExceeded  = errors.New("high water mark exceeded")
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// OpError records a failed vault operation, the path it acted on, the kind of
// failure, and the OS error that caused it.
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// Errno returns the OS error code carried by err, if any.
func Errno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// IsPolicyRejection reports whether err is a capacity policy rejection rather
// than a fault.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrInsufficientSpace)
}
