package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/pkg/bytesize"
)

// DefaultCopyBufferSize is the chunk size used when the caller passes none.
const DefaultCopyBufferSize = 4 * bytesize.MB

// SourceFile is the read side of a tier copy.
type SourceFile interface {
	io.ReadCloser
	Stat() (fs.FileInfo, error)
}

// DestFile is the write side of a tier copy.
type DestFile interface {
	io.WriteCloser
}

// CopyEngine streams files between the cache and archive tiers. It holds no
// locks: two copies to the same destination race and the last writer wins.
type CopyEngine struct {
	openSource func(path string) (SourceFile, error)
	openDest   func(path string, mode os.FileMode) (DestFile, error)
	logger     zerolog.Logger
}

// CopyOption configures a CopyEngine.
type CopyOption func(*CopyEngine)

// WithSourceOpener replaces how sources are opened.
func WithSourceOpener(fn func(path string) (SourceFile, error)) CopyOption {
	return func(e *CopyEngine) {
		e.openSource = fn
	}
}

// WithDestOpener replaces how destinations are opened.
func WithDestOpener(fn func(path string, mode os.FileMode) (DestFile, error)) CopyOption {
	return func(e *CopyEngine) {
		e.openDest = fn
	}
}

// NewCopyEngine creates a copy engine backed by the local filesystem.
func NewCopyEngine(logger zerolog.Logger, opts ...CopyOption) *CopyEngine {
	e := &CopyEngine{
		openSource: openSourceFile,
		openDest:   openDestFile,
		logger:     logger.With().Str("component", "copy").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func openSourceFile(path string) (SourceFile, error) {
	return os.Open(path)
}

func openDestFile(path string, mode os.FileMode) (DestFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(mode.Perm()); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Copy streams src to dst in chunks of bufferBytes and verifies that the
// number of bytes written equals the size src reported before the copy.
// dst is created with mode or truncated if it exists. A failed copy leaves
// whatever was written in place. The returned count is valid on error.
func (e *CopyEngine) Copy(src, dst string, mode os.FileMode, bufferBytes int64) (int64, error) {
	if bufferBytes <= 0 {
		bufferBytes = DefaultCopyBufferSize
	}

	in, err := e.openSource(src)
	if err != nil {
		return 0, opError("copy", src, ErrSourceOpen, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, opError("copy", src, ErrSourceStat, err)
	}
	if !info.Mode().IsRegular() {
		return 0, opError("copy", src, ErrNotARegularFile, nil)
	}

	out, err := e.openDest(dst, mode)
	if err != nil {
		return 0, opError("copy", dst, ErrDestOpen, err)
	}

	written, err := e.stream(in, out, src, dst, bufferBytes)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = opError("copy", dst, ErrWrite, cerr)
	}
	if err != nil {
		return written, err
	}

	if written != info.Size() {
		e.logger.Error().
			Str("source", src).
			Str("dest", dst).
			Int64("written", written).
			Int64("expected", info.Size()).
			Msg("copy length mismatch")
		return written, opError("copy", dst, ErrCopyLengthMismatch,
			fmt.Errorf("wrote %d bytes, source is %d bytes", written, info.Size()))
	}
	return written, nil
}

func (e *CopyEngine) stream(in io.Reader, out io.Writer, src, dst string, bufferBytes int64) (int64, error) {
	buf := make([]byte, bufferBytes)
	var written int64
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			w, werr := out.Write(buf[:n])
			written += int64(w)
			if werr == nil && w != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, opError("copy", dst, ErrWrite, werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, opError("copy", src, ErrSourceRead, rerr)
		}
	}
}
