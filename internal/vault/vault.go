// Package vault performs the physical side of resource operations: creating,
// opening and copying files under a resource's storage root (its vault).
package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/internal/capacity"
	"github.com/vaultnode/vaultnode/internal/logging/audit"
	"github.com/vaultnode/vaultnode/internal/metrics"
	"github.com/vaultnode/vaultnode/internal/resource"
)

// Copy directions, used for metrics and audit events.
const (
	DirectionStage = "stage"
	DirectionSync  = "sync"
)

// Vault is the storage root of one resource node. It never retries a failed
// operation; choosing another resource is up to the caller.
type Vault struct {
	node       resource.Node
	guard      *capacity.Guard
	copier     *CopyEngine
	handles    *HandleTable
	copyBuffer int64
	metrics    *metrics.VaultMetrics
	audit      *audit.Logger
	logger     zerolog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithMetrics records operations in m.
func WithMetrics(m *metrics.VaultMetrics) Option {
	return func(v *Vault) {
		v.metrics = m
	}
}

// WithAudit records operations in the audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(v *Vault) {
		v.audit = a
	}
}

// WithCopyBufferSize sets the tier copy chunk size.
func WithCopyBufferSize(n int64) Option {
	return func(v *Vault) {
		v.copyBuffer = n
	}
}

// WithHandleLimit caps the number of files the vault keeps open at once.
func WithHandleLimit(n int) Option {
	return func(v *Vault) {
		v.handles.SetLimit(n)
	}
}

// WithCopyEngine replaces the tier copy engine.
func WithCopyEngine(e *CopyEngine) Option {
	return func(v *Vault) {
		v.copier = e
	}
}

// New creates a vault for node. The node must have a name and a vault path.
func New(node resource.Node, guard *capacity.Guard, logger zerolog.Logger, opts ...Option) (*Vault, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	logger = logger.With().Str("component", "vault").Str("resource", node.Name).Logger()

	v := &Vault{
		node:       node.WithDefaults(),
		guard:      guard,
		handles:    NewHandleTable(),
		copyBuffer: DefaultCopyBufferSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.guard == nil {
		v.guard = capacity.NewGuard(logger)
	}
	if v.copier == nil {
		v.copier = NewCopyEngine(logger)
	}
	return v, nil
}

// Node returns the resource the vault belongs to.
func (v *Vault) Node() resource.Node {
	return v.node
}

// Root returns the storage root.
func (v *Vault) Root() string {
	return v.node.VaultPath
}

// OpenHandles returns the number of files currently open.
func (v *Vault) OpenHandles() int {
	return v.handles.Len()
}

func (v *Vault) resolve(rc RequestContext) (string, error) {
	return Resolve(v.node.VaultPath, rc.PhysicalPath())
}

func (v *Vault) record(op, path string, err error) {
	if err != nil {
		v.logger.Debug().Err(err).Str("op", op).Str("path", path).Msg("vault operation failed")
	}
	if v.audit == nil {
		return
	}
	if err != nil {
		v.audit.LogVaultOp(v.node.Name, op, path, "failed", err.Error())
		return
	}
	v.audit.LogVaultOp(v.node.Name, op, path, "ok", "")
}

// Create admits and creates a new file, failing if it already exists. The
// high water mark is checked against the vault root and free space against
// the file's directory. The file gets the node's file mode exactly.
func (v *Vault) Create(rc RequestContext) (Handle, error) {
	obj, err := rc.File()
	if err != nil {
		return InvalidHandle, err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return InvalidHandle, err
	}

	if err := v.admit(path, obj.Size); err != nil {
		v.record("create", path, err)
		return InvalidHandle, err
	}

	mode := v.node.FileMode.Perm()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		err = opError("create", path, ErrFilesystem, err)
		v.record("create", path, err)
		return InvalidHandle, err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		err = opError("create", path, ErrFilesystem, err)
		v.record("create", path, err)
		return InvalidHandle, err
	}

	h, err := v.handles.Allocate(f)
	if err != nil {
		// The file is ours from O_EXCL; do not leave it behind.
		_ = f.Close()
		_ = os.Remove(path)
		v.record("create", path, err)
		return InvalidHandle, err
	}
	v.record("create", path, nil)
	return h, nil
}

// admit applies the capacity policy to a write of size bytes at path.
func (v *Vault) admit(path string, size int64) error {
	if v.guard.ExceedsHighWaterMark(v.node.VaultPath, v.node.HighWaterMark, size) {
		v.reject("capacity_exceeded", size)
		return opError("create", path, ErrCapacityExceeded,
			fmt.Errorf("file size %d exceeds high water mark %s", size, v.node.HighWaterMark))
	}
	ok, err := v.guard.HasRoomFor(filepath.Dir(path), size)
	if err != nil {
		return opError("create", path, ErrFilesystem, err)
	}
	if !ok {
		v.reject("insufficient_space", size)
		return opError("create", path, ErrInsufficientSpace,
			fmt.Errorf("file size %d is greater than space left on device", size))
	}
	return nil
}

func (v *Vault) reject(reason string, size int64) {
	v.metrics.AdmissionRejected(reason)
	if v.audit != nil {
		v.audit.LogAdmission(v.node.Name, reason, size, "")
	}
}

// Open opens an existing file with the object's flags and mode.
func (v *Vault) Open(rc RequestContext) (Handle, error) {
	obj, err := rc.File()
	if err != nil {
		return InvalidHandle, err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return InvalidHandle, err
	}

	mode := obj.Mode.Perm()
	if mode == 0 {
		mode = v.node.FileMode.Perm()
	}
	f, err := os.OpenFile(path, obj.Flags, mode)
	if err != nil {
		err = opError("open", path, ErrFilesystem, err)
		v.record("open", path, err)
		return InvalidHandle, err
	}

	h, err := v.handles.Allocate(f)
	if err != nil {
		_ = f.Close()
		v.record("open", path, err)
		return InvalidHandle, err
	}
	v.record("open", path, nil)
	return h, nil
}

// Read reads from an open file.
func (v *Vault) Read(h Handle, p []byte) (int, error) {
	f, err := v.handles.Get(h)
	if err != nil {
		return 0, err
	}
	n, err := f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, opError("read", f.Name(), ErrFilesystem, err)
	}
	return n, err
}

// Write writes to an open file.
func (v *Vault) Write(h Handle, p []byte) (int, error) {
	f, err := v.handles.Get(h)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if err != nil {
		return n, opError("write", f.Name(), ErrWrite, err)
	}
	return n, nil
}

// Seek repositions an open file.
func (v *Vault) Seek(h Handle, offset int64, whence int) (int64, error) {
	f, err := v.handles.Get(h)
	if err != nil {
		return 0, err
	}
	pos, err := f.Seek(offset, whence)
	if err != nil {
		return pos, opError("seek", f.Name(), ErrFilesystem, err)
	}
	return pos, nil
}

// Close closes an open file and releases its handle.
func (v *Vault) Close(h Handle) error {
	f, err := v.handles.Release(h)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return opError("close", f.Name(), ErrFilesystem, err)
	}
	return nil
}

// Unlink removes a file.
func (v *Vault) Unlink(rc RequestContext) error {
	if _, err := rc.File(); err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		err = opError("unlink", path, ErrFilesystem, err)
		v.record("unlink", path, err)
		return err
	}
	v.record("unlink", path, nil)
	return nil
}

// Stat returns file or collection metadata.
func (v *Vault) Stat(rc RequestContext) (fs.FileInfo, error) {
	path, err := v.resolve(rc)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, opError("stat", path, ErrFilesystem, err)
	}
	return info, nil
}

// Truncate sets the file to the object's size.
func (v *Vault) Truncate(rc RequestContext) error {
	obj, err := rc.File()
	if err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	if obj.Size < 0 {
		return opError("truncate", path, ErrFilesystem, fs.ErrInvalid)
	}
	if err := os.Truncate(path, obj.Size); err != nil {
		err = opError("truncate", path, ErrFilesystem, err)
		v.record("truncate", path, err)
		return err
	}
	v.record("truncate", path, nil)
	return nil
}

// Rename moves a file to newName, which is resolved against the vault root.
// Missing parent directories of the destination are created with the node's
// directory mode.
func (v *Vault) Rename(rc RequestContext, newName string) error {
	if _, err := rc.File(); err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	dest, err := Resolve(v.node.VaultPath, newName)
	if err != nil {
		return err
	}

	if err := MakeDirs(filepath.Dir(dest), v.node.DirMode); err != nil {
		v.metrics.MkdirFailed()
		v.record("rename", dest, err)
		return err
	}
	if err := os.Rename(path, dest); err != nil {
		err = opError("rename", path, ErrFilesystem, err)
		v.record("rename", path, err)
		return err
	}
	v.record("rename", dest, nil)
	return nil
}

// Mkdir creates a single collection directory with the node's directory mode.
func (v *Vault) Mkdir(rc RequestContext) error {
	if _, err := rc.Collection(); err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	mode := v.node.DirMode.Perm()
	if err := os.Mkdir(path, mode); err != nil {
		v.metrics.MkdirFailed()
		err = opError("mkdir", path, ErrDirectoryCreate, err)
		v.record("mkdir", path, err)
		return err
	}
	if err := os.Chmod(path, mode); err != nil {
		v.metrics.MkdirFailed()
		err = opError("mkdir", path, ErrDirectoryCreate, err)
		v.record("mkdir", path, err)
		return err
	}
	v.record("mkdir", path, nil)
	return nil
}

// MkdirAll provisions a collection and all missing parents.
func (v *Vault) MkdirAll(rc RequestContext) error {
	if _, err := rc.Collection(); err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	if err := MakeDirs(path, v.node.DirMode); err != nil {
		v.metrics.MkdirFailed()
		v.record("mkdir", path, err)
		return err
	}
	v.record("mkdir", path, nil)
	return nil
}

// Rmdir removes an empty collection.
func (v *Vault) Rmdir(rc RequestContext) error {
	if _, err := rc.Collection(); err != nil {
		return err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		err = opError("rmdir", path, ErrFilesystem, err)
		v.record("rmdir", path, err)
		return err
	}
	v.record("rmdir", path, nil)
	return nil
}

// ReadDir lists a collection.
func (v *Vault) ReadDir(rc RequestContext) ([]fs.DirEntry, error) {
	if _, err := rc.Collection(); err != nil {
		return nil, err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, opError("readdir", path, ErrFilesystem, err)
	}
	return entries, nil
}

// FreeSpace returns the free bytes of the filesystem holding the object's
// directory.
func (v *Vault) FreeSpace(rc RequestContext) (int64, error) {
	path, err := v.resolve(rc)
	if err != nil {
		return 0, err
	}
	usage, err := v.guard.FreeBytes(filepath.Dir(path))
	if err != nil {
		return 0, err
	}
	v.metrics.SetVaultUsage(v.node.Name, usage.Total, usage.Free)
	return usage.Free, nil
}

// StageToCache copies the archived object to cachePath.
func (v *Vault) StageToCache(rc RequestContext, cachePath string) (int64, error) {
	obj, err := rc.File()
	if err != nil {
		return 0, err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return 0, err
	}
	return v.copy(DirectionStage, path, cachePath, v.objectMode(obj))
}

// SyncToArchive copies cachePath back over the archived object.
func (v *Vault) SyncToArchive(rc RequestContext, cachePath string) (int64, error) {
	obj, err := rc.File()
	if err != nil {
		return 0, err
	}
	path, err := v.resolve(rc)
	if err != nil {
		return 0, err
	}
	return v.copy(DirectionSync, cachePath, path, v.objectMode(obj))
}

func (v *Vault) objectMode(obj FileObject) os.FileMode {
	if obj.Mode.Perm() == 0 {
		return v.node.FileMode
	}
	return obj.Mode
}

func (v *Vault) copy(direction, src, dst string, mode os.FileMode) (int64, error) {
	n, err := v.copier.Copy(src, dst, mode, v.copyBuffer)
	v.metrics.CopyDone(direction, n, copyErrorKind(err))
	v.record(direction, dst, err)
	if err != nil {
		return n, err
	}
	v.logger.Debug().
		Str("direction", direction).
		Str("source", src).
		Str("dest", dst).
		Int64("bytes", n).
		Msg("tier copy complete")
	return n, nil
}

// copyErrorKind maps a copy error to a metric label.
func copyErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceOpen):
		return "source_open"
	case errors.Is(err, ErrSourceStat):
		return "source_stat"
	case errors.Is(err, ErrSourceRead):
		return "source_read"
	case errors.Is(err, ErrNotARegularFile):
		return "not_regular"
	case errors.Is(err, ErrDestOpen):
		return "dest_open"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrCopyLengthMismatch):
		return "length_mismatch"
	default:
		return "other"
	}
}
