// Package capacity evaluates filesystem usage of a resource vault and the
// high-water-mark admission policy for new writes.
package capacity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/internal/resource"
)

// ErrFilesystemQuery is returned when the vault's mount cannot be statted.
var ErrFilesystemQuery = errors.New("filesystem query failed")

// Usage is a point-in-time view of the filesystem holding a vault.
// It is recomputed on every call and never cached.
type Usage struct {
	Path  string `json:"path"`  // the existing directory that was queried
	Total int64  `json:"total"` // capacity in bytes
	Free  int64  `json:"free"`  // bytes available to unprivileged writers (Bavail)
}

// Used returns Total - Free.
func (u Usage) Used() int64 {
	return u.Total - u.Free
}

// StatFunc queries the filesystem containing path.
type StatFunc func(path string) (Usage, error)

// Guard answers capacity questions about vault paths. It holds no mutable
// state and is safe for concurrent use.
type Guard struct {
	stat   StatFunc
	logger zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithStatFunc replaces the filesystem query, mainly for tests.
func WithStatFunc(fn StatFunc) Option {
	return func(g *Guard) {
		g.stat = fn
	}
}

// NewGuard creates a guard backed by statfs.
func NewGuard(logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{
		stat:   volumeStats,
		logger: logger.With().Str("component", "capacity").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FreeBytes returns the usage of the filesystem holding storageRoot. The root
// may not exist yet, so the nearest existing ancestor is queried instead.
func (g *Guard) FreeBytes(storageRoot string) (Usage, error) {
	if storageRoot == "" {
		return Usage{}, fmt.Errorf("%w: storage root is not set", resource.ErrInvalidConfiguration)
	}
	dir, err := nearestExistingDir(storageRoot)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %s: %w", ErrFilesystemQuery, storageRoot, err)
	}
	usage, err := g.stat(dir)
	if err != nil {
		return Usage{}, fmt.Errorf("%w: %s: %w", ErrFilesystemQuery, storageRoot, err)
	}
	usage.Path = dir
	return usage, nil
}

// ExceedsHighWaterMark reports whether writing candidateBytes would push used
// space past the threshold. Fail-open: a disabled policy or a failed usage
// query never rejects; the query failure is logged.
func (g *Guard) ExceedsHighWaterMark(storageRoot string, hwm resource.HighWaterMark, candidateBytes int64) bool {
	if !hwm.IsEnforced() {
		return false
	}
	usage, err := g.FreeBytes(storageRoot)
	if err != nil {
		g.logger.Error().Err(err).Str("vault", storageRoot).Msg("high water mark check skipped")
		return false
	}
	exceeded := hwm.Exceeded(usage.Used(), candidateBytes)
	if exceeded {
		threshold, _ := hwm.Threshold()
		g.logger.Debug().
			Str("vault", storageRoot).
			Int64("used", usage.Used()).
			Int64("candidate", candidateBytes).
			Int64("threshold", threshold).
			Msg("high water mark exceeded")
	}
	return exceeded
}

// HasRoomFor reports whether candidateBytes fit in the free space of the
// filesystem holding storageRoot. A negative size means unknown and always fits.
func (g *Guard) HasRoomFor(storageRoot string, candidateBytes int64) (bool, error) {
	if candidateBytes < 0 {
		return true, nil
	}
	usage, err := g.FreeBytes(storageRoot)
	if err != nil {
		return false, err
	}
	return usage.Free >= candidateBytes, nil
}

// nearestExistingDir walks up from path until it finds something that exists.
func nearestExistingDir(path string) (string, error) {
	p := filepath.Clean(path)
	for {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		p = parent
	}
}
