package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a configuration file when it changes and hands every
// valid result to a callback. An invalid file is logged and skipped; the
// previous configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, onChange func(*Config), logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger.With().Str("component", "config").Str("path", path).Logger(),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file so that editors and tools which replace the file by rename
// are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("config reload failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Msg("reloaded config is invalid, keeping previous")
		return
	}
	w.logger.Info().Int("resources", len(cfg.Resources)).Msg("config reloaded")
	w.onChange(cfg)
}
