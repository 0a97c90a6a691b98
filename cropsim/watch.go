package cropsim

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// patternDebounce is how long to wait for further writes before reloading.
// Editors often produce several events per save.
const patternDebounce = 500 * time.Millisecond

// PatternWatcher reloads the detector's pattern table when the backing
// YAML file changes, so the lexicon can be tuned without a restart.
type PatternWatcher struct {
	path     string
	detector *Detector
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewPatternWatcher creates a watcher for the given pattern file feeding
// the given detector.
func NewPatternWatcher(path string, detector *Detector, logger *slog.Logger) (*PatternWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PatternWatcher{
		path:     path,
		detector: detector,
		watcher:  fsw,
		logger:   logger,
	}, nil
}

// Start begins watching. It watches the parent directory because editors
// replace files on save, which drops inode-level watches.
func (w *PatternWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.run(ctx)

	w.logger.Info("Pattern watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher.
func (w *PatternWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *PatternWatcher) run(ctx context.Context) {
	var pending bool
	timer := time.NewTimer(patternDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if pending {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
				}
				pending = true
				timer.Reset(patternDebounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Pattern watcher error", "error", err)

		case <-timer.C:
			pending = false
			w.reload()
		}
	}
}

// reload parses the pattern file and swaps it in. A malformed file keeps
// the previous table active.
func (w *PatternWatcher) reload() {
	table, err := LoadPatternTable(w.path)
	if err != nil {
		w.logger.Warn("Pattern reload failed, keeping current table",
			"path", w.path,
			"error", err)
		return
	}

	w.detector.SetTable(table)
	w.logger.Info("Pattern table reloaded",
		"path", w.path,
		"version", table.Version)
}
