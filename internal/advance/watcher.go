package advance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a file-backed dataset and synthesizes advances when
// the file changes. Writes are debounced so an engine flushing in small
// increments produces one advance per settle interval.
type Watcher struct {
	path     string
	source   string
	debounce time.Duration
	notify   func(Advance)
	logger   *slog.Logger
	seq      atomic.Uint64
}

// NewWatcher creates a watcher for the dataset file at path. notify is
// called once per debounced change with a monotonically increasing
// sequence.
func NewWatcher(path, source string, debounce time.Duration, notify func(Advance), logger *slog.Logger) *Watcher {
	if source == "" {
		source = "file:" + filepath.Base(path)
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:     path,
		source:   source,
		debounce: debounce,
		notify:   notify,
		logger:   logger,
	}
}

// Run watches the dataset file until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so the file can be replaced atomically.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.Info("watching dataset", "path", w.path, "source", w.source)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) fire() {
	adv := Advance{Source: w.source, Seq: w.seq.Add(1)}
	w.logger.Debug("dataset advanced", "source", adv.Source, "seq", adv.Seq)
	w.notify(adv)
}
