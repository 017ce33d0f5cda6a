package roster

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors a roster CSV file and re-imports it into the store when
// the file is modified, so mid-semester roster edits are picked up without a
// restart. It uses polling (not fsnotify) to keep dependencies minimal.
type Watcher struct {
	path     string
	store    Store
	interval time.Duration
	onImport func(count int)

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnImport sets a callback invoked with the student count after every
// successful re-import.
func WithOnImport(fn func(count int)) WatcherOption {
	return func(w *Watcher) { w.onImport = fn }
}

// NewWatcher imports the roster at path into store immediately and starts
// polling the file for changes in a background goroutine. A broken edit never
// touches the stored roster; the last successful import stays active.
func NewWatcher(ctx context.Context, path string, store Store, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		store:    store,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	count, hash, mtime, err := w.importAndHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster: initial import: %w", err)
	}
	w.lastHash = hash
	w.lastMtime = mtime
	slog.Info("roster imported", "path", path, "students", count)

	go w.poll(ctx)
	return w, nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check re-imports the roster file if it has changed since the last
// successful import.
func (w *Watcher) check(ctx context.Context) {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("roster watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	count, hash, newMtime, err := w.importAndHash(ctx)
	if err != nil {
		slog.Warn("roster watcher: re-import failed, keeping previous roster",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	changed := hash != w.lastHash
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	if !changed {
		// File was touched but content is identical.
		return
	}

	slog.Info("roster reloaded", "path", w.path, "students", count)
	if w.onImport != nil {
		w.onImport(count)
	}
}

// importAndHash reads the roster file, imports it into the store, and returns
// the student count alongside the file's SHA-256 hash and modification time.
func (w *Watcher) importAndHash(ctx context.Context) (int, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return 0, zeroHash, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return 0, zeroHash, time.Time{}, err
	}

	count, err := ImportCSV(ctx, w.store, bytes.NewReader(data))
	if err != nil {
		return 0, zeroHash, time.Time{}, err
	}
	return count, sha256.Sum256(data), info.ModTime(), nil
}
