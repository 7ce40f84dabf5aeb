package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Watcher keeps the assistant's config in step with the file on disk. It
// polls the file's modification time and can be asked to re-read it at once
// with [Watcher.Reload], which the binary wires to SIGHUP.
//
// Only edits that decode and validate reach the callback. A half-saved or
// broken file is logged and the previous config stays in force.
type Watcher struct {
	fs       afero.Fs
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	prepare  func(*Config)
	log      *slog.Logger

	// reloadMu serialises reloads from the poll loop and from Reload so the
	// callback never sees two transitions at once.
	reloadMu sync.Mutex

	mu   sync.Mutex
	snap snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// snapshot is the last config accepted from the file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
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

// WithFs reads the file through fs instead of the OS filesystem.
func WithFs(fs afero.Fs) WatcherOption {
	return func(w *Watcher) { w.fs = fs }
}

// WithPrepare runs fn on every freshly decoded config before validation,
// e.g. to re-apply environment and command-line overrides.
func WithPrepare(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.prepare = fn }
}

// WithWatcherLogger sets the logger. Defaults to slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and starts polling it in the background. It fails
// when the initial load fails; there is no previous config to fall back to.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		fs:       afero.NewOsFs(),
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.snap = snap

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.cfg
}

// Reload re-reads the file regardless of its modification time. It returns
// the validation error when the file is rejected; the previous config then
// stays current.
func (w *Watcher) Reload() error {
	return w.reload(true)
}

// Stop ends the polling goroutine. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.reload(false); err != nil {
				w.log.Warn("config: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// reload reads the file when forced or when its mtime moved, and hands a
// config with different content to the callback.
func (w *Watcher) reload(force bool) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.mu.Lock()
	prev := w.snap
	w.mu.Unlock()

	if !force {
		info, err := w.fs.Stat(w.path)
		if err != nil {
			return err
		}
		if info.ModTime().Equal(prev.mtime) {
			return nil
		}
	}

	next, err := w.read()
	if err != nil {
		return err
	}

	w.mu.Lock()
	if next.sum == prev.sum {
		// Touched but unchanged; remember the mtime so the next poll is cheap.
		w.snap.mtime = next.mtime
		w.mu.Unlock()
		return nil
	}
	w.snap = next
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path, "sections", Diff(prev.cfg, next.cfg).Sections())

	// Outside mu so the callback may call Current.
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
	return nil
}

// read loads, hashes and validates the file.
func (w *Watcher) read() (snapshot, error) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := afero.ReadFile(w.fs, w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := decode(bytes.NewReader(data), w.prepare)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
