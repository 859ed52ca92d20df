package configx

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"go.eggybyte.com/o11y/core/errors"
	"go.eggybyte.com/o11y/core/log"
)

// DefaultDebounce is the quiet period applied to bursts of file events.
const DefaultDebounce = 100 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Load     LoadOptions   // Sources re-read on every change; File is required
	Logger   log.Logger    // Logger for reload outcomes
	Debounce time.Duration // Quiet period before reloading (default: 100ms)
	OnChange func(*Config) // Optional callback after a successful reload
}

// Watcher reloads a Store when its YAML file changes.
// Invalid reloads are logged and the current configuration is kept.
//
// The file may be a symlink, as in a Kubernetes ConfigMap volume where the
// kubelet swaps the ..data link: any event in the directory re-resolves the
// link and reloads when its target moved.
type Watcher struct {
	opts    WatchOptions
	store   *Store
	watcher *fsnotify.Watcher
	target  string // resolved path of the file, read by Run only

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher starts watching opts.Load.File and its directory.
// The directory is watched so editors that save by rename are picked up.
func NewWatcher(store *Store, opts WatchOptions) (*Watcher, error) {
	if opts.Load.File == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "config file path is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "configx.NewWatcher", err)
	}
	if err := fw.Add(filepath.Dir(opts.Load.File)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(errors.CodeInvalidArgument, "configx.NewWatcher", err, "watch directory of %s", opts.Load.File)
	}

	return &Watcher{
		opts:    opts,
		store:   store,
		watcher: fw,
		target:  resolve(opts.Load.File),
		done:    make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	base := filepath.Base(w.opts.Load.File)
	w.opts.Logger.Info("config watcher started", log.Str("path", w.opts.Load.File))
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.changed(event, base) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Error(err, "config watcher error")
		}
	}
}

// Close stops the watcher and releases its file descriptors.
func (w *Watcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return nil
	default:
		close(w.done)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// changed reports whether event may have changed the file's content.
func (w *Watcher) changed(event fsnotify.Event, base string) bool {
	target := resolve(w.opts.Load.File)
	moved := target != w.target
	w.target = target
	if moved {
		return true
	}
	return filepath.Base(event.Name) == base &&
		event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// resolve follows symlinks in path. A missing file resolves to "".
func resolve(path string) string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	return target
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.opts.Load)
	if err != nil {
		w.opts.Logger.Error(err, "invalid configuration, keeping current", log.Str("path", w.opts.Load.File))
		return
	}
	w.store.Replace(cfg)
	w.opts.Logger.Info("configuration reloaded",
		log.Str("path", w.opts.Load.File),
		log.Int("base_sample_rate", cfg.BaseSampleRate),
		log.Any("enabled", cfg.Enabled),
	)
	if w.opts.OnChange != nil {
		w.opts.OnChange(cfg)
	}
}
