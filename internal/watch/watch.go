// internal/watch/watch.go
//
// Live reload of a resolved configuration.
//
/*
Context
--------
New resolves once, synchronously; a failure there is returned to the
caller and nothing is left open.  On success the parent directory of every
source file is observed with fsnotify and events are filtered by file name,
so editors that save through rename are still seen.  A directory source is
observed as a whole so added and removed files trigger a reload too.

Every relevant event restarts one debounce timer.  When it fires the file
and secret caches are cleared and a fresh settings pass runs.  A successful pass is
diffed against the held snapshot; a non-empty diff replaces the snapshot and
calls OnChange.  A failed pass calls OnError and leaves the snapshot alone.

	initial-load → watching ⇄ reloading → closed

Notes
-----
  • Reloads are serialised; callbacks run on the reload goroutine, one at a
    time, and a panicking callback is recovered and logged.  A panic during
    the pass itself is reported through OnError as ErrPanicked.
  • The closed flag is checked when a reload is scheduled and again when
    the timer fires.  Close never interrupts a reload already running.
  • Registration failures are logged at DEBUG and otherwise ignored.
*/
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/yanizio/confres/internal/diag"
	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/envfile"
	"github.com/yanizio/confres/internal/loader"
	"github.com/yanizio/confres/internal/metrics"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/settings"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// ErrClosed is returned by Reload after Close.
var ErrClosed = errors.New("watch: watcher closed")

// OnChange receives the new snapshot, the previous one, and the changes
// between them.  Snapshots must be treated as read-only.
type OnChange func(next, prev map[string]any, changes []diff.Change)

// OnError receives a failed reload.  The error is a *diag.AggregateError.
type OnError func(err error)

// Config describes what to watch.
type Config struct {
	Schema   schema.Node
	Options  settings.Options
	OnChange OnChange
	OnError  OnError
	Debounce time.Duration
	Logger   *zap.SugaredLogger
}

// clearer is implemented by file loaders with a cache.
type clearer interface{ Clear() }

// purger is implemented by secret resolvers with a cache.
type purger interface{ Purge() }

// Watcher holds the latest good snapshot and reloads it on change.
type Watcher struct {
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	current map[string]any
	files   []string
	timer   *time.Timer
	gen     uint64
	closed  bool

	reloadMu sync.Mutex

	fsw   *fsnotify.Watcher
	names map[string]bool
	dir   string
	done  chan struct{}
	wg    sync.WaitGroup
}

// New resolves cfg once and starts observing its source files.
func New(ctx context.Context, cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = zap.S()
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = log
	}

	st := settings.New(cfg.Schema, cfg.Options)
	if err := st.Load(ctx); err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:     cfg,
		log:     log,
		current: st.Plain(),
		files:   st.Files(),
		names:   make(map[string]bool),
		done:    make(chan struct{}),
	}
	w.observe()
	return w, nil
}

// Config returns the latest successfully loaded snapshot.
func (w *Watcher) Config() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Files lists the config files behind the current snapshot.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

// Close stops observation and cancels any pending reload.  It is safe to
// call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	w.log.Debugw("watcher closed")
	return err
}

/*──────────────────────────── observation ─────────────────────────────────*/

func (w *Watcher) observe() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debugw("watcher unavailable", "err", err)
		return
	}
	w.fsw = fsw

	dirs := make(map[string]bool)
	track := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			w.log.Debugw("watch path skipped", "path", path, "err", err)
			return
		}
		w.names[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for _, f := range w.files {
		track(f)
	}
	if w.cfg.Options.Env {
		for _, f := range w.cfg.Options.EnvFiles {
			track(f)
		}
	}
	if d := w.cfg.Options.Dir; d != "" {
		if abs, err := filepath.Abs(d); err == nil {
			w.dir = abs
			dirs[abs] = true
		}
	}

	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			w.log.Debugw("watch registration failed", "dir", d, "err", err)
		}
	}

	w.wg.Add(1)
	go w.loop()
	w.log.Debugw("watching", "dirs", len(dirs), "files", len(w.names))
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debugw("watch error", "err", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if w.names[abs] {
		return true
	}
	if w.dir != "" && filepath.Dir(abs) == w.dir {
		base := filepath.Base(abs)
		return !strings.HasPrefix(base, ".") && loader.Supported(base)
	}
	return false
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() { w.fire(gen) })
}

func (w *Watcher) fire(gen uint64) {
	w.mu.Lock()
	stale := w.closed || gen != w.gen
	w.mu.Unlock()
	if stale {
		return
	}
	_ = w.Reload(context.Background())
}

/*──────────────────────────── reload ──────────────────────────────────────*/

// Reload runs one fresh pass now.  It is what the debounce timer calls and
// may also be triggered directly, e.g. on SIGHUP.
func (w *Watcher) Reload(ctx context.Context) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if c, ok := w.cfg.Options.Loader.(clearer); ok {
		c.Clear()
	} else {
		loader.Clear()
	}
	envfile.Clear()
	if p, ok := w.cfg.Options.Secrets.(purger); ok {
		p.Purge()
	}

	start := time.Now()
	st := settings.New(w.cfg.Schema, w.cfg.Options)
	if err := safeLoad(ctx, st); err != nil {
		err = normalize(err)
		metrics.ReloadsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		w.log.Warnw("reload failed, keeping previous configuration", "err", err)
		w.report(err)
		return err
	}

	next := st.Plain()
	w.mu.Lock()
	prev := w.current
	changes := diff.Diff(prev, next, w.cfg.Schema)
	w.files = st.Files()
	if len(changes) > 0 {
		w.current = next
	}
	w.mu.Unlock()

	if len(changes) == 0 {
		metrics.ReloadsTotal.WithLabelValues(metrics.OutcomeUnchanged).Inc()
		w.log.Debugw("reload produced no changes", "elapsed", time.Since(start))
		return nil
	}

	metrics.ReloadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	for _, c := range changes {
		metrics.ConfigChangesTotal.WithLabelValues(string(c.Type)).Inc()
	}
	w.log.Infow("configuration reloaded", "changes", len(changes), "elapsed", time.Since(start))
	w.notify(next, prev, changes)
	return nil
}

func (w *Watcher) notify(next, prev map[string]any, changes []diff.Change) {
	defer w.recoverCallback("OnChange")
	w.cfg.OnChange(next, prev, changes)
}

func (w *Watcher) report(err error) {
	if w.cfg.OnError == nil {
		return
	}
	defer w.recoverCallback("OnError")
	w.cfg.OnError(err)
}

func (w *Watcher) recoverCallback(name string) {
	if r := recover(); r != nil {
		w.log.Errorw("watch callback panicked", "callback", name, "panic", fmt.Sprint(r))
	}
}

// ErrPanicked wraps a panic raised while a reload was resolving, e.g. by a
// caller-supplied validator.
var ErrPanicked = errors.New("watch: reload panicked")

// safeLoad runs one pass on the reload goroutine, where an escaping panic
// would take the process down.
func safeLoad(ctx context.Context, st *settings.Settings) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return st.Load(ctx)
}

// normalize guarantees OnError always sees a *diag.AggregateError.
func normalize(err error) error {
	var agg *diag.AggregateError
	if errors.As(err, &agg) {
		return err
	}
	return &diag.AggregateError{Cause: err}
}
