// Package watch re-evaluates permit documents whenever they change on disk.
//
// It watches the directory of a file store. Every created or rewritten
// document is decoded and passed through the engine once its writes have
// settled; removed documents are reported as such. This is what backs the
// `ptw watch` command, which shows blocking answers as soon as someone saves
// an edit from another terminal.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/store"
)

// DefaultDebounce coalesces the burst of events produced by one save.
const DefaultDebounce = 100 * time.Millisecond

// Result is the outcome for one changed document.
type Result struct {
	Path       string
	PermitID   string
	Permit     *models.Permit
	Evaluation *engine.Evaluation
	Removed    bool
	Err        error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInitialScan evaluates every existing document when Run starts.
func WithInitialScan() Option {
	return func(w *Watcher) { w.initialScan = true }
}

// Watcher turns filesystem events in a permit directory into Results.
type Watcher struct {
	dir         string
	engine      *engine.Engine
	fs          *fsnotify.Watcher
	debounce    time.Duration
	initialScan bool

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	closed  bool
}

// New watches dir. The directory must exist.
func New(dir string, eng *engine.Engine, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      filepath.Clean(dir),
		engine:   eng,
		fs:       fsw,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run delivers Results to handle until ctx is cancelled or the watcher is
// closed. handle is called from Run's goroutine only.
func (w *Watcher) Run(ctx context.Context, handle func(Result)) error {
	if w.initialScan {
		paths, err := w.documents()
		if err != nil {
			return err
		}
		for _, path := range paths {
			handle(w.evaluate(path))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-w.ready:
			handle(w.evaluate(path))
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if res, immediate := w.handleEvent(event); immediate {
				handle(res)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			handle(Result{Path: w.dir, Err: err})
		}
	}
}

// Close stops the watcher and pending timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

// isDocument reports whether name is a permit document rather than a lock
// file, temp file or something unrelated.
func isDocument(path string) bool {
	name := filepath.Base(path)
	return filepath.Ext(name) == store.DocumentExt && !strings.HasPrefix(name, ".")
}

func (w *Watcher) documents() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && isDocument(e.Name()) {
			out = append(out, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// handleEvent schedules writes and reports removals straight away.
func (w *Watcher) handleEvent(event fsnotify.Event) (Result, bool) {
	if !isDocument(event.Name) {
		return Result{}, false
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(event.Name)
		return Result{}, false
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
		return Result{Path: event.Name, PermitID: permitID(event.Name), Removed: true}, true
	default:
		return Result{}, false
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		select {
		case w.ready <- path:
		default:
			// Run is far behind; the next write reschedules the document.
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) evaluate(path string) Result {
	res := Result{Path: path, PermitID: permitID(path)}
	p, err := store.ReadDocument(path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			res.Removed = true
			return res
		}
		res.Err = err
		return res
	}
	res.Permit = p
	res.PermitID = p.ID
	res.Evaluation = w.engine.Evaluate(p)
	return res
}

func permitID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), store.DocumentExt)
}
