package watcher

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/watchit/internal/debounce"
	"github.com/mattjoyce/watchit/internal/glob"
	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/watch"
)

// DefaultDebounce is the quiet window used when none is configured.
const DefaultDebounce = time.Second

// Scheduler accepts watch triggers. *runner.Runner implements it.
type Scheduler interface {
	Trigger(watch.Definition) string
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.window = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithConfigured registers a callback run after every Configure that changed
// the subscription.
func WithConfigured(fn func(roots []string, watches int)) Option {
	return func(w *Watcher) { w.onConfigured = fn }
}

type entry struct {
	def  watch.Definition
	dir  string
	glob *glob.Glob
}

// Watcher maps filesystem events to watch triggers.
type Watcher struct {
	source       Source
	scheduler    Scheduler
	window       time.Duration
	logger       *slog.Logger
	onConfigured func([]string, int)

	// Pending triggers keyed by watch id, holding the last matching path.
	// The definition is looked up when the window closes so a reload in
	// between is honoured.
	debouncer *debounce.Debouncer[string, string]

	mu          sync.RWMutex
	entries     []entry
	roots       []string
	fingerprint string
}

// New creates a Watcher reading from source and triggering scheduler.
func New(source Source, scheduler Scheduler, opts ...Option) *Watcher {
	w := &Watcher{
		source:    source,
		scheduler: scheduler,
		window:    DefaultDebounce,
		logger:    log.WithComponent("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = debounce.New(w.window, w.fire)
	return w
}

func (w *Watcher) fire(id, path string) {
	logger := log.ForRun(w.logger, id, "")
	e, ok := w.entry(id)
	switch {
	case !ok:
		logger.Debug("watch gone before debounce elapsed", "path", path)
	case !e.matches(path):
		logger.Debug("watch no longer matches pending path", "path", path)
	default:
		logger.Debug("debounce elapsed, triggering", "path", path)
		w.scheduler.Trigger(e.def)
	}
}

func (w *Watcher) entry(id string) (entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, e := range w.entries {
		if e.def.ID == id {
			return e, true
		}
	}
	return entry{}, false
}

func (e entry) matches(path string) bool {
	return underRoot(e.dir, path) && e.glob.Match(path)
}

// Configure replaces the watch list. Invalid watches are skipped. The source
// is only resubscribed when the set of roots changes.
func (w *Watcher) Configure(defs []watch.Definition) error {
	entries := make([]entry, 0, len(defs))
	for _, def := range defs {
		v := watch.Validate(def)
		if !v.OK() {
			w.logger.Info("skipping invalid watch", "watch_id", def.ID, "invalid", v.Problems())
			continue
		}
		dir, err := watch.ResolveDirectory(def.Directory)
		if err != nil {
			continue
		}
		g, err := glob.Compile(def.Glob)
		if err != nil {
			continue
		}
		entries = append(entries, entry{def: def, dir: dir, glob: g})
	}

	roots := collapseRoots(entries)
	fp := fingerprint(roots)

	w.mu.Lock()
	prev := w.entries
	w.entries = entries
	unchanged := fp == w.fingerprint
	w.mu.Unlock()

	w.dropPending(prev, entries)

	if unchanged {
		w.logger.Debug("watch roots unchanged", "roots", len(roots))
		return nil
	}

	if err := w.source.Subscribe(roots); err != nil {
		return fmt.Errorf("subscribe to %d roots: %w", len(roots), err)
	}

	w.mu.Lock()
	w.roots = roots
	w.fingerprint = fp
	w.mu.Unlock()

	w.logger.Info("watching directories", "roots", roots, "watches", len(entries))
	if w.onConfigured != nil {
		w.onConfigured(roots, len(entries))
	}
	return nil
}

// dropPending cancels debounced triggers for watches that are gone.
func (w *Watcher) dropPending(prev, next []entry) {
	keep := make(map[string]struct{}, len(next))
	for _, e := range next {
		keep[e.def.ID] = struct{}{}
	}
	for _, e := range prev {
		if _, ok := keep[e.def.ID]; !ok {
			w.debouncer.Cancel(e.def.ID)
		}
	}
}

// Roots returns the subscribed roots.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.roots...)
}

// Watches returns the valid watches from the last Configure.
func (w *Watcher) Watches() []watch.Definition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]watch.Definition, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.def
	}
	return out
}

// HandleEvents debounces a trigger for every watch each event matches.
func (w *Watcher) HandleEvents(events []fsnotify.Event) {
	w.mu.RLock()
	entries := w.entries
	w.mu.RUnlock()

	for _, ev := range events {
		if ev.Op == fsnotify.Chmod {
			continue
		}
		for _, e := range entries {
			if !e.matches(ev.Name) {
				continue
			}
			w.logger.Debug("event matched watch", "watch_id", e.def.ID, "path", ev.Name, "op", ev.Op.String())
			w.debouncer.Push(e.def.ID, ev.Name)
		}
	}
}

// Run feeds source events to HandleEvents until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	events := w.source.Events()
	errs := w.source.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			w.HandleEvents([]fsnotify.Event{ev})
		case err := <-errs:
			// Event sources keep running after an error; log and continue.
			w.logger.Error("filesystem watch error", "error", err)
		}
	}
}

// Close drops pending triggers and closes the source.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.source.Close()
}

// collapseRoots returns the sorted, deduplicated roots with nested roots
// removed, since subscriptions are recursive.
func collapseRoots(entries []entry) []string {
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		dirs = append(dirs, e.dir)
	}
	sort.Strings(dirs)

	var roots []string
	for _, d := range dirs {
		if !coveredBy(roots, d) {
			roots = append(roots, d)
		}
	}
	return roots
}

func coveredBy(roots []string, dir string) bool {
	for _, r := range roots {
		if underRoot(r, dir) {
			return true
		}
	}
	return false
}

func fingerprint(roots []string) string {
	sum := blake3.Sum256([]byte(strings.Join(roots, "\n")))
	return hex.EncodeToString(sum[:])
}
