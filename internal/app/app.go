// Package app wires the watcher, runner, event hub and history store into one
// long-running service and keeps it in step with the config file.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/watchit/internal/config"
	"github.com/mattjoyce/watchit/internal/debounce"
	"github.com/mattjoyce/watchit/internal/events"
	"github.com/mattjoyce/watchit/internal/fsinfo"
	"github.com/mattjoyce/watchit/internal/history"
	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/runner"
	"github.com/mattjoyce/watchit/internal/storage"
	"github.com/mattjoyce/watchit/internal/watch"
	"github.com/mattjoyce/watchit/internal/watcher"
)

const (
	hubCapacity    = 256
	reloadDebounce = 250 * time.Millisecond
	pruneInterval  = time.Hour
)

var (
	ErrWatchNotFound   = config.ErrWatchNotFound
	ErrHistoryDisabled = errors.New("history is disabled")
	ErrClosed          = errors.New("app is closed")
)

// Option customizes an App.
type Option func(*options)

type options struct {
	source    watcher.Source
	spawn     runner.SpawnFunc
	listeners []runner.Listener
}

// WithSource replaces the filesystem event source.
func WithSource(src watcher.Source) Option {
	return func(o *options) { o.source = src }
}

// WithSpawner replaces the process spawner used by the runner.
func WithSpawner(fn runner.SpawnFunc) Option {
	return func(o *options) { o.spawn = fn }
}

// WithListener adds a runner listener after the built-in ones.
func WithListener(l runner.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// WatchStatus is one configured watch as seen by the API and the monitor.
type WatchStatus struct {
	Definition watch.Definition `json:"definition"`
	Directory  string           `json:"directory"`
	Validity   watch.Validity   `json:"validity"`
	Valid      bool             `json:"valid"`
	Running    bool             `json:"running"`
	LastRun    *LastRun         `json:"last_run,omitempty"`
}

type configuredEvent struct {
	Roots   []string `json:"roots"`
	Watches int      `json:"watches"`
}

type reloadEvent struct {
	Path    string          `json:"path"`
	Changes []watch.Changed `json:"changes"`
}

// App is the running watchit service.
type App struct {
	logger  *slog.Logger
	hub     *events.Hub
	runner  *runner.Runner
	watcher *watcher.Watcher
	status  *statusTracker
	db      *sql.DB
	store   *history.Store
	rec     *history.Recorder

	mu     sync.RWMutex
	cfg    *config.Config
	digest string

	reloadMu   sync.Mutex
	reloads    *debounce.Debouncer[string, struct{}]
	cfgWatcher *fsnotify.Watcher
	cfgDirs    map[string]struct{}
	cfgFiles   map[string]struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New builds an App for cfg. Nothing is watched or run until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		logger: log.WithComponent("app"),
		hub:    events.NewHub(hubCapacity),
		status: newStatusTracker(),
		cfg:    cfg,
		done:   make(chan struct{}),
	}

	listeners := runner.Listeners{
		hubListener{hub: a.hub},
		logListener{logger: log.WithComponent("runs")},
		a.status,
	}

	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(context.Background(), cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.db = db
		a.store = history.New(db)
		a.rec = history.NewRecorder(a.store)
		listeners = append(listeners, a.rec)
	}
	listeners = append(listeners, o.listeners...)

	source := o.source
	if source == nil {
		src, err := watcher.NewFSNotifySource(cfg.Service.IgnoreDirs)
		if err != nil {
			_ = a.closeDB()
			return nil, err
		}
		source = src
	}

	var runnerOpts []runner.Option
	if o.spawn != nil {
		runnerOpts = append(runnerOpts, runner.WithSpawner(o.spawn))
	}
	a.runner = runner.New(runner.Config{
		Shell:        cfg.Service.Shell,
		MatchTimeout: cfg.Service.MatchTimeout,
	}, listeners, runnerOpts...)

	a.watcher = watcher.New(source, a.runner,
		watcher.WithDebounce(cfg.Service.Debounce),
		watcher.WithConfigured(func(roots []string, n int) {
			a.hub.Publish(events.WatcherConfigured, configuredEvent{Roots: roots, Watches: n})
		}),
	)

	if len(cfg.Files) > 0 {
		if digest, err := config.HashFiles(cfg.Files); err == nil {
			a.digest = digest
		}
	}
	a.reloads = debounce.New(reloadDebounce, func(string, struct{}) {
		if err := a.Reload(); err != nil {
			a.logger.Error("config reload failed; keeping previous configuration", "error", err)
		}
	})
	return a, nil
}

// Hub returns the event hub carrying run and config events.
func (a *App) Hub() *events.Hub { return a.hub }

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Start subscribes to the configured directories and processes events until
// ctx is done.
func (a *App) Start(ctx context.Context) error {
	cfg := a.Config()
	if cfg.Path != "" {
		if err := a.watchConfig(cfg.Files); err != nil {
			a.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	warnNetworkDirs(a.logger, cfg.Watches)
	if err := a.watcher.Configure(cfg.Watches); err != nil {
		return err
	}

	if a.store != nil && cfg.History.Retention > 0 {
		a.wg.Add(1)
		go a.pruneLoop(ctx, cfg.History.Retention)
	}

	a.logger.Info("watchit running", "watches", len(cfg.Watches), "roots", a.watcher.Roots())
	err := a.watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// TriggerNow runs a watch immediately, bypassing the debounce window.
func (a *App) TriggerNow(id string) (string, error) {
	def, ok := a.Config().Watch(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWatchNotFound, id)
	}
	runID := a.runner.Trigger(def)
	if runID == "" {
		return "", ErrClosed
	}
	return runID, nil
}

// Stop cancels the in-flight run of a watch. It reports whether one existed.
func (a *App) Stop(id string) (bool, error) {
	if _, ok := a.Config().Watch(id); !ok {
		return false, fmt.Errorf("%w: %s", ErrWatchNotFound, id)
	}
	return a.runner.Stop(id), nil
}

// Status returns every configured watch in config order.
func (a *App) Status() []WatchStatus {
	cfg := a.Config()
	out := make([]WatchStatus, 0, len(cfg.Watches))
	for _, def := range cfg.Watches {
		v := watch.Validate(def)
		st := WatchStatus{
			Definition: def,
			Directory:  watch.AbbreviateHome(def.Directory),
			Validity:   v,
			Valid:      v.OK(),
			Running:    a.runner.Running(def.ID),
		}
		if last, ok := a.status.get(def.ID); ok {
			st.LastRun = &last
		}
		out = append(out, st)
	}
	return out
}

// Tasks returns the runs currently in flight.
func (a *App) Tasks() []runner.Task {
	return a.runner.Tasks()
}

// Runs returns recorded runs, newest first. Runs completed before the call
// are included.
func (a *App) Runs(ctx context.Context, watchID string, limit int) ([]history.Run, error) {
	if a.store == nil {
		return nil, ErrHistoryDisabled
	}
	if err := a.rec.Flush(ctx); err != nil {
		return nil, err
	}
	return a.store.Recent(ctx, watchID, limit)
}

// Failures returns the recorded failures of a run.
func (a *App) Failures(ctx context.Context, runID string) ([]runner.Failure, error) {
	if a.store == nil {
		return nil, ErrHistoryDisabled
	}
	if err := a.rec.Flush(ctx); err != nil {
		return nil, err
	}
	return a.store.Failures(ctx, runID)
}

// Reload re-reads the config file. An unchanged file set is a no-op. A config
// that fails to load leaves the running one in place.
func (a *App) Reload() error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	prev := a.Config()
	if prev.Path == "" {
		return fmt.Errorf("no config file to reload")
	}

	a.mu.RLock()
	prevDigest := a.digest
	a.mu.RUnlock()
	if digest, err := config.HashFiles(prev.Files); err == nil && digest == prevDigest {
		a.logger.Debug("config unchanged", "path", prev.Path)
		return nil
	}

	next, err := config.Load(prev.Path)
	if err != nil {
		return err
	}
	digest, err := config.HashFiles(next.Files)
	if err != nil {
		return err
	}

	changes := watch.Diff(prev.Watches, next.Watches)
	for _, c := range changes {
		if c.Op != watch.OpRemoved {
			continue
		}
		if a.runner.Stop(c.ID) {
			a.logger.Info("stopped run of removed watch", "watch_id", c.ID)
		}
		a.status.forget(c.ID)
	}

	warnRestartOnly(a.logger, prev.Service, next.Service)

	a.mu.Lock()
	a.cfg = next
	a.digest = digest
	a.mu.Unlock()

	if err := a.watcher.Configure(next.Watches); err != nil {
		return err
	}
	warnNetworkDirs(a.logger, touchedDefs(next.Watches, changes))
	a.mu.RLock()
	watching := a.cfgWatcher != nil
	a.mu.RUnlock()
	if watching {
		a.refreshConfigWatch(next.Files)
	}

	a.hub.Publish(events.ConfigReloaded, reloadEvent{Path: next.Path, Changes: changes})
	a.logger.Info("config reloaded", "path", next.Path, "changes", len(changes), "watches", watch.Touched(changes))
	return nil
}

// warnNetworkDirs logs watches whose directory is a network mount. Changes
// made there by other hosts produce no local events.
func warnNetworkDirs(logger *slog.Logger, defs []watch.Definition) {
	for _, d := range defs {
		dir, err := watch.ResolveDirectory(d.Directory)
		if err != nil {
			continue
		}
		info, err := fsinfo.Lookup(dir)
		if err != nil || !info.Network() {
			continue
		}
		logger.Warn("watch directory is on a network filesystem; changes made on other hosts are not seen",
			"watch_id", d.ID, "directory", dir, "fs_type", info.Type)
	}
}

func touchedDefs(defs []watch.Definition, changes []watch.Changed) []watch.Definition {
	touched := make(map[string]bool, len(changes))
	for _, id := range watch.Touched(changes) {
		touched[id] = true
	}
	var out []watch.Definition
	for _, d := range defs {
		if touched[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// warnRestartOnly logs settings that only take effect on restart.
func warnRestartOnly(logger *slog.Logger, prev, next config.ServiceConfig) {
	if prev.Shell != next.Shell ||
		prev.Debounce != next.Debounce ||
		prev.MatchTimeout != next.MatchTimeout ||
		!slices.Equal(prev.IgnoreDirs, next.IgnoreDirs) {
		logger.Warn("service settings changed; restart watchit to apply them")
	}
}

// watchConfig watches the directories holding the config files. Directories
// rather than files are watched so editors that save by rename are seen.
func (a *App) watchConfig(files []string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	a.mu.Lock()
	a.cfgWatcher = fsw
	a.cfgDirs = make(map[string]struct{})
	a.mu.Unlock()
	a.refreshConfigWatch(files)

	a.wg.Add(1)
	go a.forwardConfigEvents(fsw)
	return nil
}

func (a *App) refreshConfigWatch(files []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfgFiles = make(map[string]struct{}, len(files))
	for _, f := range files {
		a.cfgFiles[filepath.Clean(f)] = struct{}{}
		dir := filepath.Dir(f)
		if _, ok := a.cfgDirs[dir]; ok {
			continue
		}
		if err := a.cfgWatcher.Add(dir); err != nil {
			a.logger.Warn("failed to watch config directory", "dir", dir, "error", err)
			continue
		}
		a.cfgDirs[dir] = struct{}{}
	}
}

func (a *App) isConfigFile(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.cfgFiles[filepath.Clean(path)]
	return ok
}

func (a *App) forwardConfigEvents(fsw *fsnotify.Watcher) {
	defer a.wg.Done()
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod || !a.isConfigFile(ev.Name) {
				continue
			}
			a.reloads.Push("config", struct{}{})
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			a.logger.Warn("config watch error", "error", err)
		}
	}
}

func (a *App) pruneLoop(ctx context.Context, retention time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := a.store.Prune(ctx, retention)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("history prune failed", "error", err)
		} else if n > 0 {
			a.logger.Info("pruned run history", "runs", n, "retention", retention.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
		}
	}
}

// Close stops watching, cancels in-flight runs and waits for them to finish
// or for ctx to expire.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.reloads.Stop()
		var errs []error
		a.mu.RLock()
		fsw := a.cfgWatcher
		a.mu.RUnlock()
		if fsw != nil {
			if err := fsw.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close config watcher: %w", err))
			}
		}
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
		if err := a.runner.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close runner: %w", err))
		}
		a.wg.Wait()
		if a.rec != nil {
			a.rec.Close()
		}
		if err := a.closeDB(); err != nil {
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}
