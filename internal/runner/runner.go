package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/pattern"
	"github.com/mattjoyce/watchit/internal/process"
	"github.com/mattjoyce/watchit/internal/watch"
)

const (
	// DefaultShell is used when Config.Shell is empty.
	DefaultShell = "/bin/sh"
	// DefaultMatchTimeout bounds a single output pattern match.
	DefaultMatchTimeout = 5 * time.Second
)

// Config holds runner settings.
type Config struct {
	Shell        string
	Env          []string
	MatchTimeout time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSpawner replaces the process spawner.
func WithSpawner(fn SpawnFunc) Option {
	return func(r *Runner) { r.spawn = fn }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

type runningTask struct {
	snapshot   Task
	resolveErr error

	mu        sync.Mutex
	proc      Process
	cancelled bool
}

// cancel marks the task cancelled and kills its process if one is attached.
func (t *runningTask) cancel(logger *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	if t.proc != nil {
		killProcess(t.proc, logger)
	}
}

// attach records p. It reports false when the task was cancelled first, in
// which case p has already been killed.
func (t *runningTask) attach(p Process, logger *slog.Logger) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.proc = p
	if t.cancelled {
		killProcess(p, logger)
		return false
	}
	return true
}

func (t *runningTask) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func killProcess(p Process, logger *slog.Logger) {
	if err := p.Kill(); err != nil && !errors.Is(err, process.ErrProcessDone) {
		logger.Warn("failed to kill process", "error", err)
	}
}

// Runner schedules watch runs.
type Runner struct {
	cfg      Config
	listener Listener
	spawn    SpawnFunc
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	tasks  map[string]*runningTask
	closed bool
	wg     sync.WaitGroup

	// publishMu keeps one run's failures and completion contiguous.
	publishMu sync.Mutex
}

// New creates a Runner. A nil listener discards events.
func New(cfg Config, listener Listener, opts ...Option) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = DefaultShell
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = DefaultMatchTimeout
	}
	if listener == nil {
		listener = nopListener{}
	}
	r := &Runner{
		cfg:      cfg,
		listener: listener,
		spawn:    spawnProcess,
		logger:   log.WithComponent("runner"),
		now:      time.Now,
		tasks:    make(map[string]*runningTask),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger starts a run of def, cancelling any run already in flight for
// def.ID. It returns the new run id, or "" after Close.
func (r *Runner) Trigger(def watch.Definition) string {
	dir, resolveErr := watch.ResolveDirectory(def.Directory)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ""
	}
	if old, ok := r.tasks[def.ID]; ok {
		log.ForRun(r.logger, def.ID, old.snapshot.RunID).Info("superseding running task")
		old.cancel(r.logger)
	}
	task := &runningTask{
		snapshot: Task{
			RunID:     uuid.New().String(),
			Watch:     def,
			Directory: dir,
			StartedAt: r.now(),
		},
		resolveErr: resolveErr,
	}
	r.tasks[def.ID] = task
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(task)
	return task.snapshot.RunID
}

// Stop cancels the running task for id. It reports whether one existed.
func (r *Runner) Stop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return false
	}
	task.cancel(r.logger)
	return true
}

// StopAll cancels every running task.
func (r *Runner) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		task.cancel(r.logger)
	}
}

// Running reports whether a task is registered for id.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// Tasks returns the registered tasks, oldest first.
func (r *Runner) Tasks() []Task {
	r.mu.Lock()
	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.snapshot)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close rejects further triggers, cancels running tasks and waits for them
// to publish their completions or for ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, task := range r.tasks {
		task.cancel(r.logger)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

func (r *Runner) run(task *runningTask) {
	defer r.wg.Done()

	def := task.snapshot.Watch
	logger := log.ForRun(r.logger, def.ID, task.snapshot.RunID)

	r.publishMu.Lock()
	r.listener.RunStarted(task.snapshot)
	r.publishMu.Unlock()

	if task.resolveErr != nil {
		logger.Error("cannot resolve watch directory", "directory", def.Directory, "error", task.resolveErr)
		r.finishWithError(task, def.Directory, fmt.Errorf("resolve directory: %w", task.resolveErr))
		return
	}
	dir := task.snapshot.Directory

	argv := []string{r.cfg.Shell, "-l", "-c", def.Command}
	logger.Debug("spawning command", "argv", argv, "dir", dir)

	proc, err := r.spawn(argv, process.Options{Dir: dir, Env: r.cfg.Env})
	if err != nil {
		logger.Error("failed to spawn command", "error", err)
		r.finishWithError(task, dir, err)
		return
	}
	task.attach(proc, logger)

	res, waitErr := proc.Wait()
	if err := proc.Close(); err != nil && waitErr == nil {
		logger.Debug("close process", "error", err)
	}

	completion := Completion{
		Task:     task.snapshot,
		ExitCode: res.ExitCode,
		Output:   strings.ToValidUTF8(res.Output, "\uFFFD"),
	}

	if task.isCancelled() {
		logger.Info("run cancelled", "exit_code", res.ExitCode)
		completion.Cancelled = true
		r.finish(task, completion, nil)
		return
	}

	if waitErr != nil {
		logger.Error("failed to wait for command", "error", waitErr)
		completion.Error = waitErr.Error()
		r.finish(task, completion, []Failure{r.syntheticFailure(task, dir, waitErr)})
		return
	}

	failures := r.extract(def, dir, completion.Output, logger)
	for i := range failures {
		failures[i].RunID = task.snapshot.RunID
		failures[i].WatchID = def.ID
	}
	logger.Info("run completed", "exit_code", res.ExitCode, "failures", len(failures))
	r.finish(task, completion, failures)
}

func (r *Runner) extract(def watch.Definition, dir, output string, logger *slog.Logger) []Failure {
	p, err := pattern.Compile(def.Pattern, watch.OutputFlags, pattern.WithMatchTimeout(r.cfg.MatchTimeout))
	if err != nil {
		logger.Warn("output pattern does not compile", "error", err)
		return nil
	}
	failures, err := ExtractFailures(p, dir, output)
	if err != nil {
		logger.Warn("output pattern match failed", "error", err)
		return nil
	}
	return failures
}

func (r *Runner) syntheticFailure(task *runningTask, dir string, err error) Failure {
	return Failure{
		RunID:   task.snapshot.RunID,
		WatchID: task.snapshot.Watch.ID,
		Path:    dir,
		Line:    0,
		Message: err.Error(),
	}
}

func (r *Runner) finishWithError(task *runningTask, dir string, err error) {
	completion := Completion{
		Task:     task.snapshot,
		ExitCode: process.UnknownExit,
		Error:    err.Error(),
	}
	if task.isCancelled() {
		completion.Cancelled = true
		r.finish(task, completion, nil)
		return
	}
	r.finish(task, completion, []Failure{r.syntheticFailure(task, dir, err)})
}

func (r *Runner) finish(task *runningTask, completion Completion, failures []Failure) {
	r.mu.Lock()
	if current, ok := r.tasks[task.snapshot.Watch.ID]; ok && current == task {
		delete(r.tasks, task.snapshot.Watch.ID)
	}
	r.mu.Unlock()

	completion.FinishedAt = r.now()
	completion.Failures = len(failures)

	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	for _, f := range failures {
		r.listener.Failure(f)
	}
	r.listener.RunCompleted(completion)
}
