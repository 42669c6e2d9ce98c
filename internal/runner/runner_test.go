package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/process"
	"github.com/mattjoyce/watchit/internal/watch"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

const failurePattern = `^(?<path>[^:\s]+):(?<line>\w+):(?:(?<column>\d+):)?\s*(?<message>.*)$`

type fakeProc struct {
	argv    []string
	opts    process.Options
	output  string
	exit    int
	release chan struct{}

	killOnce sync.Once
	killed   chan struct{}
}

func newFakeProc(argv []string, opts process.Options) *fakeProc {
	return &fakeProc{
		argv:    argv,
		opts:    opts,
		release: make(chan struct{}),
		killed:  make(chan struct{}),
	}
}

func (p *fakeProc) Wait() (process.Result, error) {
	select {
	case <-p.release:
		return process.Result{ExitCode: p.exit, Output: p.output}, nil
	case <-p.killed:
		return process.Result{
			ExitCode: process.SignalExitBase + int(syscall.SIGTERM),
			Signaled: true,
			Output:   "partial output\n",
		}, nil
	}
}

func (p *fakeProc) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProc) Close() error { return nil }

func (p *fakeProc) wasKilled() bool {
	select {
	case <-p.killed:
		return true
	default:
		return false
	}
}

type fakeSpawner struct {
	procs chan *fakeProc
	setup func(*fakeProc)
}

func newFakeSpawner(setup func(*fakeProc)) *fakeSpawner {
	return &fakeSpawner{procs: make(chan *fakeProc, 16), setup: setup}
}

func (s *fakeSpawner) spawn(argv []string, opts process.Options) (Process, error) {
	p := newFakeProc(argv, opts)
	if s.setup != nil {
		s.setup(p)
	}
	s.procs <- p
	return p, nil
}

func (s *fakeSpawner) next(t *testing.T) *fakeProc {
	t.Helper()
	select {
	case p := <-s.procs:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for spawn")
		return nil
	}
}

type event struct {
	kind       string
	task       Task
	failure    Failure
	completion Completion
}

type recorder struct {
	mu          sync.Mutex
	events      []event
	completions chan Completion
}

func newRecorder() *recorder {
	return &recorder{completions: make(chan Completion, 16)}
}

func (r *recorder) RunStarted(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "started", task: t})
}

func (r *recorder) Failure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "failure", failure: f})
}

func (r *recorder) RunCompleted(c Completion) {
	r.mu.Lock()
	r.events = append(r.events, event{kind: "completed", completion: c})
	r.mu.Unlock()
	r.completions <- c
}

func (r *recorder) failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Failure
	for _, e := range r.events {
		if e.kind == "failure" {
			out = append(out, e.failure)
		}
	}
	return out
}

func (r *recorder) waitCompletion(t *testing.T) Completion {
	t.Helper()
	select {
	case c := <-r.completions:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func testWatch(t *testing.T, id string) watch.Definition {
	t.Helper()
	return watch.Definition{
		ID:        id,
		Name:      "watch " + id,
		Directory: t.TempDir(),
		Glob:      "**/*.go",
		Command:   "make test",
		Pattern:   failurePattern,
	}
}

func TestTriggerRunsShellCommandInDirectory(t *testing.T) {
	spawner := newFakeSpawner(nil)
	rec := newRecorder()
	r := New(Config{Shell: "/bin/zsh"}, rec, WithSpawner(spawner.spawn))

	def := testWatch(t, "a")
	runID := r.Trigger(def)
	if runID == "" {
		t.Fatal("Trigger returned empty run id")
	}

	p := spawner.next(t)
	want := []string{"/bin/zsh", "-l", "-c", "make test"}
	if len(p.argv) != len(want) {
		t.Fatalf("argv = %v, want %v", p.argv, want)
	}
	for i := range want {
		if p.argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", p.argv, want)
		}
	}
	resolved, _ := filepath.EvalSymlinks(def.Directory)
	if p.opts.Dir != resolved {
		t.Errorf("dir = %q, want %q", p.opts.Dir, resolved)
	}
	if !r.Running("a") {
		t.Error("expected watch to be running")
	}

	close(p.release)
	c := rec.waitCompletion(t)
	if c.Cancelled {
		t.Error("completion should not be cancelled")
	}
	if c.Task.RunID != runID {
		t.Errorf("run id = %q, want %q", c.Task.RunID, runID)
	}
	if r.Running("a") {
		t.Error("task should be removed after completion")
	}
}

func TestSingleFlightCancelsPreviousRun(t *testing.T) {
	spawner := newFakeSpawner(func(p *fakeProc) {
		p.output = "main.go:1: boom\n"
		p.exit = 1
	})
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	def := testWatch(t, "a")
	r.Trigger(def)
	first := spawner.next(t)
	r.Trigger(def)
	second := spawner.next(t)

	if !first.wasKilled() {
		t.Error("first process should have been killed")
	}
	cancelled := rec.waitCompletion(t)
	if !cancelled.Cancelled {
		t.Fatalf("first completion should be cancelled: %+v", cancelled)
	}
	if cancelled.Failures != 0 {
		t.Errorf("cancelled run published %d failures", cancelled.Failures)
	}
	if !r.Running("a") {
		t.Error("replacement task must stay registered after the old one finishes")
	}

	close(second.release)
	done := rec.waitCompletion(t)
	if done.Cancelled {
		t.Error("second completion should not be cancelled")
	}
	if done.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", done.ExitCode)
	}

	if got := rec.failures(); len(got) != 1 {
		t.Errorf("failures = %d, want 1 (only from the surviving run)", len(got))
	}
}

func TestDistinctWatchesRunConcurrently(t *testing.T) {
	spawner := newFakeSpawner(nil)
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	r.Trigger(testWatch(t, "a"))
	r.Trigger(testWatch(t, "b"))
	pa := spawner.next(t)
	pb := spawner.next(t)

	if pa.wasKilled() || pb.wasKilled() {
		t.Fatal("distinct watches must not cancel each other")
	}
	if !r.Running("a") || !r.Running("b") {
		t.Fatal("both watches should be running")
	}
	if n := len(r.Tasks()); n != 2 {
		t.Errorf("tasks = %d, want 2", n)
	}

	close(pb.release)
	close(pa.release)
	c1 := rec.waitCompletion(t)
	c2 := rec.waitCompletion(t)
	if c1.Cancelled || c2.Cancelled {
		t.Error("neither run should be cancelled")
	}
}

func TestFailuresExtractedFromOutput(t *testing.T) {
	spawner := newFakeSpawner(func(p *fakeProc) {
		p.output = "pkg/a.go:10:4: first\nnoise\n/abs/b.go:20: second\nc.go:x: not a line\n"
		p.exit = 2
	})
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	def := testWatch(t, "a")
	runID := r.Trigger(def)
	close(spawner.next(t).release)
	c := rec.waitCompletion(t)

	if c.Failures != 2 {
		t.Fatalf("completion failures = %d, want 2", c.Failures)
	}
	got := rec.failures()
	if len(got) != 2 {
		t.Fatalf("failures = %+v", got)
	}
	dir, _ := filepath.EvalSymlinks(def.Directory)
	want := []Failure{
		{RunID: runID, WatchID: "a", Path: filepath.Join(dir, "pkg/a.go"), Line: 10, Column: 4, Message: "first"},
		{RunID: runID, WatchID: "a", Path: "/abs/b.go", Line: 20, Message: "second"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("failure %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	rec.mu.Lock()
	kinds := make([]string, 0, len(rec.events))
	for _, e := range rec.events {
		kinds = append(kinds, e.kind)
	}
	rec.mu.Unlock()
	wantKinds := []string{"started", "failure", "failure", "completed"}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("event order = %v, want %v", kinds, wantKinds)
	}
	for i := range wantKinds {
		if kinds[i] != wantKinds[i] {
			t.Fatalf("event order = %v, want %v", kinds, wantKinds)
		}
	}
}

func TestBadPatternYieldsNoFailures(t *testing.T) {
	spawner := newFakeSpawner(func(p *fakeProc) {
		p.output = "main.go:1: boom\n"
	})
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	def := testWatch(t, "a")
	def.Pattern = "(unclosed"
	r.Trigger(def)
	close(spawner.next(t).release)

	c := rec.waitCompletion(t)
	if c.Failures != 0 || len(rec.failures()) != 0 {
		t.Errorf("expected zero failures, got %d", c.Failures)
	}
	if c.Output != "main.go:1: boom\n" {
		t.Errorf("output = %q", c.Output)
	}
}

func TestSpawnFailureReportsSyntheticFailure(t *testing.T) {
	spawnErr := errors.New("exec format error")
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(func([]string, process.Options) (Process, error) {
		return nil, spawnErr
	}))

	r.Trigger(testWatch(t, "a"))
	c := rec.waitCompletion(t)

	if c.ExitCode != process.UnknownExit {
		t.Errorf("exit code = %d, want %d", c.ExitCode, process.UnknownExit)
	}
	if c.Error == "" {
		t.Error("completion should carry the spawn error")
	}
	got := rec.failures()
	if len(got) != 1 || got[0].Line != 0 || got[0].Message != spawnErr.Error() {
		t.Errorf("failures = %+v, want one synthetic failure", got)
	}
}

func TestMissingDirectoryReportsFailure(t *testing.T) {
	spawner := newFakeSpawner(nil)
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	def := testWatch(t, "a")
	def.Directory = filepath.Join(def.Directory, "gone")
	r.Trigger(def)

	c := rec.waitCompletion(t)
	if c.Error == "" {
		t.Error("expected an error on the completion")
	}
	if got := rec.failures(); len(got) != 1 || got[0].Line != 0 {
		t.Errorf("failures = %+v", got)
	}
	select {
	case <-spawner.procs:
		t.Error("nothing should be spawned for a missing directory")
	default:
	}
}

func TestStop(t *testing.T) {
	spawner := newFakeSpawner(nil)
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	if r.Stop("a") {
		t.Error("Stop on idle watch should report false")
	}

	r.Trigger(testWatch(t, "a"))
	p := spawner.next(t)
	if !r.Stop("a") {
		t.Fatal("Stop should report a running task")
	}
	c := rec.waitCompletion(t)
	if !c.Cancelled || !p.wasKilled() {
		t.Errorf("expected cancelled completion and killed process: %+v", c)
	}
	if r.Running("a") {
		t.Error("watch should be idle after stop")
	}
}

func TestCloseCancelsAndRejects(t *testing.T) {
	spawner := newFakeSpawner(nil)
	rec := newRecorder()
	r := New(Config{}, rec, WithSpawner(spawner.spawn))

	r.Trigger(testWatch(t, "a"))
	r.Trigger(testWatch(t, "b"))
	spawner.next(t)
	spawner.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(r.Tasks()) != 0 {
		t.Error("no tasks should remain after Close")
	}
	if id := r.Trigger(testWatch(t, "c")); id != "" {
		t.Error("Trigger after Close should be rejected")
	}
}

func TestShellIntegration(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	rec := newRecorder()
	r := New(Config{Shell: "/bin/sh"}, rec)

	def := testWatch(t, "sh")
	def.Command = `printf 'main.go:7: undefined: x\n' >&2; exit 1`
	r.Trigger(def)

	c := rec.waitCompletion(t)
	if c.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1; output %q", c.ExitCode, c.Output)
	}
	got := rec.failures()
	if len(got) != 1 {
		t.Fatalf("failures = %+v; output %q", got, c.Output)
	}
	if got[0].Line != 7 || got[0].Message != "undefined: x" || filepath.Base(got[0].Path) != "main.go" {
		t.Errorf("failure = %+v", got[0])
	}
}
