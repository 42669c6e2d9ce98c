package runner

import (
	"time"

	"github.com/mattjoyce/watchit/internal/process"
	"github.com/mattjoyce/watchit/internal/watch"
)

// Task is a snapshot of one run.
type Task struct {
	RunID     string           `json:"run_id"`
	Watch     watch.Definition `json:"watch"`
	Directory string           `json:"directory"`
	StartedAt time.Time        `json:"started_at"`
}

// Failure is one location extracted from a run's output.
type Failure struct {
	RunID   string `json:"run_id"`
	WatchID string `json:"watch_id"`
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// Completion is published once for every finished run, cancelled or not.
type Completion struct {
	Task       Task      `json:"task"`
	FinishedAt time.Time `json:"finished_at"`
	ExitCode   int       `json:"exit_code"`
	Output     string    `json:"output"`
	Cancelled  bool      `json:"cancelled"`
	Error      string    `json:"error,omitempty"`
	Failures   int       `json:"failures"`
}

// Duration returns how long the run took.
func (c Completion) Duration() time.Duration {
	return c.FinishedAt.Sub(c.Task.StartedAt)
}

// Listener receives run events. Calls are serialized.
type Listener interface {
	RunStarted(Task)
	Failure(Failure)
	RunCompleted(Completion)
}

// Listeners fans events out to several listeners in order.
type Listeners []Listener

func (ls Listeners) RunStarted(t Task) {
	for _, l := range ls {
		l.RunStarted(t)
	}
}

func (ls Listeners) Failure(f Failure) {
	for _, l := range ls {
		l.Failure(f)
	}
}

func (ls Listeners) RunCompleted(c Completion) {
	for _, l := range ls {
		l.RunCompleted(c)
	}
}

type nopListener struct{}

func (nopListener) RunStarted(Task)         {}
func (nopListener) Failure(Failure)         {}
func (nopListener) RunCompleted(Completion) {}

// Process is the part of a process handle the runner drives.
type Process interface {
	Wait() (process.Result, error)
	Kill() error
	Close() error
}

// SpawnFunc starts a process.
type SpawnFunc func(argv []string, opts process.Options) (Process, error)

func spawnProcess(argv []string, opts process.Options) (Process, error) {
	h, err := process.Spawn(argv, opts)
	if err != nil {
		return nil, err
	}
	return h, nil
}
