package app

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/watchit/internal/events"
	"github.com/mattjoyce/watchit/internal/runner"
)

// hubListener republishes runner events on the hub.
type hubListener struct {
	hub *events.Hub
}

func (l hubListener) RunStarted(t runner.Task) {
	l.hub.PublishWatch(events.RunStarted, t.Watch.ID, t)
}

func (l hubListener) Failure(f runner.Failure) {
	l.hub.PublishWatch(events.RunFailure, f.WatchID, f)
}

func (l hubListener) RunCompleted(c runner.Completion) {
	l.hub.PublishWatch(events.RunCompleted, c.Task.Watch.ID, c)
}

// logListener writes one line per run event.
type logListener struct {
	logger *slog.Logger
}

func (l logListener) RunStarted(t runner.Task) {
	l.logger.Info("run started", "watch_id", t.Watch.ID, "run_id", t.RunID, "command", t.Watch.Command, "directory", t.Directory)
}

func (l logListener) Failure(f runner.Failure) {
	l.logger.Debug("failure extracted", "watch_id", f.WatchID, "run_id", f.RunID, "path", f.Path, "line", f.Line)
}

func (l logListener) RunCompleted(c runner.Completion) {
	args := []any{
		"watch_id", c.Task.Watch.ID,
		"run_id", c.Task.RunID,
		"exit_code", c.ExitCode,
		"failures", c.Failures,
		"duration", c.Duration().String(),
	}
	switch {
	case c.Cancelled:
		l.logger.Info("run cancelled", args...)
	case c.Error != "":
		l.logger.Warn("run failed to execute", append(args, "error", c.Error)...)
	default:
		l.logger.Info("run completed", args...)
	}
}

// LastRun summarizes the most recent completed run of a watch.
type LastRun struct {
	RunID      string    `json:"run_id"`
	ExitCode   int       `json:"exit_code"`
	Failures   int       `json:"failures"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// statusTracker remembers the last run per watch. Cancelled runs are kept
// out so a superseded run never hides its successor's result.
type statusTracker struct {
	mu   sync.RWMutex
	last map[string]LastRun
}

func newStatusTracker() *statusTracker {
	return &statusTracker{last: make(map[string]LastRun)}
}

func (s *statusTracker) RunStarted(runner.Task) {}
func (s *statusTracker) Failure(runner.Failure) {}

func (s *statusTracker) RunCompleted(c runner.Completion) {
	if c.Cancelled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[c.Task.Watch.ID] = LastRun{
		RunID:      c.Task.RunID,
		ExitCode:   c.ExitCode,
		Failures:   c.Failures,
		Error:      c.Error,
		FinishedAt: c.FinishedAt,
	}
}

func (s *statusTracker) get(id string) (LastRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[id]
	return r, ok
}

func (s *statusTracker) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, id)
}
