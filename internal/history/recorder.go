package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/runner"
)

const (
	recordTimeout = 5 * time.Second
	recordBacklog = 64
)

type record struct {
	completion runner.Completion
	failures   []runner.Failure
	// flushed, when set, marks a Flush request instead of a run.
	flushed chan struct{}
}

// Recorder adapts a Store to runner.Listener. Failures are buffered per run
// and written together with the completion. Writes happen on the recorder's
// own goroutine, in completion order, so listeners are never held up by disk.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]runner.Failure

	sendMu sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}
}

// NewRecorder starts the writer. Close stops it.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  log.WithComponent("history"),
		pending: make(map[string][]runner.Failure),
		queue:   make(chan record, recordBacklog),
		done:    make(chan struct{}),
	}
	go r.write()
	return r
}

func (r *Recorder) RunStarted(t runner.Task) {
	r.mu.Lock()
	r.pending[t.RunID] = nil
	r.mu.Unlock()
}

func (r *Recorder) Failure(f runner.Failure) {
	r.mu.Lock()
	r.pending[f.RunID] = append(r.pending[f.RunID], f)
	r.mu.Unlock()
}

// RunCompleted queues the run for writing. A full backlog blocks the caller.
func (r *Recorder) RunCompleted(c runner.Completion) {
	r.mu.Lock()
	failures := r.pending[c.Task.RunID]
	delete(r.pending, c.Task.RunID)
	r.mu.Unlock()

	if !r.send(record{completion: c, failures: failures}) {
		r.logger.Warn("recorder closed, run not recorded", "run_id", c.Task.RunID, "watch_id", c.Task.Watch.ID)
	}
}

func (r *Recorder) send(rec record) bool {
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return false
	}
	r.queue <- rec
	return true
}

// Flush waits until every run queued before the call is written, or ctx ends.
func (r *Recorder) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if !r.send(record{flushed: ch}) {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes what is queued and stops the writer. Later completions are
// dropped with a warning.
func (r *Recorder) Close() {
	r.sendMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.sendMu.Unlock()
	<-r.done
}

func (r *Recorder) write() {
	defer close(r.done)
	for rec := range r.queue {
		if rec.flushed != nil {
			close(rec.flushed)
			continue
		}
		r.persist(rec)
	}
}

func (r *Recorder) persist(rec record) {
	c := rec.completion
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.Record(ctx, c, rec.failures); err != nil {
		r.logger.Error("failed to record run", "run_id", c.Task.RunID, "watch_id", c.Task.Watch.ID, "error", err)
	}
}
