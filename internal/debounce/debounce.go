// Package debounce coalesces bursts of keyed signals. Each key has its own
// timer that restarts on every push; when a key has been quiet for the
// window, the most recent value pushed for it is delivered once.
package debounce

import (
	"sync"
	"time"
)

type entry[V any] struct {
	timer *time.Timer
	value V
	gen   uint64
}

// Debouncer delivers the latest value per key after a quiet period.
type Debouncer[K comparable, V any] struct {
	window time.Duration
	fire   func(K, V)

	mu      sync.Mutex
	pending map[K]*entry[V]
	stopped bool
}

// New returns a Debouncer calling fire on its own goroutine per delivery.
func New[K comparable, V any](window time.Duration, fire func(K, V)) *Debouncer[K, V] {
	return &Debouncer[K, V]{
		window:  window,
		fire:    fire,
		pending: make(map[K]*entry[V]),
	}
}

// Window returns the quiet period.
func (d *Debouncer[K, V]) Window() time.Duration { return d.window }

// Push records v for key and restarts the key's timer.
func (d *Debouncer[K, V]) Push(key K, v V) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	e, ok := d.pending[key]
	if !ok {
		e = &entry[V]{}
		d.pending[key] = e
	} else {
		e.timer.Stop()
	}
	e.value = v
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d.window, func() { d.deliver(key, gen) })
}

func (d *Debouncer[K, V]) deliver(key K, gen uint64) {
	d.mu.Lock()
	e, ok := d.pending[key]
	// A stale timer that lost the race with Stop in Push finds a newer gen.
	if !ok || e.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	v := e.value
	d.mu.Unlock()

	d.fire(key, v)
}

// Cancel drops any pending delivery for key.
func (d *Debouncer[K, V]) Cancel(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer[K, V]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending delivery. Later pushes are ignored.
func (d *Debouncer[K, V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}
