package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	fired map[string][]int
}

func newRecorder() *recorder {
	return &recorder{fired: make(map[string][]int)}
}

func (r *recorder) fire(key string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired[key] = append(r.fired[key], v)
}

func (r *recorder) get(key string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.fired[key]...)
}

const window = 50 * time.Millisecond

func TestBurstCollapsesToLatest(t *testing.T) {
	rec := newRecorder()
	d := New(window, rec.fire)
	defer d.Stop()

	for i := 1; i <= 10; i++ {
		d.Push("a", i)
		time.Sleep(window / 10)
	}
	time.Sleep(4 * window)

	got := rec.get("a")
	if len(got) != 1 {
		t.Fatalf("fired %d times, want 1: %v", len(got), got)
	}
	if got[0] != 10 {
		t.Errorf("fired value = %d, want latest (10)", got[0])
	}
}

func TestSeparatedPushesFireEach(t *testing.T) {
	rec := newRecorder()
	d := New(window, rec.fire)
	defer d.Stop()

	for i := 1; i <= 3; i++ {
		d.Push("a", i)
		time.Sleep(4 * window)
	}

	got := rec.get("a")
	if len(got) != 3 {
		t.Fatalf("fired %d times, want 3: %v", len(got), got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rec := newRecorder()
	d := New(window, rec.fire)
	defer d.Stop()

	d.Push("a", 1)
	d.Push("b", 2)
	d.Push("a", 3)
	time.Sleep(4 * window)

	if got := rec.get("a"); len(got) != 1 || got[0] != 3 {
		t.Errorf("a fired %v, want [3]", got)
	}
	if got := rec.get("b"); len(got) != 1 || got[0] != 2 {
		t.Errorf("b fired %v, want [2]", got)
	}
}

func TestCancelAndStop(t *testing.T) {
	rec := newRecorder()
	d := New(window, rec.fire)

	d.Push("a", 1)
	d.Push("b", 2)
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
	d.Cancel("a")
	d.Stop()
	d.Push("c", 3)
	time.Sleep(4 * window)

	for _, key := range []string{"a", "b", "c"} {
		if got := rec.get(key); len(got) != 0 {
			t.Errorf("%s fired %v after cancel/stop", key, got)
		}
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", d.Pending())
	}
}
