package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "state", "watchit.lock")
	l, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file pid = %q, want %d", got, os.Getpid())
	}
	if l.Path() != lockPath {
		t.Fatalf("Path() = %q", l.Path())
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "watchit.lock")
	first, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = Acquire(lockPath)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}
	if !strings.Contains(err.Error(), "pid "+strconv.Itoa(os.Getpid())) {
		t.Fatalf("expected holder pid in %q", err.Error())
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := Acquire(lockPath)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	l, err := Acquire(filepath.Join(t.TempDir(), "watchit.lock"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	var nilLock *PIDLock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

func TestHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, ok := Holder(filepath.Join(dir, "missing")); ok {
		t.Fatal("expected no holder for missing file")
	}
	junk := filepath.Join(dir, "junk")
	if err := os.WriteFile(junk, []byte("nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := Holder(junk); ok {
		t.Fatal("expected no holder for junk file")
	}
	good := filepath.Join(dir, "good")
	if err := os.WriteFile(good, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, ok := Holder(good); !ok || pid != 4242 {
		t.Fatalf("Holder = %d, %v", pid, ok)
	}
}
