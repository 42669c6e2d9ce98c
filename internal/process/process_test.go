package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestSpawnEchoRoundTrip(t *testing.T) {
	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not available")
	}

	h, err := Spawn([]string{echo, "-n", "hello"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Output != "hello" {
		t.Errorf("output = %q, want %q", res.Output, "hello")
	}
}

func TestSpawnMissingExecutable(t *testing.T) {
	_, err := Spawn([]string{"/definitely/not/here/watchit-missing"}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *SpawnError", err)
	}
	if se.Errno != syscall.ENOENT {
		t.Errorf("errno = %v, want ENOENT", se.Errno)
	}

	_, err = Spawn([]string{"watchit-missing-binary-on-path"}, Options{})
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *SpawnError", err)
	}
	if se.Errno != syscall.ENOENT {
		t.Errorf("errno = %v, want ENOENT", se.Errno)
	}
}

func TestSpawnEmptyArgv(t *testing.T) {
	_, err := Spawn(nil, Options{})
	if !errors.Is(err, ErrEmptyArgv) {
		t.Fatalf("err = %v, want ErrEmptyArgv", err)
	}
}

func TestOutputInterleavesStreams(t *testing.T) {
	requireShell(t)

	h, err := Spawn([]string{"/bin/sh", "-c", "echo out; echo err >&2; exit 3"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Output, "out\n") || !strings.Contains(res.Output, "err\n") {
		t.Errorf("output = %q, want both streams", res.Output)
	}
}

func TestSpawnDirAndEnv(t *testing.T) {
	requireShell(t)

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h, err := Spawn([]string{"/bin/sh", "-c", `pwd; printf %s "$WATCHIT_TEST"`}, Options{
		Dir: dir,
		Env: []string{"WATCHIT_TEST=yes"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	want := dir + "\nyes"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestKillRunningProcess(t *testing.T) {
	requireShell(t)

	h, err := Spawn([]string{"/bin/sh", "-c", "sleep 30"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	done := make(chan Result, 1)
	go func() {
		res, _ := h.Wait()
		done <- res
	}()

	select {
	case res := <-done:
		if !res.Signaled {
			t.Errorf("expected signaled exit, got %+v", res)
		}
		if res.ExitCode != SignalExitBase+int(syscall.SIGTERM) {
			t.Errorf("exit code = %d, want %d", res.ExitCode, SignalExitBase+int(syscall.SIGTERM))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Kill")
	}
}

func TestKillAfterExitIsProcessDone(t *testing.T) {
	requireShell(t)

	h, err := Spawn([]string{"/bin/sh", "-c", "true"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	err = h.Kill()
	var ke *KillError
	if !errors.As(err, &ke) {
		t.Fatalf("error type = %T, want *KillError", err)
	}
	if !errors.Is(err, ErrProcessDone) {
		t.Errorf("err = %v, want ErrProcessDone", err)
	}
}

func TestWaitAndCloseAreIdempotent(t *testing.T) {
	requireShell(t)

	h, err := Spawn([]string{"/bin/sh", "-c", "echo once"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	first, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	second, err := h.Wait()
	if err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if first != second {
		t.Errorf("second Wait = %+v, want %+v", second, first)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCloseKillsRunningProcess(t *testing.T) {
	requireShell(t)

	h, err := Spawn([]string{"/bin/sh", "-c", "sleep 30"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- h.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestCloseEscalatesWhenTermIgnored(t *testing.T) {
	requireShell(t)

	old := killGrace
	killGrace = 200 * time.Millisecond
	defer func() { killGrace = old }()

	h, err := Spawn([]string{"/bin/sh", "-c", "trap '' TERM; while :; do sleep 0.1; done"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	// Give the shell time to install the trap.
	time.Sleep(300 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- h.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-h.Pid(), syscall.SIGKILL)
		t.Fatal("Close did not return for a child ignoring SIGTERM")
	}

	res, _ := h.Wait()
	if !res.Signaled || res.ExitCode != SignalExitBase+int(syscall.SIGKILL) {
		t.Errorf("result = %+v, want killed by SIGKILL", res)
	}
}

func TestKillEscalatesWhileWaiting(t *testing.T) {
	requireShell(t)

	old := killGrace
	killGrace = 200 * time.Millisecond
	defer func() { killGrace = old }()

	h, err := Spawn([]string{"/bin/sh", "-c", "trap '' TERM; while :; do sleep 0.1; done"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	done := make(chan Result, 1)
	go func() {
		res, _ := h.Wait()
		done <- res
	}()
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case res := <-done:
		if res.ExitCode != SignalExitBase+int(syscall.SIGKILL) {
			t.Errorf("exit code = %d, want SIGKILL", res.ExitCode)
		}
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-h.Pid(), syscall.SIGKILL)
		t.Fatal("Wait did not return after Kill")
	}
	_ = h.Close()
}

func TestBackgroundedChildDoesNotBlockWait(t *testing.T) {
	requireShell(t)

	old := drainTimeout
	drainTimeout = 100 * time.Millisecond
	defer func() { drainTimeout = old }()

	h, err := Spawn([]string{"/bin/sh", "-c", "echo started; sleep 30 &"}, Options{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer syscall.Kill(-h.Pid(), syscall.SIGKILL)

	done := make(chan Result, 1)
	go func() {
		res, _ := h.Wait()
		done <- res
	}()

	select {
	case res := <-done:
		if res.Output != "started\n" {
			t.Errorf("output = %q", res.Output)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked on a lingering grandchild")
	}
}

func countOpenFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("/proc/self/fd not available")
	}
	return len(entries)
}

func TestRepeatedSpawnKillDoesNotLeakFDs(t *testing.T) {
	requireShell(t)

	cycle := func() {
		h, err := Spawn([]string{"/bin/sh", "-c", "sleep 30"}, Options{})
		if err != nil {
			t.Fatalf("Spawn: %v", err)
		}
		_ = h.Kill()
		if _, err := h.Wait(); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	// Warm up the runtime poller so its descriptors are counted in the baseline.
	cycle()
	before := countOpenFDs(t)

	for i := 0; i < 50; i++ {
		cycle()
	}

	after := countOpenFDs(t)
	if after > before {
		t.Errorf("open fds grew from %d to %d", before, after)
	}
}
