package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// SignalExitBase is added to the signal number when the child was killed by a
// signal, following the shell convention.
const SignalExitBase = 128

// UnknownExit is reported when the exit status could not be observed.
const UnknownExit = -1

// drainTimeout bounds how long Wait keeps reading after the child exits. A
// backgrounded grandchild can hold the pipe open indefinitely.
var drainTimeout = 2 * time.Second

// killGrace is how long a child has to exit after SIGTERM before its process
// group gets SIGKILL.
var killGrace = 3 * time.Second

// Options configures Spawn.
type Options struct {
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// Result is the outcome of a finished child.
type Result struct {
	ExitCode int
	Signaled bool
	Output   string
}

// Handle is a running (or finished) child process.
type Handle struct {
	cmd    *exec.Cmd
	reader *os.File

	output   bytes.Buffer
	readDone chan struct{}
	exitDone chan struct{}

	mu     sync.Mutex
	exited bool

	escalateOnce sync.Once

	waitOnce sync.Once
	result   Result
	waitErr  error
}

// Spawn starts argv[0] with the remaining arguments. stdout and stderr are
// both connected to the write end of one pipe.
func Spawn(argv []string, opts Options) (*Handle, error) {
	if len(argv) == 0 {
		return nil, newSpawnError("argv", "", ErrEmptyArgv)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, newSpawnError("pipe", argv[0], err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, newSpawnError("start", argv[0], err)
	}
	// The child holds its own copy; ours must go so the reader sees EOF.
	w.Close()

	h := &Handle{
		cmd:      cmd,
		reader:   r,
		readDone: make(chan struct{}),
		exitDone: make(chan struct{}),
	}
	go h.drain()
	return h, nil
}

func (h *Handle) drain() {
	defer close(h.readDone)
	_, _ = io.Copy(&h.output, h.reader)
}

// Pid returns the child's process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Wait blocks until the child exits and its output is drained. A non-zero
// exit is not an error. Calling Wait again returns the same result.
func (h *Handle) Wait() (Result, error) {
	h.waitOnce.Do(h.wait)
	return h.result, h.waitErr
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
	close(h.exitDone)

	_ = h.reader.SetReadDeadline(time.Now().Add(drainTimeout))
	<-h.readDone
	h.reader.Close()

	h.result = Result{ExitCode: UnknownExit, Output: h.output.String()}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.waitErr = &WaitError{Pid: h.cmd.Process.Pid, Err: err}
		return
	}

	state := h.cmd.ProcessState
	if state == nil {
		h.waitErr = &WaitError{Pid: h.cmd.Process.Pid, Err: errors.New("no process state")}
		return
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		h.result.ExitCode = SignalExitBase + int(ws.Signal())
		h.result.Signaled = true
		return
	}
	h.result.ExitCode = state.ExitCode()
}

// Kill sends SIGTERM to the child's process group and does not wait. If the
// child has not been reaped killGrace later, the group gets SIGKILL. The
// escalation relies on someone calling Wait or Close.
func (h *Handle) Kill() error {
	if err := h.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	h.escalateOnce.Do(func() { go h.escalate(killGrace) })
	return nil
}

func (h *Handle) escalate(grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.exitDone:
	case <-timer.C:
		_ = h.Signal(syscall.SIGKILL)
	}
}

// Signal delivers sig to the child's process group.
func (h *Handle) Signal(sig syscall.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pid := h.cmd.Process.Pid
	if h.exited {
		return &KillError{Pid: pid, Err: ErrProcessDone}
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return &KillError{Pid: pid, Err: ErrProcessDone}
		}
		return &KillError{Pid: pid, Err: err}
	}
	return nil
}

// Close releases the handle. A child that is still running is sent SIGTERM,
// then SIGKILL after killGrace, and reaped. Close is safe to call more than once and after Wait.
func (h *Handle) Close() error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()

	if !exited {
		if err := h.Kill(); err != nil && !errors.Is(err, ErrProcessDone) {
			_ = h.Signal(syscall.SIGKILL)
		}
	}
	_, err := h.Wait()
	return err
}
