package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

var (
	// ErrProcessDone is wrapped by KillError when the child has already exited.
	ErrProcessDone = errors.New("process already finished")
	// ErrEmptyArgv is returned by Spawn for an empty argument vector.
	ErrEmptyArgv = errors.New("empty argument vector")
)

// SpawnError reports a failure to start the child: the executable was not
// found, fork/exec failed or the output pipe could not be created.
type SpawnError struct {
	Op    string
	Path  string
	Errno syscall.Errno
	Err   error
}

func (e *SpawnError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("spawn %s: %s: %v (errno %d)", e.Path, e.Op, e.Err, int(e.Errno))
	}
	return fmt.Sprintf("spawn %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WaitError reports that the child's state could not be collected.
type WaitError struct {
	Pid int
	Err error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait pid %d: %v", e.Pid, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }

// KillError reports a failed signal delivery. Callers treat one wrapping
// ErrProcessDone as a no-op.
type KillError struct {
	Pid int
	Err error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("kill pid %d: %v", e.Pid, e.Err)
}

func (e *KillError) Unwrap() error { return e.Err }

func newSpawnError(op, path string, err error) *SpawnError {
	se := &SpawnError{Op: op, Path: path, Err: err}
	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		se.Errno = errno
	case errors.Is(err, ErrEmptyArgv):
		se.Errno = syscall.EINVAL
	case errors.Is(err, exec.ErrNotFound):
		// LookPath failures carry no errno of their own.
		se.Errno = syscall.ENOENT
	}
	return se
}
