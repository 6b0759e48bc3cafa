package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitStatus describes how a supervised process ended. It is created once,
// at the moment the process is confirmed gone, and cached: repeated queries
// return the same value.
//
// Exactly one of Code or Signal is set when the process actually ran and
// exited. Err is set (with Code nil and Signal empty) when the process could
// never be spawned or could not be waited on. All three are unset for a
// service that was stopped without ever starting.
type ExitStatus struct {
	// Command is the command name of the process, or empty if the service
	// never resolved a descriptor.
	Command string
	// Code is the exit code, or nil if the process was terminated by a
	// signal or never ran.
	Code *int
	// Signal is the canonical name of the terminating signal (e.g.
	// "SIGKILL"), or empty.
	Signal string
	// Err is the spawn or wait error, or nil.
	Err error
}

// Exited reports whether the process actually ran and exited (by code or
// signal), as opposed to failing to spawn or never starting.
func (e ExitStatus) Exited() bool {
	return e.Code != nil || e.Signal != ""
}

// String renders the status for logs and error messages.
func (e ExitStatus) String() string {
	name := e.Command
	if name == "" {
		name = "process"
	}
	switch {
	case e.Code != nil:
		return fmt.Sprintf("%s exited with status %d", name, *e.Code)
	case e.Signal != "":
		return fmt.Sprintf("%s terminated by %s", name, e.Signal)
	case e.Err != nil:
		return fmt.Sprintf("%s failed to run: %v", name, e.Err)
	default:
		return fmt.Sprintf("%s never started", name)
	}
}

// exitStatusFromWait builds the terminal ExitStatus from the result of the
// single cmd.Wait call. waitErr is the Wait error (nil for a clean zero
// exit); state is cmd.ProcessState, consulted when waitErr is nil.
func exitStatusFromWait(command string, waitErr error, state *os.ProcessState) ExitStatus {
	if waitErr == nil {
		code := 0
		if state != nil {
			code = state.ExitCode()
		}
		return ExitStatus{Command: command, Code: &code}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitStatus{Command: command, Signal: unix.SignalName(ws.Signal())}
		}
		code := exitErr.ExitCode()
		return ExitStatus{Command: command, Code: &code}
	}

	// Wait itself failed; the process outcome is unknowable.
	return ExitStatus{Command: command, Err: waitErr}
}
