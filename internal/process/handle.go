package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"

	"github.com/IntersectMBO/cardano-launcher/internal/sentinel"
)

// ErrNoCommand is returned when Spawn is called without a command path.
const ErrNoCommand = sentinel.Error("command must not be empty")

// ErrNoLogDir is returned when Spawn is called without a log directory.
const ErrNoLogDir = sentinel.Error("log directory must not be empty")

// ErrNoName is returned when Spawn is called without a process name.
const ErrNoName = sentinel.Error("process name must not be empty")

// ShutdownKind selects the cooperative shutdown channel established at spawn
// time. The cooperative channel is used by the owner to ask the child to exit
// cleanly before escalating to SIGKILL.
type ShutdownKind int

const (
	// ShutdownSignal sends SIGTERM; no pipe is set up.
	ShutdownSignal ShutdownKind = iota
	// ShutdownStdin closes the child's stdin; the child observes EOF and
	// exits on its own (cardano-wallet's --shutdown-handler).
	ShutdownStdin
	// ShutdownPipe closes an auxiliary pipe the child inherits as
	// AuxiliaryFD; the child observes EOF and exits on its own
	// (cardano-node's --shutdown-ipc).
	ShutdownPipe
)

// AuxiliaryFD is the file descriptor number at which a ShutdownPipe child
// sees the read end of the auxiliary pipe. It is the first entry of
// exec.Cmd.ExtraFiles, which always lands at fd 3 after stdin/stdout/stderr.
const AuxiliaryFD = 3

// SpawnConfig describes one child process to spawn.
type SpawnConfig struct {
	Name     string            // for log file names and messages, e.g. "cardano-node"
	Command  string            // executable path or name resolved via PATH
	Args     []string          // arguments, not including the command itself
	Dir      string            // working directory; empty inherits the parent's
	Env      map[string]string // overrides appended to the parent environment
	LogDir   string            // directory receiving <name>-stdout.log / <name>-stderr.log
	Shutdown ShutdownKind

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// Handle exclusively owns one spawned OS process. No component other than the
// Handle's owner may signal or wait on the process.
//
// Handle methods are safe for concurrent use except Close, which must only be
// called after the process has been confirmed exited (WaitDone delivered).
type Handle struct {
	cmd      *exec.Cmd
	waitDone <-chan error    // receives the single cmd.Wait result
	exited   <-chan struct{} // closed when the process exits; multi-reader
	logFiles LogFiles
	name     string
	log      *slog.Logger

	shutdown ShutdownKind

	// pipeMu guards the parent-held pipe ends, which are closed either by
	// InitiateShutdown (cooperative request) or by Close (final cleanup),
	// possibly from different goroutines.
	pipeMu  sync.Mutex
	stdin   io.WriteCloser // write end when ShutdownStdin
	auxPipe *os.File       // parent's write end when ShutdownPipe
}

// Spawn starts the configured command with stdout/stderr redirected to log
// files in cfg.LogDir and the cooperative-shutdown channel for cfg.Shutdown
// established. On success the caller owns the returned Handle; on failure all
// partially created resources are released.
//
// A single goroutine calling cmd.Wait is started here so that exactly one
// Wait call is made per process. Its result is delivered on WaitDone.
func Spawn(cfg SpawnConfig) (*Handle, error) {
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	if cfg.Command == "" {
		return nil, ErrNoCommand
	}
	if cfg.LogDir == "" {
		return nil, ErrNoLogDir
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	logFiles, err := NewLogFiles(cfg.LogDir, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("create %s logs: %w", cfg.Name, err)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Stdout = logFiles.stdoutFile
	cmd.Stderr = logFiles.stderrFile
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(cfg.Env)...)
	}
	configureSysProcAttr(cmd)

	h := &Handle{
		cmd:      cmd,
		logFiles: logFiles,
		name:     cfg.Name,
		log:      log,
		shutdown: cfg.Shutdown,
	}

	var childAuxRead *os.File
	switch cfg.Shutdown {
	case ShutdownStdin:
		stdin, pipeErr := cmd.StdinPipe()
		if pipeErr != nil {
			logFiles.Close()
			return nil, fmt.Errorf("create %s stdin pipe: %w", cfg.Name, pipeErr)
		}
		h.stdin = stdin
	case ShutdownPipe:
		r, w, pipeErr := os.Pipe()
		if pipeErr != nil {
			logFiles.Close()
			return nil, fmt.Errorf("create %s shutdown pipe: %w", cfg.Name, pipeErr)
		}
		// The child inherits r as AuxiliaryFD; the parent keeps w and
		// closes it to request shutdown.
		cmd.ExtraFiles = []*os.File{r}
		childAuxRead = r
		h.auxPipe = w
	case ShutdownSignal:
	}

	if err := cmd.Start(); err != nil {
		h.closePipes()
		logFiles.Close()
		return nil, fmt.Errorf("start %s process: %w", cfg.Name, err)
	}
	// The child holds its own copy of the read end now.
	if childAuxRead != nil {
		_ = childAuxRead.Close()
	}

	// cmd.Wait must be called exactly once per started process; a second
	// call is undefined behavior. The goroutine started here guarantees the
	// invariant and feeds two channels:
	//   - done (buffered 1): the Wait error, consumed once by the owner.
	//   - exited (closed): broadcast signal readable by any number of
	//     goroutines (e.g., readiness polling) to detect early exit.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	h.waitDone = done
	h.exited = exited

	log.Debug("process spawned", "process", cfg.Name, "pid", cmd.Process.Pid,
		"command", cfg.Command)
	return h, nil
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Name returns the process name the Handle was spawned with.
func (h *Handle) Name() string {
	return h.name
}

// WaitDone returns the channel delivering the single cmd.Wait result.
// It must be consumed by exactly one reader.
func (h *Handle) WaitDone() <-chan error {
	return h.waitDone
}

// Exited returns a channel that is closed when the process exits. It is safe
// to select on from any number of goroutines.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// ProcessState returns the state recorded by cmd.Wait, or nil if the process
// has not been waited on yet. Only meaningful after WaitDone delivered.
func (h *Handle) ProcessState() *os.ProcessState {
	return h.cmd.ProcessState
}

// InitiateShutdown asks the child to exit through the cooperative channel
// configured at spawn time: closing stdin, closing the auxiliary pipe, or
// sending SIGTERM. Safe to call more than once and safe after the process
// has already exited; a pipe end already released is treated as done.
func (h *Handle) InitiateShutdown() error {
	var err error
	switch h.shutdown {
	case ShutdownStdin:
		h.pipeMu.Lock()
		if h.stdin != nil {
			err = h.stdin.Close()
			h.stdin = nil
		}
		h.pipeMu.Unlock()
	case ShutdownPipe:
		h.pipeMu.Lock()
		if h.auxPipe != nil {
			err = h.auxPipe.Close()
			h.auxPipe = nil
		}
		h.pipeMu.Unlock()
	case ShutdownSignal:
		err = h.cmd.Process.Signal(syscall.SIGTERM)
	}
	if err != nil {
		return fmt.Errorf("initiate %s shutdown: %w", h.name, err)
	}
	return nil
}

// Kill sends SIGKILL. Kill after the process has already exited is a no-op
// that returns "os: process already finished", which is intentionally
// discarded: the OS has released the process and there is nothing to do.
func (h *Handle) Kill() {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn("kill process", "process", h.name, "pid", h.Pid(), "error", err)
	}
}

// Close releases the log file handles and any pipe ends still held by the
// parent. Call only after the process exit has been observed.
func (h *Handle) Close() {
	h.closePipes()
	h.logFiles.Close()
}

// closePipes closes the parent-held cooperative shutdown ends, tolerating
// ends already released by InitiateShutdown.
func (h *Handle) closePipes() {
	h.pipeMu.Lock()
	defer h.pipeMu.Unlock()
	if h.stdin != nil {
		_ = h.stdin.Close()
		h.stdin = nil
	}
	if h.auxPipe != nil {
		_ = h.auxPipe.Close()
		h.auxPipe = nil
	}
}

// flattenEnv converts an override map to KEY=VALUE form in deterministic
// order, so repeated spawns of the same descriptor are byte-identical.
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
