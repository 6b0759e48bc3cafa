package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IntersectMBO/cardano-launcher/internal/process"
	"github.com/IntersectMBO/cardano-launcher/internal/sentinel"
)

// ErrServiceStopped is returned by Start when the service is already
// shutting down or finished. Starting a stopped service is rejected, not
// queued: a Service supervises exactly one process incarnation.
const ErrServiceStopped = sentinel.Error("service already stopped")

// DefaultStopTimeout is the time a child is given to exit after the
// cooperative shutdown request before SIGKILL is sent. It is also the
// timeout used for cross-failure-triggered stops.
const DefaultStopTimeout = 60 * time.Second

// killDrainTimeout is the hard upper bound for waiting on process exit after
// SIGKILL has been sent. SIGKILL cannot be caught, so the process should be
// gone almost immediately; this is a safety net against cmd.Wait blocking on
// stuck I/O or kernel issues.
const killDrainTimeout = 10 * time.Second

// Config holds the configuration for a Service.
type Config struct {
	// Name identifies the process in logs and log file names,
	// e.g. "cardano-node". Required.
	Name string
	// Provider resolves the Descriptor when Start is called. Required.
	Provider DescriptorProvider
	// LogDir is the directory receiving the child's stdout/stderr log
	// files. Required.
	LogDir string

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if c.Provider == nil {
		return fmt.Errorf("descriptor provider must not be nil")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log directory must not be empty")
	}
	return nil
}

// observer is one registered status-change callback.
type observer struct {
	id int
	fn func(Status)
}

// Service is the state machine supervising exactly one child OS process.
// All methods are safe for concurrent use.
//
// Status observers run synchronously under the state lock, so every observer
// sees each transition before the next one begins. An observer must not call
// methods of the same Service synchronously; dispatch to a goroutine instead.
type Service struct {
	name     string
	provider DescriptorProvider
	logDir   string
	log      *slog.Logger

	mu        sync.Mutex
	status    Status
	observers []observer
	nextObsID int

	// startDone is created by the first Start caller and closed when that
	// attempt settles; concurrent Start and Stop callers wait on it.
	startDone chan struct{}
	startPid  int
	startErr  error

	desc   *Descriptor     // resolved descriptor, nil until Start
	handle *process.Handle // owned while the process lives, nil once exited
	exit   *ExitStatus     // cached terminal status, set exactly once

	// stopped is closed when status reaches Stopped.
	stopped chan struct{}
}

// New creates a Service bound to a not-yet-resolved descriptor. No process
// is spawned until Start.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		name:     cfg.Name,
		provider: cfg.Provider,
		logDir:   cfg.LogDir,
		log:      log,
		status:   NotStarted,
		stopped:  make(chan struct{}),
	}, nil
}

// Name returns the service name.
func (s *Service) Name() string {
	return s.name
}

// Status returns the current lifecycle state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pid returns the OS process id of the running child, or 0 when no live
// process is owned. This is a non-owning peek: callers must not signal or
// wait on the process themselves.
func (s *Service) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.Pid()
}

// Stopped returns a channel that is closed when the service reaches the
// Stopped state. Safe to select on from any number of goroutines.
func (s *Service) Stopped() <-chan struct{} {
	return s.stopped
}

// OnStatusChange registers fn to be called synchronously, in transition
// order, at every status change. The returned cancel function removes the
// registration. fn must not call methods of this Service synchronously.
func (s *Service) OnStatusChange(fn func(Status)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// setStatusLocked transitions the status and notifies observers. Callers
// must hold s.mu; the lock is held across the callbacks, which is what
// guarantees that transitions are observed in order and never interleaved.
func (s *Service) setStatusLocked(st Status) {
	s.status = st
	s.log.Debug("service status changed", "service", s.name, "status", st.String())
	for _, o := range s.observers {
		o.fn(st)
	}
}

// Start resolves the descriptor, spawns the process, and returns its pid.
//
// Start is idempotent: if the service is already Started it returns the
// cached pid without side effects, and a Start arriving while another Start
// is in flight waits for that attempt and returns its result. Starting a
// service that is Stopping or Stopped returns ErrServiceStopped.
//
// If descriptor resolution or spawning fails, the service transitions
// directly from Starting to Stopped with the error recorded in its
// ExitStatus, observable through the same status events and WaitForExit as a
// runtime failure.
func (s *Service) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	switch s.status {
	case Started:
		pid := s.startPid
		s.mu.Unlock()
		return pid, nil
	case Stopping, Stopped:
		s.mu.Unlock()
		return 0, fmt.Errorf("start %s: %w", s.name, ErrServiceStopped)
	case Starting:
		done := s.startDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return 0, fmt.Errorf("start %s: %w", s.name, ctx.Err())
		}
		s.mu.Lock()
		pid, err := s.startPid, s.startErr
		s.mu.Unlock()
		return pid, err
	case NotStarted:
	}

	s.startDone = make(chan struct{})
	s.setStatusLocked(Starting)
	s.mu.Unlock()

	pid, err := s.doStart(ctx)

	s.mu.Lock()
	s.startPid, s.startErr = pid, err
	close(s.startDone)
	s.mu.Unlock()
	return pid, err
}

// doStart performs descriptor resolution and the spawn. It runs outside the
// state lock; the Starting status keeps other callers parked on startDone.
func (s *Service) doStart(ctx context.Context) (int, error) {
	desc, err := s.provider.Build(ctx)
	if err != nil {
		err = fmt.Errorf("resolve %s descriptor: %w", s.name, err)
		s.failStart(s.name, err)
		return 0, err
	}

	h, err := process.Spawn(process.SpawnConfig{
		Name:     s.name,
		Command:  desc.Command,
		Args:     desc.Args,
		Dir:      desc.WorkingDirectory,
		Env:      desc.Environment,
		LogDir:   s.logDir,
		Shutdown: shutdownKind(desc.Shutdown),
		Logger:   s.log,
	})
	if err != nil {
		s.failStart(desc.Command, err)
		return 0, err
	}

	s.mu.Lock()
	s.desc = &desc
	s.handle = h
	s.setStatusLocked(Started)
	s.mu.Unlock()

	s.log.Info("service started", "service", s.name, "pid", h.Pid(),
		"command", desc.Command, "shutdown", desc.Shutdown.String())

	go s.monitor(h, desc.Command)
	return h.Pid(), nil
}

// failStart records a spawn or resolution failure: the service moves from
// Starting directly to Stopped with Err set in the cached ExitStatus.
func (s *Service) failStart(command string, err error) {
	s.log.Error("service failed to start", "service", s.name, "error", err)
	s.mu.Lock()
	s.exit = &ExitStatus{Command: command, Err: err}
	s.setStatusLocked(Stopped)
	close(s.stopped)
	s.mu.Unlock()
}

// monitor owns the single cmd.Wait result. It runs for the whole life of the
// process and finalizes the ExitStatus whichever way the process ends:
// natural exit, cooperative shutdown, or SIGKILL escalation.
func (s *Service) monitor(h *process.Handle, command string) {
	waitErr := <-h.WaitDone()
	st := exitStatusFromWait(command, waitErr, h.ProcessState())

	s.mu.Lock()
	if s.status == Stopped {
		// Terminal state already reached; nothing to finalize.
		s.mu.Unlock()
		return
	}
	if s.status != Stopping {
		// Unexpected natural exit: pass through Stopping so observers see
		// the full transition sequence.
		s.setStatusLocked(Stopping)
	}
	s.exit = &st
	h.Close()
	s.handle = nil
	s.setStatusLocked(Stopped)
	close(s.stopped)
	s.mu.Unlock()

	s.log.Info("service stopped", "service", s.name, "exit", st.String())
}

// Stop shuts the process down and returns its terminal ExitStatus.
//
// Only the first caller while the service is Started triggers the shutdown
// sequence: the cooperative request per the descriptor's ShutdownMethod,
// then SIGKILL when timeout elapses. All callers, including ones arriving
// during Stopping or after Stopped, receive the same cached ExitStatus.
//
// A timeout <= 0 skips the cooperative phase and kills immediately.
// Stopping a NotStarted service synthesizes an empty ExitStatus: a service
// that never started is vacuously stopped.
func (s *Service) Stop(ctx context.Context, timeout time.Duration) (ExitStatus, error) {
	for {
		s.mu.Lock()
		switch s.status {
		case NotStarted:
			s.exit = &ExitStatus{}
			s.setStatusLocked(Stopped)
			close(s.stopped)
			st := *s.exit
			s.mu.Unlock()
			return st, nil

		case Starting:
			done := s.startDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ExitStatus{}, fmt.Errorf("stop %s: %w", s.name, ctx.Err())
			}
			// Start settled as Started or Stopped; re-evaluate.
			continue

		case Started:
			s.setStatusLocked(Stopping)
			h := s.handle
			s.mu.Unlock()
			return s.shutdown(ctx, h, timeout)

		case Stopping:
			s.mu.Unlock()
			return s.waitStopped(ctx, nil)

		case Stopped:
			st := *s.exit
			s.mu.Unlock()
			return st, nil
		}
	}
}

// shutdown runs the escalation sequence for the first Stop caller. Once the
// cooperative request has been sent the kill timer's lifetime is tied to the
// service, not the caller: a caller whose context expires leaves the
// escalation armed, and the timer is canceled only when the service reaches
// Stopped. Firing after the process exited is a harmless no-op.
func (s *Service) shutdown(ctx context.Context, h *process.Handle, timeout time.Duration) (ExitStatus, error) {
	if timeout <= 0 {
		s.log.Info("stopping service forcefully", "service", s.name, "pid", h.Pid())
		h.Kill()
		return s.waitStopped(ctx, time.After(killDrainTimeout))
	}

	s.log.Info("stopping service", "service", s.name, "pid", h.Pid(), "timeout", timeout)
	if err := h.InitiateShutdown(); err != nil {
		// The cooperative channel is unavailable, most likely because the
		// process is already gone; the monitor will finalize shortly.
		s.log.Debug("cooperative shutdown request failed", "service", s.name, "error", err)
	}

	killTimer := time.AfterFunc(timeout, func() {
		s.log.Warn("shutdown timeout elapsed, killing process",
			"service", s.name, "pid", h.Pid(), "timeout", timeout)
		h.Kill()
	})
	go func() {
		<-s.stopped
		killTimer.Stop()
	}()

	return s.waitStopped(ctx, time.After(timeout+killDrainTimeout))
}

// waitStopped blocks until the service reaches Stopped and returns the
// cached ExitStatus. drain, when non-nil, is a hard upper bound used after
// SIGKILL; if it fires, cmd.Wait is stuck and the process state is unknown.
func (s *Service) waitStopped(ctx context.Context, drain <-chan time.Time) (ExitStatus, error) {
	select {
	case <-s.stopped:
		s.mu.Lock()
		st := *s.exit
		s.mu.Unlock()
		return st, nil
	case <-drain:
		return ExitStatus{}, fmt.Errorf("stop %s: timed out waiting for process exit after SIGKILL", s.name)
	case <-ctx.Done():
		return ExitStatus{}, fmt.Errorf("stop %s: %w", s.name, ctx.Err())
	}
}

// WaitForExit blocks until the service reaches Stopped, however it got
// there, and returns the cached ExitStatus. Returns immediately if already
// Stopped.
func (s *Service) WaitForExit(ctx context.Context) (ExitStatus, error) {
	select {
	case <-s.stopped:
		s.mu.Lock()
		st := *s.exit
		s.mu.Unlock()
		return st, nil
	case <-ctx.Done():
		return ExitStatus{}, fmt.Errorf("wait for %s exit: %w", s.name, ctx.Err())
	}
}

// shutdownKind maps the public ShutdownMethod to the process-level kind.
func shutdownKind(m ShutdownMethod) process.ShutdownKind {
	switch m {
	case CloseStdin:
		return process.ShutdownStdin
	case CloseAuxiliaryPipe:
		return process.ShutdownPipe
	default:
		return process.ShutdownSignal
	}
}
