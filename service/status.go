package service

// Status is the lifecycle state of a Service. A Service passes through the
// states in declaration order exactly once per lifetime; Stopped is terminal.
// The only permitted shortcuts are Starting -> Stopped (spawn failure) and
// NotStarted -> Stopped (stopping a service that never started).
type Status int

const (
	// NotStarted is the initial state; no process has been spawned.
	NotStarted Status = iota
	// Starting covers descriptor resolution and process spawning.
	Starting
	// Started means the child process is running.
	Started
	// Stopping means shutdown has been initiated (cooperatively or by
	// signal) and the Service is waiting for the process to exit.
	Stopping
	// Stopped is terminal: the process has been confirmed gone (or never
	// existed) and the ExitStatus is cached.
	Stopped
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
