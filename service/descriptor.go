package service

import "context"

// ShutdownMethod selects how a child process is asked to exit before the
// Service escalates to SIGKILL.
//
// The cooperative methods exist because forceful termination prevents a
// database-backed child from closing its files or flushing its logs: the
// parent closes a stream the child is reading, the child observes EOF and
// shuts itself down cleanly.
type ShutdownMethod int

const (
	// SignalOnly sends SIGTERM immediately; there is no cooperative phase.
	SignalOnly ShutdownMethod = iota
	// CloseStdin closes the child's stdin (cardano-wallet's
	// --shutdown-handler watches for EOF on stdin).
	CloseStdin
	// CloseAuxiliaryPipe closes a pipe the child inherits as
	// AuxiliaryPipeFD (cardano-node's --shutdown-ipc).
	CloseAuxiliaryPipe
)

// AuxiliaryPipeFD is the file descriptor number at which a
// CloseAuxiliaryPipe child sees the read end of the shutdown pipe.
const AuxiliaryPipeFD = 3

// String returns a short name for the shutdown method.
func (m ShutdownMethod) String() string {
	switch m {
	case SignalOnly:
		return "signal"
	case CloseStdin:
		return "close-stdin"
	case CloseAuxiliaryPipe:
		return "close-aux-pipe"
	default:
		return "unknown"
	}
}

// Descriptor is everything needed to spawn one child process. It is produced
// by a DescriptorProvider and immutable once resolved.
type Descriptor struct {
	// Command is the executable path, or a name resolved via PATH.
	Command string
	// Args are the command arguments, not including the command itself.
	Args []string
	// WorkingDirectory is optional; empty inherits the supervisor's.
	WorkingDirectory string
	// Environment holds variable overrides appended to the supervisor's
	// environment; nil inherits it unchanged.
	Environment map[string]string
	// Shutdown selects the cooperative shutdown channel.
	Shutdown ShutdownMethod
}

// DescriptorProvider resolves a Descriptor on demand. Resolution is an
// asynchronous, fallible step rather than a pure function: building the
// wallet descriptor discovers a free TCP port, and building the node
// descriptor creates the database directory first. Build is called at most
// once per Service, from inside Start.
type DescriptorProvider interface {
	Build(ctx context.Context) (Descriptor, error)
}

// ProviderFunc adapts a function to the DescriptorProvider interface.
type ProviderFunc func(ctx context.Context) (Descriptor, error)

// Build implements DescriptorProvider.
func (f ProviderFunc) Build(ctx context.Context) (Descriptor, error) {
	return f(ctx)
}
