package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// maxPortRetries is the maximum number of attempts to find a port not already
// held in the registry. This guards against pathological cases where the
// kernel keeps handing back recently released ports.
const maxPortRetries = 20

// PortRegistry tracks ports reserved by this process. It prevents the TOCTOU
// race where two concurrent Allocate calls receive the same port from the
// kernel (because the first caller closed its probe listener before the
// second caller opened theirs).
//
// A Launcher creates one PortRegistry and allocates the wallet API port from
// it at descriptor-resolution time; the port is released back when the
// Launcher stops.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve attempts to register a port in the registry.
// Returns false if the port is already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// Reserve registers an externally chosen port (e.g., a fixed API port from
// configuration) so that Allocate never hands it out concurrently.
// Returns an error if the port is already reserved in this process.
func (r *PortRegistry) Reserve(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("reserve port %d: out of range", port)
	}
	if !r.reserve(port) {
		return fmt.Errorf("reserve port %d: already reserved in this process", port)
	}
	return nil
}

// Allocate asks the kernel for a free TCP port on the loopback interface and
// registers it. The probe listener is closed before returning; the port stays
// registered until the caller invokes Release, which protects it from being
// handed out again by a concurrent Allocate in the same process.
func (r *PortRegistry) Allocate() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("resolve tcp address: %w", err)
	}

	for attempt := 0; attempt < maxPortRetries; attempt++ {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		if r.reserve(tcpAddr.Port) {
			// Close the listener only after the port is registered so a
			// concurrent Allocate cannot receive the same port from the
			// kernel and pass the registry check.
			if closeErr := l.Close(); closeErr != nil {
				r.log.Warn("close listener after port allocation", "port", tcpAddr.Port, "error", closeErr)
			}
			return tcpAddr.Port, nil
		}
		r.log.Debug("port already in registry, retrying", "port", tcpAddr.Port)
		_ = l.Close()
	}
	return 0, fmt.Errorf("allocate unique port: exhausted %d attempts", maxPortRetries)
}
