package cardanonode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/IntersectMBO/cardano-launcher/internal/fileutil"
	"github.com/IntersectMBO/cardano-launcher/service"
)

// DefaultBinary is the cardano-node executable name resolved via PATH when
// no explicit path is configured.
const DefaultBinary = "cardano-node"

// socketSerial disambiguates generated socket names when several nodes are
// launched from the same supervising process. It is process-wide state:
// zero at process start, incremented per generated name, never reset.
var socketSerial atomic.Uint64

// Compile-time interface satisfaction check.
var _ service.DescriptorProvider = (*Provider)(nil)

// Config holds the configuration for building a cardano-node descriptor.
type Config struct {
	Binary       string // Path to cardano-node (default: "cardano-node")
	ConfigPath   string // Node configuration file
	TopologyPath string // Network topology file
	StateDir     string // Directory for the chain database and the socket
	SocketPath   string // Optional: fixed node-to-client socket path
	Port         int    // Optional: peer-to-peer listen port; zero lets the node choose

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// validate checks that all required Config fields are set.
func (c Config) validate() error {
	if c.ConfigPath == "" {
		return errors.New("node config path must not be empty")
	}
	if c.TopologyPath == "" {
		return errors.New("node topology path must not be empty")
	}
	if c.StateDir == "" {
		return errors.New("state dir must not be empty")
	}
	return nil
}

// Provider builds the cardano-node ServiceDescriptor. Building is deferred
// until the Service starts because it creates the database directory on
// disk. The resolved socket path is consumed by the wallet descriptor
// (stage two of the launch pipeline) via SocketPath.
type Provider struct {
	config Config
	log    *slog.Logger

	// socketPath is set by Build. Readers must only call SocketPath after
	// the node Service's Start has returned, which is how the Launcher
	// serializes the two descriptor resolutions.
	socketPath string
}

// New creates a node descriptor Provider. Performs no I/O; all side effects
// are deferred to Build.
func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid cardano-node config: %w", err)
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Provider{config: cfg, log: log}, nil
}

// Build creates the database directory, picks the node-to-client socket
// path, and assembles the cardano-node argument list. The node is asked to
// watch a shutdown IPC pipe: when the launcher closes the write end, the
// node sees EOF on its inherited descriptor and shuts down cleanly, flushing
// its chain database.
func (p *Provider) Build(_ context.Context) (service.Descriptor, error) {
	dbDir := filepath.Join(p.config.StateDir, "db")
	if err := fileutil.EnsureDir(dbDir); err != nil {
		return service.Descriptor{}, fmt.Errorf("create node database dir: %w", err)
	}

	socket := p.config.SocketPath
	if socket == "" {
		socket = generateSocketPath(p.config.StateDir)
	} else if err := fileutil.EnsureDirForFile(socket); err != nil {
		// A configured socket path may point outside the state dir.
		return service.Descriptor{}, fmt.Errorf("create socket dir: %w", err)
	}
	p.socketPath = socket

	args := []string{
		"run",
		"--config", p.config.ConfigPath,
		"--topology", p.config.TopologyPath,
		"--database-path", dbDir,
		"--socket-path", socket,
		"--shutdown-ipc", strconv.Itoa(service.AuxiliaryPipeFD),
	}
	if p.config.Port > 0 {
		args = append(args, "--port", strconv.Itoa(p.config.Port))
	}

	p.log.Debug("resolved node descriptor", "socket", socket, "db", dbDir)
	return service.Descriptor{
		Command:  p.config.Binary,
		Args:     args,
		Shutdown: service.CloseAuxiliaryPipe,
	}, nil
}

// SocketPath returns the node-to-client socket path chosen by Build.
// Empty until Build has run.
func (p *Provider) SocketPath() string {
	return p.socketPath
}

// generateSocketPath produces a socket path unique across node incarnations
// of this supervising process, so a stale socket file from a previous run
// cannot be confused with the live one.
func generateSocketPath(stateDir string) string {
	name := fmt.Sprintf("node-%d.%d.socket", os.Getpid(), socketSerial.Add(1))
	return filepath.Join(stateDir, name)
}
