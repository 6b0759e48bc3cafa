package cardanowallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/IntersectMBO/cardano-launcher/internal/fileutil"
	"github.com/IntersectMBO/cardano-launcher/internal/netutil"
	"github.com/IntersectMBO/cardano-launcher/service"
)

// DefaultBinary is the cardano-wallet executable name resolved via PATH when
// no explicit path is configured.
const DefaultBinary = "cardano-wallet"

// DefaultListenAddress is the address the wallet API server binds to.
// Loopback only: the launcher supervises a local wallet, not a public one.
const DefaultListenAddress = "127.0.0.1"

// Compile-time interface satisfaction check.
var _ service.DescriptorProvider = (*Provider)(nil)

// Config holds the configuration for building a cardano-wallet descriptor.
type Config struct {
	Binary        string // Path to cardano-wallet (default: "cardano-wallet")
	StateDir      string // Directory for the wallet database
	ListenAddress string // API bind address (default: 127.0.0.1)
	Port          int    // API port; zero allocates a free port from Ports
	Mainnet       bool   // Selects --mainnet; otherwise --testnet GenesisFile
	GenesisFile   string // Byron genesis file, required when Mainnet is false

	// NodeSocket returns the node-to-client socket path resolved by the
	// node descriptor. Required. It is a function rather than a value
	// because the wallet descriptor is stage two of the launch pipeline:
	// it consumes the output of the node's own (asynchronous) resolution.
	NodeSocket func() string

	// Ports allocates the API port when Port is zero. Required in that case.
	Ports *netutil.PortRegistry

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// validate checks that all required Config fields are set and returns an
// error describing every violation found.
func (c Config) validate() error {
	var errs []error

	if c.StateDir == "" {
		errs = append(errs, errors.New("state dir must not be empty"))
	}
	if c.NodeSocket == nil {
		errs = append(errs, errors.New("node socket resolver must not be nil"))
	}
	if c.Port == 0 && c.Ports == nil {
		errs = append(errs, errors.New("port registry must not be nil when no fixed port is set"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, errors.New("port must be between 0 and 65535"))
	}
	if !c.Mainnet && c.GenesisFile == "" {
		errs = append(errs, errors.New("genesis file must not be empty for testnet"))
	}

	return errors.Join(errs...)
}

// Provider builds the cardano-wallet ServiceDescriptor. Building is deferred
// until the Service starts because it allocates the API port and creates the
// wallet database directory, both asynchronous and fallible.
type Provider struct {
	config Config
	log    *slog.Logger

	// port is set by Build. Readers must only call Port after the wallet
	// Service's Start has returned.
	port int
}

// New creates a wallet descriptor Provider. Performs no I/O; port
// allocation and directory creation are deferred to Build.
func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid cardano-wallet config: %w", err)
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Provider{config: cfg, log: log}, nil
}

// Build allocates the API port, creates the wallet database directory, and
// assembles the cardano-wallet `serve` argument list. The wallet runs with
// --shutdown-handler: it watches its stdin and exits cleanly when the
// launcher closes it, which lets it flush its database before terminating.
func (p *Provider) Build(_ context.Context) (service.Descriptor, error) {
	socket := p.config.NodeSocket()
	if socket == "" {
		return service.Descriptor{}, errors.New("node socket path not resolved")
	}

	dbDir := filepath.Join(p.config.StateDir, "wallets")
	if err := fileutil.EnsureDir(dbDir); err != nil {
		return service.Descriptor{}, fmt.Errorf("create wallet database dir: %w", err)
	}

	port := p.config.Port
	if port == 0 {
		var err error
		port, err = p.config.Ports.Allocate()
		if err != nil {
			return service.Descriptor{}, fmt.Errorf("allocate wallet API port: %w", err)
		}
	}
	p.port = port

	args := []string{
		"serve",
		"--node-socket", socket,
		"--database", dbDir,
		"--listen-address", p.config.ListenAddress,
		"--port", strconv.Itoa(port),
		"--shutdown-handler",
	}
	if p.config.Mainnet {
		args = append(args, "--mainnet")
	} else {
		args = append(args, "--testnet", p.config.GenesisFile)
	}

	p.log.Debug("resolved wallet descriptor", "port", port, "socket", socket, "db", dbDir)
	return service.Descriptor{
		Command:  p.config.Binary,
		Args:     args,
		Shutdown: service.CloseStdin,
	}, nil
}

// Port returns the API port chosen by Build, or the fixed configured port.
// Zero until Build has run (when no fixed port is configured).
func (p *Provider) Port() int {
	if p.port != 0 {
		return p.port
	}
	return p.config.Port
}

// ListenAddress returns the API bind address.
func (p *Provider) ListenAddress() string {
	return p.config.ListenAddress
}
