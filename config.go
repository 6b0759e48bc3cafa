package launcher

import (
	"errors"
	"log/slog"
	"time"

	"github.com/IntersectMBO/cardano-launcher/internal/sentinel"
)

const (
	// ErrNoStateDir is returned when Config.StateDir is empty.
	ErrNoStateDir = sentinel.Error("state directory must not be empty")
	// ErrNoNodeConfig is returned when Config.NodeConfigPath is empty.
	ErrNoNodeConfig = sentinel.Error("node configuration file must not be empty")
	// ErrNoNodeTopology is returned when Config.NodeTopologyPath is empty.
	ErrNoNodeTopology = sentinel.Error("node topology file must not be empty")
	// ErrNoGenesis is returned when a testnet configuration is missing its
	// Byron genesis file.
	ErrNoGenesis = sentinel.Error("byron genesis file must not be empty for testnets")
)

// DefaultReadyTimeout bounds how long Launcher.Start waits for the wallet
// API to accept connections before giving up.
const DefaultReadyTimeout = 90 * time.Second

// Config carries everything the launcher needs to start a cardano-node and
// cardano-wallet pair against one state directory.
type Config struct {
	// StateDir is the directory holding the node database, wallet
	// databases, log files and the launcher lock file. Created if it
	// does not exist.
	StateDir string

	// Mainnet selects the mainnet network. When false the launcher runs
	// against a testnet and ByronGenesisPath is required.
	Mainnet bool

	// NodeConfigPath is the cardano-node configuration file.
	NodeConfigPath string
	// NodeTopologyPath is the cardano-node topology file.
	NodeTopologyPath string
	// ByronGenesisPath is the Byron genesis file handed to the wallet on
	// testnets. Ignored on mainnet.
	ByronGenesisPath string

	// NodeBinary overrides the cardano-node executable. Defaults to
	// "cardano-node" resolved via PATH.
	NodeBinary string
	// WalletBinary overrides the cardano-wallet executable. Defaults to
	// "cardano-wallet" resolved via PATH.
	WalletBinary string

	// NodeSocketPath pins the node-to-wallet socket path. When empty a
	// collision-free path inside StateDir is generated.
	NodeSocketPath string
	// NodePort pins the cardano-node listen port. Zero lets the node
	// pick its own.
	NodePort int

	// ListenAddress is the wallet API bind address. Defaults to
	// "127.0.0.1".
	ListenAddress string
	// APIPort pins the wallet API port. Zero allocates a free port.
	APIPort int

	// ReadyTimeout bounds the wallet API readiness wait. Defaults to
	// DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// NoSignalHandlers disables the SIGINT/SIGTERM/SIGHUP handlers that
	// stop both backends. Useful when the embedding program owns signal
	// handling.
	NoSignalHandlers bool

	// Logger receives launcher log records. Defaults to the package
	// logger.
	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error

	if c.StateDir == "" {
		errs = append(errs, ErrNoStateDir)
	}
	if c.NodeConfigPath == "" {
		errs = append(errs, ErrNoNodeConfig)
	}
	if c.NodeTopologyPath == "" {
		errs = append(errs, ErrNoNodeTopology)
	}
	if !c.Mainnet && c.ByronGenesisPath == "" {
		errs = append(errs, ErrNoGenesis)
	}

	return errors.Join(errs...)
}

func (c Config) readyTimeout() time.Duration {
	if c.ReadyTimeout > 0 {
		return c.ReadyTimeout
	}
	return DefaultReadyTimeout
}
