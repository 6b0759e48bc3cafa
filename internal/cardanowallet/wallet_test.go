package cardanowallet

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"github.com/IntersectMBO/cardano-launcher/internal/netutil"
	"github.com/IntersectMBO/cardano-launcher/service"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		StateDir:   t.TempDir(),
		Mainnet:    true,
		NodeSocket: func() string { return "/var/lib/cardano/node.socket" },
		Ports:      netutil.NewPortRegistry(slog.Default()),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*Config){
		"missing state dir":        func(c *Config) { c.StateDir = "" },
		"missing node socket":      func(c *Config) { c.NodeSocket = nil },
		"no registry without port": func(c *Config) { c.Ports = nil },
		"negative port":            func(c *Config) { c.Port = -1 },
		"port too large":           func(c *Config) { c.Port = 70000 },
		"testnet without genesis":  func(c *Config) { c.Mainnet = false },
	}

	for name, mutate := range tests {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("expected config validation error, got nil")
			}
		})
	}
}

func TestNew_FixedPortNeedsNoRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Ports = nil
	cfg.Port = 8090
	if _, err := New(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProvider_Build_Mainnet(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	desc, err := p.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	if desc.Command != "cardano-wallet" {
		t.Errorf("command = %q, want %q", desc.Command, "cardano-wallet")
	}
	if desc.Shutdown != service.CloseStdin {
		t.Errorf("shutdown = %v, want CloseStdin", desc.Shutdown)
	}

	port := p.Port()
	if port <= 0 {
		t.Fatalf("port = %d, want an allocated port", port)
	}

	dbDir := filepath.Join(cfg.StateDir, "wallets")
	if info, statErr := os.Stat(dbDir); statErr != nil || !info.IsDir() {
		t.Errorf("expected wallet database dir %s to exist: %v", dbDir, statErr)
	}

	want := []string{
		"serve",
		"--node-socket", cfg.NodeSocket(),
		"--database", dbDir,
		"--listen-address", DefaultListenAddress,
		"--port", strconv.Itoa(port),
		"--shutdown-handler",
		"--mainnet",
	}
	if !reflect.DeepEqual(desc.Args, want) {
		t.Errorf("args = %v, want %v", desc.Args, want)
	}
}

func TestProvider_Build_Testnet(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Mainnet = false
	cfg.GenesisFile = "/etc/cardano/byron-genesis.json"
	cfg.Port = 8090
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	desc, err := p.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	last2 := desc.Args[len(desc.Args)-2:]
	if !reflect.DeepEqual(last2, []string{"--testnet", cfg.GenesisFile}) {
		t.Errorf("trailing args = %v, want [--testnet %s]", last2, cfg.GenesisFile)
	}
	if got := p.Port(); got != 8090 {
		t.Errorf("port = %d, want fixed 8090", got)
	}
}

func TestProvider_Build_UnresolvedSocket(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.NodeSocket = func() string { return "" }
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Build(context.Background()); err == nil {
		t.Fatal("expected error for unresolved node socket")
	}
}
