package cardanonode

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/IntersectMBO/cardano-launcher/service"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		ConfigPath:   "/etc/cardano/configuration.yaml",
		TopologyPath: "/etc/cardano/topology.json",
		StateDir:     t.TempDir(),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*Config){
		"missing config path":   func(c *Config) { c.ConfigPath = "" },
		"missing topology path": func(c *Config) { c.TopologyPath = "" },
		"missing state dir":     func(c *Config) { c.StateDir = "" },
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

func TestProvider_Build(t *testing.T) {
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

	if desc.Command != "cardano-node" {
		t.Errorf("command = %q, want %q", desc.Command, "cardano-node")
	}
	if desc.Shutdown != service.CloseAuxiliaryPipe {
		t.Errorf("shutdown = %v, want CloseAuxiliaryPipe", desc.Shutdown)
	}

	dbDir := filepath.Join(cfg.StateDir, "db")
	if info, statErr := os.Stat(dbDir); statErr != nil || !info.IsDir() {
		t.Errorf("expected database dir %s to exist: %v", dbDir, statErr)
	}

	socket := p.SocketPath()
	if socket == "" {
		t.Fatal("socket path not resolved by Build")
	}
	if !strings.HasPrefix(socket, cfg.StateDir) {
		t.Errorf("socket %q not inside state dir %q", socket, cfg.StateDir)
	}

	want := []string{
		"run",
		"--config", cfg.ConfigPath,
		"--topology", cfg.TopologyPath,
		"--database-path", dbDir,
		"--socket-path", socket,
		"--shutdown-ipc", "3",
	}
	if !reflect.DeepEqual(desc.Args, want) {
		t.Errorf("args = %v, want %v", desc.Args, want)
	}
}

func TestProvider_Build_FixedSocketAndPort(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SocketPath = filepath.Join(cfg.StateDir, "node.socket")
	cfg.Port = 3001
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	desc, err := p.Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	if got := p.SocketPath(); got != cfg.SocketPath {
		t.Errorf("socket = %q, want configured %q", got, cfg.SocketPath)
	}
	last2 := desc.Args[len(desc.Args)-2:]
	if !reflect.DeepEqual(last2, []string{"--port", "3001"}) {
		t.Errorf("trailing args = %v, want [--port 3001]", last2)
	}
}

func TestGenerateSocketPath_Distinct(t *testing.T) {
	t.Parallel()

	a := generateSocketPath("/var/lib/cardano")
	b := generateSocketPath("/var/lib/cardano")
	if a == b {
		t.Fatalf("consecutive socket paths collide: %q", a)
	}
}
