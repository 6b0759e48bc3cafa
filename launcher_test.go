package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/IntersectMBO/cardano-launcher/service"
)

// writeScript writes an executable shell script standing in for a backend
// binary.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("test setup: write %s: %v", name, err)
	}
	return path
}

// freePort asks the kernel for a free loopback port and closes the probe
// listener.
func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("test setup: listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// testConfig builds a launcher Config around fake backend scripts. The fake
// node blocks on its shutdown pipe; the fake wallet blocks on stdin. Both
// exit cleanly when their cooperative shutdown channel closes.
func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		StateDir:         t.TempDir(),
		Mainnet:          true,
		NodeConfigPath:   "/etc/cardano/configuration.yaml",
		NodeTopologyPath: "/etc/cardano/topology.json",
		NodeBinary:       writeScript(t, "fake-node", "cat <&3"),
		WalletBinary:     writeScript(t, "fake-wallet", "cat"),
		APIPort:          freePort(t),
		ReadyTimeout:     10 * time.Second,
		NoSignalHandlers: true,
	}
}

// listenOn opens a listener simulating the wallet API accepting connections
// and closes it when the test ends.
func listenOn(t *testing.T, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("test setup: listen on %d: %v", port, err)
	}
	t.Cleanup(func() { _ = ln.Close() })
}

func TestLauncher_StartStop(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	conn, err := l.Start(ctx)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	wantURL := fmt.Sprintf("http://127.0.0.1:%d/v2/", cfg.APIPort)
	want := ConnectionInfo{
		BaseURL:    wantURL,
		Scheme:     "http",
		Host:       "127.0.0.1",
		Port:       cfg.APIPort,
		PathPrefix: "v2",
	}
	if !reflect.DeepEqual(conn, want) {
		t.Errorf("connection info = %+v, want %+v", conn, want)
	}
	if got := l.ConnectionInfo(); got == nil || !reflect.DeepEqual(*got, want) {
		t.Errorf("ConnectionInfo() = %+v, want %+v", got, want)
	}

	if got := l.Node().Status(); got != service.Started {
		t.Errorf("node status = %v, want Started", got)
	}
	if got := l.Wallet().Status(); got != service.Started {
		t.Errorf("wallet status = %v, want Started", got)
	}

	st, err := l.Stop(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if st.Node.Code == nil || *st.Node.Code != 0 {
		t.Errorf("node exit = %v, want clean exit 0", st.Node)
	}
	if st.Wallet.Code == nil || *st.Wallet.Code != 0 {
		t.Errorf("wallet exit = %v, want clean exit 0", st.Wallet)
	}
	if code := st.CombinedExitCode(); code != 0 {
		t.Errorf("combined exit code = %d, want 0", code)
	}

	// WaitExit after the fact returns the same settled pair.
	again, err := l.WaitExit(ctx)
	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if !reflect.DeepEqual(again, st) {
		t.Errorf("WaitExit = %+v, want %+v", again, st)
	}
}

func TestLauncher_StartTwice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := l.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer func() { _, _ = l.Stop(ctx, 10*time.Second) }()

	if _, err := l.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start error = %v, want ErrAlreadyStarted", err)
	}
}

func TestLauncher_CrossFailurePropagation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := l.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Kill the wallet out-of-band; the launcher must bring the node down
	// in response.
	if err := syscall.Kill(l.Wallet().Pid(), syscall.SIGKILL); err != nil {
		t.Fatalf("test setup: kill wallet: %v", err)
	}

	st, err := l.WaitExit(ctx)
	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if st.Wallet.Signal != "SIGKILL" {
		t.Errorf("wallet exit = %v, want SIGKILL", st.Wallet)
	}
	if st.Node.Code == nil || *st.Node.Code != 0 {
		t.Errorf("node exit = %v, want clean exit after propagation", st.Node)
	}
	if got := l.Node().Status(); got != service.Stopped {
		t.Errorf("node status = %v, want Stopped", got)
	}
	if code := st.CombinedExitCode(); code != 1 {
		t.Errorf("combined exit code = %d, want 1 for signaled wallet", code)
	}
}

func TestLauncher_StartFailsWhenWalletExits(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.WalletBinary = writeScript(t, "fake-wallet", "exit 5")
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = l.Start(context.Background())
	var exited *BackendExitedError
	if !errors.As(err, &exited) {
		t.Fatalf("start error = %v, want BackendExitedError", err)
	}
	if exited.Status.Wallet.Code == nil || *exited.Status.Wallet.Code != 5 {
		t.Errorf("wallet exit = %v, want code 5", exited.Status.Wallet)
	}
	if got := l.Node().Status(); got != service.Stopped {
		t.Errorf("node status = %v, want Stopped after teardown", got)
	}
	if code := exited.Status.CombinedExitCode(); code != 5 {
		t.Errorf("combined exit code = %d, want 5", code)
	}
}

func TestLauncher_ReadinessTimeoutLeavesBackendsRunning(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ReadyTimeout = 500 * time.Millisecond
	// No listener on the API port: readiness can never succeed.
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	_, err = l.Start(ctx)
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("start error = %v, want ErrReadinessTimeout", err)
	}

	// The timeout is advisory: both backends keep running and the caller
	// decides what to do.
	if got := l.Node().Status(); got != service.Started {
		t.Errorf("node status = %v, want Started", got)
	}
	if got := l.Wallet().Status(); got != service.Started {
		t.Errorf("wallet status = %v, want Started", got)
	}

	if _, err := l.Stop(ctx, 10*time.Second); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestLauncher_StateDirLock(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	first, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := first.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// A second launcher on the same state directory must be refused while
	// the first holds the lock.
	second, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := second.Start(ctx); !errors.Is(err, ErrStateDirInUse) {
		t.Fatalf("second launcher start error = %v, want ErrStateDirInUse", err)
	}

	if _, err := first.Stop(ctx, 10*time.Second); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// The lock is released on stop; a fresh launcher can take over the
	// state directory.
	third, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := third.Start(ctx); err != nil {
		t.Fatalf("start after lock release: %v", err)
	}
	_, _ = third.Stop(ctx, 10*time.Second)
}

func TestLauncher_ConcurrentStopSingleExitEvent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	var exitEvents atomic.Int32
	l.OnExit(func(LaunchExitStatus) { exitEvents.Add(1) })

	if _, err := l.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	const callers = 3
	results := make([]LaunchExitStatus, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, stopErr := l.Stop(ctx, 10*time.Second)
			if stopErr != nil {
				t.Errorf("caller %d: %v", i, stopErr)
				return
			}
			results[i] = st
		}(i)
	}
	wg.Wait()

	// One more stop after everything settled.
	late, err := l.Stop(ctx, time.Second)
	if err != nil {
		t.Fatalf("unexpected late stop error: %v", err)
	}

	for i := 1; i < callers; i++ {
		if !reflect.DeepEqual(results[i], results[0]) {
			t.Fatalf("caller %d saw %+v, caller 0 saw %+v", i, results[i], results[0])
		}
	}
	if !reflect.DeepEqual(late, results[0]) {
		t.Fatalf("late stop saw %+v, want %+v", late, results[0])
	}
	if got := exitEvents.Load(); got != 1 {
		t.Fatalf("exit observer fired %d times, want exactly once", got)
	}
}

func TestLauncher_OnReadyAfterReadyFiresImmediately(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	listenOn(t, cfg.APIPort)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	conn, err := l.Start(ctx)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer func() { _, _ = l.Stop(ctx, 10*time.Second) }()

	var got ConnectionInfo
	l.OnReady(func(c ConnectionInfo) { got = c })
	if !reflect.DeepEqual(got, conn) {
		t.Fatalf("late OnReady saw %+v, want %+v", got, conn)
	}
}
