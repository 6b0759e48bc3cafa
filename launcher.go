package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/IntersectMBO/cardano-launcher/internal/cardanonode"
	"github.com/IntersectMBO/cardano-launcher/internal/cardanowallet"
	"github.com/IntersectMBO/cardano-launcher/internal/fileutil"
	"github.com/IntersectMBO/cardano-launcher/internal/netutil"
	"github.com/IntersectMBO/cardano-launcher/internal/process"
	"github.com/IntersectMBO/cardano-launcher/service"
)

// lockFileName is the flock file guarding the state directory against
// concurrent launcher instances.
const lockFileName = "launcher.lock"

// readinessPollInterval is how often the wallet API port is probed during
// Start.
const readinessPollInterval = time.Second

// readinessInitialDelay gives the wallet a moment to bind its listener
// before the first probe.
const readinessInitialDelay = 200 * time.Millisecond

// Launcher supervises a cardano-node and cardano-wallet pair as one unit:
// either both backends run, or both are brought down. Start spawns the node,
// then the wallet against the node's socket, and blocks until the wallet API
// accepts connections. Once either backend stops, for any reason, the other
// is stopped as well and the launcher settles on a final LaunchExitStatus.
//
// A Launcher runs exactly one incarnation of the pair; it cannot be
// restarted after Stop.
type Launcher struct {
	cfg Config
	log *slog.Logger

	ports      *netutil.PortRegistry
	nodeProv   *cardanonode.Provider
	walletProv *cardanowallet.Provider
	node       *service.Service
	wallet     *service.Service

	flk *flock.Flock

	mu       sync.Mutex
	started  bool
	conn     *ConnectionInfo
	readyObs []connObserver
	exitObs  []exitObserver
	nextObs  int

	// exitOnce guards the one-shot exit latch: exitVal is written exactly
	// once, then exitCh is closed.
	exitOnce sync.Once
	exitVal  LaunchExitStatus
	exitCh   chan struct{}

	sigCh chan os.Signal
}

type connObserver struct {
	id int
	fn func(ConnectionInfo)
}

type exitObserver struct {
	id int
	fn func(LaunchExitStatus)
}

// New wires up a Launcher from cfg. No I/O happens here: directories, the
// lock file, ports and processes are all deferred to Start.
func New(cfg Config) (*Launcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid launcher config: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	ports := netutil.NewPortRegistry(log)

	nodeProv, err := cardanonode.New(cardanonode.Config{
		Binary:       cfg.NodeBinary,
		ConfigPath:   cfg.NodeConfigPath,
		TopologyPath: cfg.NodeTopologyPath,
		StateDir:     cfg.StateDir,
		SocketPath:   cfg.NodeSocketPath,
		Port:         cfg.NodePort,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	walletProv, err := cardanowallet.New(cardanowallet.Config{
		Binary:        cfg.WalletBinary,
		StateDir:      cfg.StateDir,
		ListenAddress: cfg.ListenAddress,
		Port:          cfg.APIPort,
		Mainnet:       cfg.Mainnet,
		GenesisFile:   cfg.ByronGenesisPath,
		NodeSocket:    nodeProv.SocketPath,
		Ports:         ports,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	node, err := service.New(service.Config{
		Name:     "cardano-node",
		Provider: nodeProv,
		LogDir:   cfg.StateDir,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	wallet, err := service.New(service.Config{
		Name:     "cardano-wallet",
		Provider: walletProv,
		LogDir:   cfg.StateDir,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	l := &Launcher{
		cfg:        cfg,
		log:        log,
		ports:      ports,
		nodeProv:   nodeProv,
		walletProv: walletProv,
		node:       node,
		wallet:     wallet,
		flk:        flock.New(filepath.Join(cfg.StateDir, lockFileName)),
		exitCh:     make(chan struct{}),
	}

	// Cross-failure propagation: when one backend reaches Stopped, stop the
	// other. The stop runs in a goroutine because status observers may not
	// re-enter their Service, and because the counterpart's Stop blocks.
	node.OnStatusChange(func(st service.Status) {
		if st == service.Stopped {
			go func() {
				_, _ = l.wallet.Stop(context.Background(), service.DefaultStopTimeout)
			}()
		}
	})
	wallet.OnStatusChange(func(st service.Status) {
		if st == service.Stopped {
			go func() {
				_, _ = l.node.Stop(context.Background(), service.DefaultStopTimeout)
			}()
		}
	})

	return l, nil
}

// Node returns the service supervising the cardano-node process.
func (l *Launcher) Node() *service.Service {
	return l.node
}

// Wallet returns the service supervising the cardano-wallet process.
func (l *Launcher) Wallet() *service.Service {
	return l.wallet
}

// ConnectionInfo returns the wallet API endpoint, or nil before Start has
// succeeded.
func (l *Launcher) ConnectionInfo() *ConnectionInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	c := *l.conn
	return &c
}

// OnReady registers fn to be called once when the wallet API has accepted
// its first connection. Registrations after that point fire immediately.
// The returned cancel function removes the registration.
func (l *Launcher) OnReady(fn func(ConnectionInfo)) (cancel func()) {
	l.mu.Lock()
	if l.conn != nil {
		conn := *l.conn
		l.mu.Unlock()
		fn(conn)
		return func() {}
	}
	id := l.nextObs
	l.nextObs++
	l.readyObs = append(l.readyObs, connObserver{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, o := range l.readyObs {
			if o.id == id {
				l.readyObs = append(l.readyObs[:i], l.readyObs[i+1:]...)
				return
			}
		}
	}
}

// OnExit registers fn to be called once when both backends have stopped
// and the final LaunchExitStatus is settled. Registrations after that point
// fire immediately. The returned cancel function removes the registration.
func (l *Launcher) OnExit(fn func(LaunchExitStatus)) (cancel func()) {
	l.mu.Lock()
	select {
	case <-l.exitCh:
		st := l.exitVal
		l.mu.Unlock()
		fn(st)
		return func() {}
	default:
	}
	id := l.nextObs
	l.nextObs++
	l.exitObs = append(l.exitObs, exitObserver{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, o := range l.exitObs {
			if o.id == id {
				l.exitObs = append(l.exitObs[:i], l.exitObs[i+1:]...)
				return
			}
		}
	}
}

// Start brings up the backend pair and blocks until the wallet API accepts
// connections, returning its ConnectionInfo.
//
// The sequence is: lock the state directory, start cardano-node, start
// cardano-wallet against the node's socket, then probe the wallet API port.
// If either backend fails to spawn or exits before the API is reachable,
// both are stopped and a BackendExitedError carrying the final exit pair is
// returned. If the readiness timeout elapses while both backends are still
// running, ErrReadinessTimeout is returned and the backends are left
// running; the caller decides whether to Stop or keep waiting via WaitExit.
//
// Start can be called at most once per Launcher.
func (l *Launcher) Start(ctx context.Context) (ConnectionInfo, error) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ConnectionInfo{}, ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	if err := fileutil.EnsureDir(l.cfg.StateDir); err != nil {
		return ConnectionInfo{}, fmt.Errorf("create state dir: %w", err)
	}

	locked, err := l.flk.TryLock()
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("lock state dir: %w", err)
	}
	if !locked {
		return ConnectionInfo{}, fmt.Errorf("lock state dir %s: %w", l.cfg.StateDir, ErrStateDirInUse)
	}

	if l.cfg.APIPort > 0 {
		if err := l.ports.Reserve(l.cfg.APIPort); err != nil {
			l.unlockStateDir()
			return ConnectionInfo{}, fmt.Errorf("reserve wallet API port: %w", err)
		}
	}

	l.log.Info("starting backends", "state_dir", l.cfg.StateDir, "mainnet", l.cfg.Mainnet)

	// The node starts first: its Build resolves the socket path the wallet
	// descriptor consumes.
	if _, err := l.node.Start(ctx); err != nil {
		return ConnectionInfo{}, l.failStart(ctx, fmt.Errorf("start cardano-node: %w", err))
	}
	if _, err := l.wallet.Start(ctx); err != nil {
		return ConnectionInfo{}, l.failStart(ctx, fmt.Errorf("start cardano-wallet: %w", err))
	}

	if !l.cfg.NoSignalHandlers {
		l.installSignalHandlers()
	}
	go l.collectExit()

	if err := l.awaitReady(ctx); err != nil {
		return ConnectionInfo{}, err
	}

	conn := newConnectionInfo("http", l.walletProv.ListenAddress(), l.walletProv.Port())
	l.mu.Lock()
	l.conn = &conn
	obs := l.readyObs
	l.readyObs = nil
	l.mu.Unlock()
	for _, o := range obs {
		o.fn(conn)
	}

	l.log.Info("wallet API ready", "url", conn.BaseURL)
	return conn, nil
}

// awaitReady probes the wallet API port until it accepts a connection,
// either backend stops, or the configured timeout elapses.
func (l *Launcher) awaitReady(ctx context.Context) error {
	// Closed when either backend reaches Stopped, so the probe loop aborts
	// as soon as a backend dies instead of polling out the full timeout.
	anyStopped := make(chan struct{})
	go func() {
		select {
		case <-l.node.Stopped():
		case <-l.wallet.Stopped():
		}
		close(anyStopped)
	}()

	err := process.WaitReadyTCP(ctx, process.WaitReadyConfig{
		InitialDelay:  readinessInitialDelay,
		Interval:      readinessPollInterval,
		Timeout:       l.cfg.readyTimeout(),
		Name:          "cardano-wallet",
		Port:          l.walletProv.Port(),
		Logger:        l.log,
		ProcessExited: anyStopped,
	}, l.walletProv.ListenAddress())
	if err == nil {
		return nil
	}

	if errors.Is(err, process.ErrProcessExited) {
		return l.failStart(ctx, err)
	}
	// Timeout or caller cancellation: both backends are still running and
	// stay running. The caller owns the decision to Stop.
	l.log.Warn("wallet API not ready", "error", err)
	return err
}

// failStart tears the pair down after a startup failure and wraps the
// settled exit pair in a BackendExitedError.
func (l *Launcher) failStart(ctx context.Context, cause error) error {
	l.log.Error("startup failed, stopping backends", "error", cause)
	st, err := l.Stop(ctx, service.DefaultStopTimeout)
	if err != nil {
		return fmt.Errorf("%w (stop after failure: %v)", &BackendExitedError{Status: st}, err)
	}
	return &BackendExitedError{Status: st}
}

// collectExit waits for both backends to settle on their own and latches
// the final exit pair. It uses a background context because it observes
// exits that happen after the Start caller's context is long gone.
func (l *Launcher) collectExit() {
	ctx := context.Background()
	ns, _ := l.node.WaitForExit(ctx)
	ws, _ := l.wallet.WaitForExit(ctx)
	l.finalizeExit(LaunchExitStatus{Node: ns, Wallet: ws})
}

// installSignalHandlers stops the pair on SIGINT, SIGTERM or SIGHUP. The
// stop uses a zero timeout: a signal means the operator wants the processes
// gone now, so the cooperative phase is skipped. The zero timeout is best
// effort: if the first backend stops before this Stop reaches the second
// one, the cross-failure observer may get there first and grant the
// counterpart the default grace instead.
func (l *Launcher) installSignalHandlers() {
	l.sigCh = make(chan os.Signal, 1)
	signal.Notify(l.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig, ok := <-l.sigCh
		if !ok {
			return
		}
		l.log.Info("received signal, stopping backends", "signal", sig.String())
		_, _ = l.Stop(context.Background(), 0)
	}()
}

// Stop shuts both backends down concurrently and returns the final exit
// pair. Safe to call multiple times and from multiple goroutines; every
// caller receives the same LaunchExitStatus.
func (l *Launcher) Stop(ctx context.Context, timeout time.Duration) (LaunchExitStatus, error) {
	var ns, ws service.ExitStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := l.node.Stop(gctx, timeout)
		if err != nil {
			return fmt.Errorf("stop cardano-node: %w", err)
		}
		ns = st
		return nil
	})
	g.Go(func() error {
		st, err := l.wallet.Stop(gctx, timeout)
		if err != nil {
			return fmt.Errorf("stop cardano-wallet: %w", err)
		}
		ws = st
		return nil
	})
	if err := g.Wait(); err != nil {
		return LaunchExitStatus{}, err
	}

	l.finalizeExit(LaunchExitStatus{Node: ns, Wallet: ws})
	<-l.exitCh
	return l.exitVal, nil
}

// WaitExit blocks until both backends have stopped, however that came
// about, and returns the final exit pair.
func (l *Launcher) WaitExit(ctx context.Context) (LaunchExitStatus, error) {
	select {
	case <-l.exitCh:
		return l.exitVal, nil
	case <-ctx.Done():
		return LaunchExitStatus{}, fmt.Errorf("wait for backend exit: %w", ctx.Err())
	}
}

// finalizeExit latches the final exit pair exactly once, releases the
// launcher's resources, and notifies exit observers. Later calls with a
// different status are ignored; the first settled pair wins.
func (l *Launcher) finalizeExit(st LaunchExitStatus) {
	l.exitOnce.Do(func() {
		// exitVal is published and the latch closed under the same lock
		// OnExit registers under, so a registration either lands in obs or
		// observes the closed latch and fires itself; none are lost.
		l.mu.Lock()
		l.exitVal = st
		obs := l.exitObs
		l.exitObs = nil
		close(l.exitCh)
		l.mu.Unlock()

		if p := l.walletProv.Port(); p > 0 {
			l.ports.Release(p)
		}
		if l.sigCh != nil {
			signal.Stop(l.sigCh)
			close(l.sigCh)
		}
		l.unlockStateDir()

		for _, o := range obs {
			o.fn(st)
		}
		l.log.Info("backends exited",
			"node", st.Node.String(), "wallet", st.Wallet.String(),
			"exit_code", st.CombinedExitCode())
	})
}

func (l *Launcher) unlockStateDir() {
	if err := l.flk.Unlock(); err != nil {
		l.log.Debug("unlock state dir", "error", err)
	}
}
