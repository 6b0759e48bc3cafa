package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Sentinel errors returned by WaitReady. Callers can match these with
// errors.Is through wrapped error chains.
var (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")

	// ErrProcessExited indicates the polled process exited before becoming
	// ready. Polling stops without declaring readiness.
	ErrProcessExited = errors.New("process exited before becoming ready")

	// ErrReadinessTimeout indicates the overall timeout elapsed without a
	// successful check. The deadline is hard: callers needing to retry must
	// start a new WaitReady.
	ErrReadinessTimeout = errors.New("timed out waiting for readiness")
)

// readinessDialTimeout is the per-attempt timeout for the TCP dial used by
// WaitReadyTCP. 1 second is generous for a loopback connection; attempts that
// fail because nothing is listening return immediately with connection
// refused, so this only guards pathological cases (SYN sent, no SYN-ACK).
const readinessDialTimeout = time.Second

// ReadinessCheck is a single probe of a process's readiness. The context is
// canceled when the polling loop times out or the caller cancels, allowing
// checks to exit promptly. The attempt parameter is 1-based. It returns true
// when ready, false to continue polling; the error return is for fatal
// conditions that abort polling.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures the polling behavior.
type WaitReadyConfig struct {
	InitialDelay  time.Duration   // Delay before the first attempt; zero polls immediately
	Interval      time.Duration   // Poll interval
	Timeout       time.Duration   // Overall timeout, including the initial delay
	Name          string          // For logging and error messages (e.g., "cardano-wallet")
	Port          int             // For logging context
	Logger        *slog.Logger    // Optional logger (defaults to slog.Default())
	ProcessExited <-chan struct{} // If non-nil, abort immediately when closed (process died)
}

// WaitReady polls until the check returns true, the check returns a fatal
// error, the process exits, or the timeout elapses. Individual failed
// attempts are never reported to the caller; only exhaustion of the timeout
// (ErrReadinessTimeout), process exit (ErrProcessExited), or caller
// cancellation is observable.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	deadline := time.Now().Add(cfg.Timeout)
	if cfg.InitialDelay > 0 {
		delay := time.NewTimer(cfg.InitialDelay)
		defer delay.Stop()
		select {
		case <-delay.C:
		case <-cfg.ProcessExited:
			return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, ErrProcessExited)
		case <-ctx.Done():
			return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, ctx.Err())
		}
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, ErrReadinessTimeout)
	}

	// attempt is safe to increment without synchronization because
	// PollUntilContextTimeout invokes the condition function sequentially:
	// each call completes before the next is scheduled.
	attempt := 0
	err := wait.PollUntilContextTimeout(ctx, cfg.Interval, remaining, true,
		func(pollCtx context.Context) (bool, error) {
			// Abort before probing if the process is already gone. This
			// avoids polling out the full timeout when a process dies
			// immediately (e.g., bad arguments, port bind failure).
			if cfg.ProcessExited != nil {
				select {
				case <-cfg.ProcessExited:
					return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
				default:
				}
			}

			attempt++
			ready, checkErr := check(pollCtx, attempt)
			if checkErr != nil {
				return false, checkErr
			}
			if ready {
				log.Debug("wait succeeded", "name", cfg.Name, "port", cfg.Port, "attempt", attempt)
			}
			return ready, nil
		})
	if err == nil {
		return nil
	}
	// Distinguish deadline exhaustion of the poll loop from cancellation of
	// the caller's context: only the former is a readiness timeout.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrReadinessTimeout
	}
	return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, err)
}

// WaitReadyTCP polls a TCP endpoint until it accepts a connection.
// Connections made purely to test reachability are closed immediately.
func WaitReadyTCP(ctx context.Context, cfg WaitReadyConfig, host string) error {
	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Port))

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	dialer := &net.Dialer{Timeout: readinessDialTimeout}
	return WaitReady(ctx, cfg, func(checkCtx context.Context, attempt int) (bool, error) {
		conn, err := dialer.DialContext(checkCtx, "tcp", addr)
		if err != nil {
			log.Debug("readiness attempt", "name", cfg.Name, "port", cfg.Port, "attempt", attempt, "error", err)
			return false, nil // Not ready yet
		}
		_ = conn.Close() // best-effort close of the probe connection
		return true, nil
	})
}
