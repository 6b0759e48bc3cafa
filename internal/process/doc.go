// Package process provides the low-level ownership wrapper around one child
// OS process.
//
// Handle spawns a command with its stdout/stderr redirected to log files,
// runs the single cmd.Wait goroutine, and exposes the cooperative-shutdown
// channel appropriate for the configured shutdown kind (closing the child's
// stdin, closing an auxiliary pipe inherited as fd 3, or sending SIGTERM).
// WaitReady implements polling-based readiness checks with an early abort
// when the polled process exits.
package process
