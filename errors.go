package launcher

import (
	"fmt"

	"github.com/IntersectMBO/cardano-launcher/internal/process"
	"github.com/IntersectMBO/cardano-launcher/internal/sentinel"
	"github.com/IntersectMBO/cardano-launcher/service"
)

// Sentinel errors for inspection with errors.Is.
const (
	// ErrAlreadyStarted is returned by Start when the Launcher has already
	// been started. A Launcher supervises one session and is not reusable.
	ErrAlreadyStarted = sentinel.Error("launcher already started")

	// ErrStateDirInUse is returned by Start when another launcher holds
	// the state directory lock. Two concurrently-supervised launchers must
	// never share a state directory.
	ErrStateDirInUse = sentinel.Error("state directory locked by another launcher")
)

// ErrServiceStopped is re-exported for callers inspecting Start failures of
// an individual Service.
const ErrServiceStopped = service.ErrServiceStopped

// ErrReadinessTimeout is returned (wrapped) by Start when the wallet API
// port never accepted a connection within the ready timeout. It is distinct
// from the children exiting: the processes may well still be running.
var ErrReadinessTimeout = process.ErrReadinessTimeout

// BackendExitedError is returned by Start when either child reaches Stopped
// before the wallet API becomes ready. Status carries the full outcome of
// both children so callers can tell which half was at fault and how.
type BackendExitedError struct {
	Status LaunchExitStatus
}

// Error implements the error interface.
func (e *BackendExitedError) Error() string {
	return fmt.Sprintf("backend exited before becoming ready: %s; %s",
		e.Status.Node.String(), e.Status.Wallet.String())
}
