package launcher

import "github.com/IntersectMBO/cardano-launcher/service"

// LaunchExitStatus is the consolidated outcome of one supervised session:
// how each of the two children ended. It is produced exactly once per
// Launcher lifetime, no matter how many triggers (manual stop, node crash,
// wallet crash, signal) fire concurrently.
type LaunchExitStatus struct {
	Node   service.ExitStatus
	Wallet service.ExitStatus
}

// exitCode reduces one child's ExitStatus to a process exit code: the
// child's own code when it exited normally, 1 for a signal-terminated
// child, 2 when it could not be spawned or waited on, and 0 for a child
// that never ran.
func exitCode(e service.ExitStatus) int {
	switch {
	case e.Code != nil:
		return *e.Code
	case e.Signal != "":
		return 1
	case e.Err != nil:
		return 2
	default:
		return 0
	}
}

// CombinedExitCode reduces the pair to a single exit code suitable for the
// supervising process: the wallet's abnormality wins (it is the component
// callers actually talk to), falling back to the node's.
func (s LaunchExitStatus) CombinedExitCode() int {
	if code := exitCode(s.Wallet); code != 0 {
		return code
	}
	return exitCode(s.Node)
}
