// Package launcher starts and supervises a cardano-node and cardano-wallet
// process pair against a shared state directory.
//
// The two backends are treated as one unit. Start brings up the node, then
// the wallet connected to the node's socket, and blocks until the wallet
// REST API accepts connections:
//
//	l, err := launcher.New(launcher.Config{
//		StateDir:         "/var/lib/cardano",
//		Mainnet:          true,
//		NodeConfigPath:   "configuration.yaml",
//		NodeTopologyPath: "topology.json",
//	})
//	if err != nil {
//		// ...
//	}
//	conn, err := l.Start(ctx)
//	if err != nil {
//		// ...
//	}
//	fmt.Println(conn.BaseURL) // http://127.0.0.1:8090/v2/
//
//	st, _ := l.Stop(ctx, service.DefaultStopTimeout)
//	os.Exit(st.CombinedExitCode())
//
// When either backend exits, for any reason, the other is stopped as well;
// WaitExit and OnExit report the settled exit pair. Shutdown is cooperative
// first (the wallet's --shutdown-handler stdin protocol, the node's
// --shutdown-ipc pipe), escalating to SIGKILL after the timeout.
//
// Individual backend lifecycles are exposed as service.Service values via
// Node and Wallet for callers that need per-process status or pids.
package launcher
