// Package netutil provides network helpers for the launcher.
// Its central type, PortRegistry, allocates ephemeral loopback ports from the
// kernel and tracks reserved ports across the process, preventing duplicate
// allocation from the TOCTOU race between concurrent callers.
package netutil
