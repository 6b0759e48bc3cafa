// Package cardanonode translates launcher configuration into the
// ServiceDescriptor that spawns cardano-node. It owns the node-specific
// knowledge: the `run` argument list, the shutdown IPC descriptor, and the
// generation of unique node-to-client socket paths.
package cardanonode
