// Package cardanowallet translates launcher configuration into the
// ServiceDescriptor that spawns cardano-wallet. It owns the wallet-specific
// knowledge: the `serve` argument list, the stdin shutdown handler, the API
// port allocation, and the network selection flags.
package cardanowallet
