package launcher

import (
	"fmt"
	"net"
	"strconv"
)

// APIPathPrefix is the version prefix of the cardano-wallet REST API.
const APIPathPrefix = "v2"

// ConnectionInfo describes how to reach the wallet API once the launcher
// has observed it accepting connections.
type ConnectionInfo struct {
	// BaseURL is the full API base, scheme included, with a trailing
	// slash: "http://127.0.0.1:8090/v2/".
	BaseURL string `json:"baseUrl"`
	// Scheme is "http" or "https".
	Scheme string `json:"scheme"`
	// Host is the listen address of the wallet API server.
	Host string `json:"host"`
	// Port is the wallet API port.
	Port int `json:"port"`
	// PathPrefix is the API version prefix without slashes, e.g. "v2".
	PathPrefix string `json:"pathPrefix"`
}

// newConnectionInfo assembles the ConnectionInfo for a wallet API endpoint.
// The authority part goes through net.JoinHostPort so IPv6 listen addresses
// come out bracketed.
func newConnectionInfo(scheme, host string, port int) ConnectionInfo {
	authority := net.JoinHostPort(host, strconv.Itoa(port))
	return ConnectionInfo{
		BaseURL:    fmt.Sprintf("%s://%s/%s/", scheme, authority, APIPathPrefix),
		Scheme:     scheme,
		Host:       host,
		Port:       port,
		PathPrefix: APIPathPrefix,
	}
}
