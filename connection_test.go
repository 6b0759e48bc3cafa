package launcher

import (
	"reflect"
	"testing"
)

func TestNewConnectionInfo(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scheme string
		host   string
		port   int
		want   ConnectionInfo
	}{
		"ipv4 loopback": {
			scheme: "http",
			host:   "127.0.0.1",
			port:   8090,
			want: ConnectionInfo{
				BaseURL:    "http://127.0.0.1:8090/v2/",
				Scheme:     "http",
				Host:       "127.0.0.1",
				Port:       8090,
				PathPrefix: "v2",
			},
		},
		"ipv6 loopback is bracketed": {
			scheme: "http",
			host:   "::1",
			port:   8090,
			want: ConnectionInfo{
				BaseURL:    "http://[::1]:8090/v2/",
				Scheme:     "http",
				Host:       "::1",
				Port:       8090,
				PathPrefix: "v2",
			},
		},
		"hostname": {
			scheme: "https",
			host:   "wallet.internal",
			port:   443,
			want: ConnectionInfo{
				BaseURL:    "https://wallet.internal:443/v2/",
				Scheme:     "https",
				Host:       "wallet.internal",
				Port:       443,
				PathPrefix: "v2",
			},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := newConnectionInfo(tc.scheme, tc.host, tc.port)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("connection info = %+v, want %+v", got, tc.want)
			}
		})
	}
}
