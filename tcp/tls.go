package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// TLSClientConfig returns a client TLS config for an https node. The base
// config is cloned so callers may share it between nodes.
func TLSClientConfig(base *tls.Config, serverName string, skipTLS bool) *tls.Config {
	var config *tls.Config
	if base != nil {
		config = base.Clone()
	} else {
		config = new(tls.Config)
	}
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	if skipTLS {
		config.InsecureSkipVerify = true
	}
	return config
}

// ListenTLS creates a listener accepting connections on the given network address and tls config.
func ListenTLS(network, address string, tlsConfig *tls.Config) (net.Listener, error) {
	if tlsConfig != nil {
		return tls.Listen(network, address, tlsConfig)
	}
	return net.Listen(network, address)
}

// DialTLSContext connects to address, wrapping the connection in TLS when
// tlsConfig is set. A zero timeout leaves the dial bounded by ctx only.
func DialTLSContext(ctx context.Context, network, address string, tlsConfig *tls.Config, timeout, keepAlive time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: keepAlive}
	if tlsConfig != nil {
		d := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		return d.DialContext(ctx, network, address)
	}
	return dialer.DialContext(ctx, network, address)
}
