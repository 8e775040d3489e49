package connection

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/influxtsdb/nodepool/pkg/httputil"
)

// Transport is the pluggable part of a connection that moves requests to a
// single node.
type Transport interface {
	// RoundTrip executes a single request. It must honor the request's context.
	RoundTrip(req *http.Request) (*http.Response, error)

	// Close releases the transport's sockets. It is only called once all
	// requests issued through the transport reached a terminal state.
	Close() error
}

// TransportFactory builds the transport of a connection. It replaces the
// transport selected by Config.Transport when set on Options.
type TransportFactory func(u *url.URL, c Config, tlsConfig *tls.Config) (Transport, error)

// NewTransport returns the transport named by c.Transport.
func NewTransport(u *url.URL, c Config, tlsConfig *tls.Config) (Transport, error) {
	switch c.Transport {
	case TransportHTTP, "":
		return newHTTPTransport(c, tlsConfig), nil
	case TransportPipeline:
		return newPipelineTransport(u, c, tlsConfig)
	default:
		return nil, NewConfigurationError("unknown transport: '%s'", c.Transport)
	}
}

// httpTransport is a keep-alive agent bound to a single node.
type httpTransport struct {
	tr *http.Transport
}

func newHTTPTransport(c Config, tlsConfig *tls.Config) *httpTransport {
	return &httpTransport{
		tr: httputil.NewTransport(httputil.TransportConfig{
			KeepAlive:       c.KeepAlive,
			KeepAliveTime:   time.Duration(c.KeepAliveTime),
			DialTimeout:     time.Duration(c.DialTimeout),
			MaxIdleConns:    c.MaxIdleConns,
			MaxConnsPerHost: c.MaxConnsPerHost,
			IdleConnTimeout: time.Duration(c.IdleTimeout),
			TLS:             tlsConfig,
		}),
	}
}

func (t *httpTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.tr.RoundTrip(req)
}

func (t *httpTransport) Close() error {
	httputil.CloseIdleConnections(t.tr)
	return nil
}
