package connection

import (
	"time"

	"github.com/influxtsdb/nodepool/toml"
)

const (
	// TransportHTTP sends every request through a keep-alive http.Transport.
	TransportHTTP = "http"

	// TransportPipeline writes requests over a bounded pool of raw connections,
	// one request in flight per connection.
	TransportPipeline = "pipeline"
)

const (
	// DefaultTransport is the transport used when none is configured.
	DefaultTransport = TransportHTTP

	// DefaultRequestTimeout is the deadline applied to requests that do not set their own.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultDialTimeout is the maximum time spent establishing a connection to a node.
	DefaultDialTimeout = 10 * time.Second

	// DefaultKeepAliveTime is the interval between keep-alive probes on idle sockets.
	DefaultKeepAliveTime = time.Second

	// DefaultMaxIdleConns is the maximum number of idle sockets kept per node.
	DefaultMaxIdleConns = 256

	// DefaultMaxConnsPerHost is the maximum number of sockets opened per node
	// while keep-alive is enabled. It is unbounded otherwise.
	DefaultMaxConnsPerHost = 256

	// DefaultPipelineConnections is the size of the pipeline transport's pool.
	DefaultPipelineConnections = 100

	// DefaultIdleTimeout is the maximum time that an idle socket remains pooled.
	DefaultIdleTimeout = time.Minute

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "nodepool"
)

// Config represents the transport configuration of a connection.
type Config struct {
	Transport           string        `toml:"transport"`
	RequestTimeout      toml.Duration `toml:"request-timeout"`
	DialTimeout         toml.Duration `toml:"dial-timeout"`
	KeepAlive           bool          `toml:"keep-alive"`
	KeepAliveTime       toml.Duration `toml:"keep-alive-time"`
	MaxIdleConns        int           `toml:"max-idle-conns"`
	MaxConnsPerHost     int           `toml:"max-conns-per-host"`
	PipelineConnections int           `toml:"pipeline-connections"`
	IdleTimeout         toml.Duration `toml:"idle-timeout"`
	HTTPSInsecureTLS    bool          `toml:"https-insecure-tls"`
	UserAgent           string        `toml:"user-agent"`
}

// NewConfig returns an instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Transport:           DefaultTransport,
		RequestTimeout:      toml.Duration(DefaultRequestTimeout),
		DialTimeout:         toml.Duration(DefaultDialTimeout),
		KeepAlive:           true,
		KeepAliveTime:       toml.Duration(DefaultKeepAliveTime),
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		PipelineConnections: DefaultPipelineConnections,
		IdleTimeout:         toml.Duration(DefaultIdleTimeout),
		UserAgent:           DefaultUserAgent,
	}
}

// Validate returns an error if the Config is invalid.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportPipeline:
	default:
		return NewConfigurationError("unknown transport: '%s'", c.Transport)
	}

	if c.RequestTimeout < 0 {
		return NewConfigurationError("request-timeout must not be negative")
	} else if c.DialTimeout < 0 {
		return NewConfigurationError("dial-timeout must not be negative")
	} else if c.MaxIdleConns < 0 {
		return NewConfigurationError("max-idle-conns must not be negative")
	} else if c.MaxConnsPerHost < 0 {
		return NewConfigurationError("max-conns-per-host must not be negative")
	} else if c.Transport == TransportPipeline && c.PipelineConnections <= 0 {
		return NewConfigurationError("pipeline-connections must be positive")
	}
	return nil
}
