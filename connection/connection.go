// Package connection implements the transport channel to a single cluster
// node: request execution with exactly one terminal outcome per request,
// in-flight accounting, and a close that drains before releasing sockets.
package connection // import "github.com/influxtsdb/nodepool/connection"

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxtsdb/nodepool/pkg/httputil"
	"github.com/influxtsdb/nodepool/tcp"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options describes a connection to create.
type Options struct {
	URL     *url.URL
	ID      string
	Headers http.Header
	Auth    *httputil.Auth
	Roles   map[Role]bool

	// TLS is the base tls config for https nodes.
	TLS *tls.Config

	// Transport, when set, builds the transport instead of Config.Transport.
	Transport TransportFactory

	Config Config
}

// Connection is a persistent channel to one node.
type Connection struct {
	url       *url.URL
	headers   http.Header
	auth      *httputil.Auth
	config    Config
	transport Transport

	rate  *ratecounter.RateCounter
	total atomic.Int64

	mu      sync.Mutex
	drained *sync.Cond
	id      string
	roles   map[Role]bool
	open    int
	closing bool
	closed  bool

	logger *zap.Logger
}

// New returns a new connection to the node described by opts. No socket is
// opened until the first request.
func New(opts Options) (*Connection, error) {
	if opts.URL == nil {
		return nil, NewConfigurationError("missing node url")
	}
	u := *NormalizeURL(opts.URL)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewConfigurationError("Invalid protocol: '%s:'", opts.URL.Scheme)
	}

	id := opts.ID
	if id == "" {
		id = httputil.StripAuth(u.String())
	}

	c := &Connection{
		url:     &u,
		headers: prepareHeaders(opts.Headers, opts.Auth),
		auth:    opts.Auth,
		config:  opts.Config,
		rate:    ratecounter.NewRateCounter(time.Second),
		id:      id,
		roles:   mergeRoles(opts.Roles),
		logger:  zap.NewNop(),
	}
	c.drained = sync.NewCond(&c.mu)

	var tlsConfig *tls.Config
	if u.Scheme == "https" {
		tlsConfig = tcp.TLSClientConfig(opts.TLS, u.Hostname(), opts.Config.HTTPSInsecureTLS)
	}

	factory := opts.Transport
	if factory == nil {
		factory = NewTransport
	}
	t, err := factory(&u, opts.Config, tlsConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "create transport for %s", id)
	}
	c.transport = t
	return c, nil
}

// WithLogger sets the logger on the connection.
func (c *Connection) WithLogger(log *zap.Logger) {
	c.logger = log.With(zap.String("service", "connection"))
}

// ID returns the identity of the node.
func (c *Connection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SetID changes the identity of the node. The pool uses it when the cluster
// assigns an id to a node that was first known by its url.
func (c *Connection) SetID(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// URL returns a copy of the node url without credentials.
func (c *Connection) URL() *url.URL {
	u := *c.url
	u.User = nil
	return &u
}

// Headers returns a copy of the default headers sent to the node.
func (c *Connection) Headers() http.Header {
	return c.headers.Clone()
}

// Roles returns a copy of the role flags of the node.
func (c *Connection) Roles() map[Role]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	roles := make(map[Role]bool, len(c.roles))
	for r, enabled := range c.roles {
		roles[r] = enabled
	}
	return roles
}

// HasRole reports whether the node has role r enabled.
func (c *Connection) HasRole(r Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roles[r]
}

// SetRole enables or disables a role on the node.
func (c *Connection) SetRole(r Role, enabled bool) error {
	if !IsValidRole(r) {
		return NewConfigurationError("Unsupported role: '%s'", r)
	}
	c.mu.Lock()
	c.roles[r] = enabled
	c.mu.Unlock()
	return nil
}

// UpdateRoles replaces the role flags of the node. Roles missing from roles
// take their default value.
func (c *Connection) UpdateRoles(roles map[Role]bool) {
	merged := mergeRoles(roles)
	c.mu.Lock()
	c.roles = merged
	c.mu.Unlock()
}

// OpenRequests returns the number of requests that have not reached a
// terminal state yet.
func (c *Connection) OpenRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Closed reports whether the connection released its transport.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// acquire accounts for a new request. It fails once the connection started closing.
func (c *Connection) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return &ConnectionError{Message: "connection is closed: " + c.id}
	}
	c.open++
	c.total.Add(1)
	c.rate.Incr(1)
	return nil
}

func (c *Connection) release() {
	c.mu.Lock()
	c.open--
	if c.open == 0 {
		c.drained.Broadcast()
	}
	c.mu.Unlock()
}

// Close stops accepting requests, waits until every in-flight request has
// reached a terminal state and then releases the transport. Close never
// fails; transport errors are logged.
func (c *Connection) Close() error {
	c.mu.Lock()
	id := c.id
	c.closing = true
	if c.open > 0 {
		c.logger.Debug("Draining connection", zap.String("id", id), zap.Int("open_requests", c.open))
	}
	for c.open > 0 {
		c.drained.Wait()
	}
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.logger.Debug("Closing connection", zap.String("id", id))
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("Failed to close transport", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// CloseAsync closes the connection in the background and calls fn, if not
// nil, once it is released.
func (c *Connection) CloseAsync(fn func()) {
	go func() {
		c.Close()
		if fn != nil {
			fn()
		}
	}()
}

// Stats is a point-in-time sample of a connection.
type Stats struct {
	ID            string
	URL           string
	OpenRequests  int
	TotalRequests int64
	RequestRate   int64
	Closed        bool
}

// Stats returns a sample of the connection's counters.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ID:            c.id,
		URL:           httputil.StripAuth(c.url.String()),
		OpenRequests:  c.open,
		TotalRequests: c.total.Load(),
		RequestRate:   c.rate.Rate(),
		Closed:        c.closed,
	}
}

// MarshalJSON renders the connection without its credentials.
func (c *Connection) MarshalJSON() ([]byte, error) {
	headers := c.Headers()
	headers.Del("Authorization")

	c.mu.Lock()
	v := struct {
		URL          string        `json:"url"`
		ID           string        `json:"id"`
		Headers      http.Header   `json:"headers"`
		OpenRequests int           `json:"openRequests"`
		Roles        map[Role]bool `json:"roles"`
	}{
		URL:          httputil.StripAuth(c.url.String()),
		ID:           c.id,
		Headers:      headers,
		OpenRequests: c.open,
		Roles:        c.roles,
	}
	b, err := json.Marshal(v)
	c.mu.Unlock()
	return b, err
}

// String returns the node id and its url without credentials.
func (c *Connection) String() string {
	return c.ID() + " (" + httputil.StripAuth(c.url.String()) + ")"
}

// prepareHeaders returns the default headers of a node, including the
// authorization derived from static credentials. An explicit authorization
// header is never replaced.
func prepareHeaders(headers http.Header, auth *httputil.Auth) http.Header {
	h := headers.Clone()
	if h == nil {
		h = make(http.Header)
	}
	if h.Get("Authorization") == "" {
		if v := httputil.StaticAuthorization(auth); v != "" {
			h.Set("Authorization", v)
		}
	}
	return h
}

// NormalizeURL returns a copy of u in the form node ids are derived from:
// lowercase scheme and host, no default port and a path of at least "/".
// Equivalent spellings of a node url normalize to the same string.
func NormalizeURL(u *url.URL) *url.URL {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
		n.Host = strings.TrimSuffix(n.Host, ":"+port)
	} else if port == "" {
		n.Host = strings.TrimSuffix(n.Host, ":")
	}
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return &n
}
