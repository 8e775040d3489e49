package connection

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/influxtsdb/nodepool/tcp"
)

// aLongTimeAgo is a deadline that unblocks pending reads and writes at once.
var aLongTimeAgo = time.Unix(1, 0)

// pipelineTransport writes requests over a bounded pool of raw connections to
// one node. Each pooled connection carries a single request at a time and is
// returned to the pool once its response body has been consumed.
type pipelineTransport struct {
	addr string
	pool *boundedPool
}

func newPipelineTransport(u *url.URL, c Config, tlsConfig *tls.Config) (*pipelineTransport, error) {
	addr := hostPort(u)
	if u.Scheme != "https" {
		tlsConfig = nil
	}
	dialTimeout := time.Duration(c.DialTimeout)
	keepAlive := time.Duration(c.KeepAliveTime)
	factory := func(ctx context.Context) (net.Conn, error) {
		conn, err := tcp.DialTLSContext(ctx, "tcp", addr, tlsConfig, dialTimeout, keepAlive)
		if err != nil {
			return nil, err
		}
		return newBufferedConn(conn), nil
	}

	p, err := newBoundedPool(0, c.PipelineConnections, time.Duration(c.IdleTimeout), 0, factory)
	if err != nil {
		return nil, err
	}
	return &pipelineTransport{addr: addr, pool: p}, nil
}

func (t *pipelineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	conn, err := t.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	pc := conn.(*pooledConn)
	bc := pc.Conn.(*bufferedConn)

	if deadline, ok := ctx.Deadline(); ok {
		bc.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { bc.SetDeadline(aLongTimeAgo) })

	fail := func(err error) (*http.Response, error) {
		stop()
		pc.MarkUnusable()
		pc.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if err := req.Write(bc); err != nil {
		return fail(err)
	}
	resp, err := http.ReadResponse(bc.r, req)
	if err != nil {
		return fail(err)
	}

	resp.Body = &pipelineBody{
		ReadCloser: resp.Body,
		conn:       pc,
		stop:       stop,
		reusable:   !resp.Close && !req.Close,
	}
	return resp, nil
}

func (t *pipelineTransport) Close() error {
	t.pool.Close()
	return nil
}

// pipelineBody hands its connection back to the pool once closed.
type pipelineBody struct {
	io.ReadCloser
	once     sync.Once
	conn     *pooledConn
	stop     func() bool
	reusable bool
}

func (b *pipelineBody) Close() error {
	var err error
	b.once.Do(func() {
		// Closing the body drains whatever the caller left unread, which
		// positions the connection at the start of the next response.
		err = b.ReadCloser.Close()
		if !b.stop() || err != nil || !b.reusable {
			b.conn.MarkUnusable()
		} else {
			b.conn.Conn.SetDeadline(time.Time{})
		}
		b.conn.Close()
	})
	return err
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
