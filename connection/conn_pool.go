package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/fatih/pool.v2"
)

// idleConn implements idle connection.
type idleConn struct {
	c net.Conn
	t time.Time
}

// boundedPool implements the Pool interface based on buffered channels.
type boundedPool struct {
	// storage for our net.Conn connections
	mu    sync.Mutex
	conns chan *idleConn

	idleTimeout time.Duration
	waitTimeout time.Duration

	total  int32
	maxCap int32
	// net.Conn generator
	factory Factory
}

// Factory is a function to create new connections.
type Factory func(ctx context.Context) (net.Conn, error)

var _ pool.Pool = (*boundedPool)(nil)

// NewBoundedPool returns a new pool based on buffered channels with an initial
// capacity, maximum capacity, idle timeout and timeout to wait for a connection
// from the pool. Factory is used when initial capacity is
// greater than zero to fill the pool. A zero initialCap doesn't fill the Pool
// until a new Get() is called. During a Get(), If there is no new connection
// available in the pool and total connections is less than the max, a new connection
// will be created via the Factory() method. Otherwise, the call will block until
// a connection is available or the timeout is reached. A zero waitTimeout
// waits until the caller's context is done.
func NewBoundedPool(initialCap, maxCap int, idleTimeout, waitTimeout time.Duration, factory Factory) (pool.Pool, error) {
	return newBoundedPool(initialCap, maxCap, idleTimeout, waitTimeout, factory)
}

func newBoundedPool(initialCap, maxCap int, idleTimeout, waitTimeout time.Duration, factory Factory) (*boundedPool, error) {
	if initialCap < 0 || maxCap <= 0 || initialCap > maxCap {
		return nil, errors.New("invalid capacity settings")
	}

	c := &boundedPool{
		conns:       make(chan *idleConn, maxCap),
		factory:     factory,
		idleTimeout: idleTimeout,
		waitTimeout: waitTimeout,
		maxCap:      int32(maxCap),
	}

	// create initial connections, if something goes wrong,
	// just close the pool error out.
	for i := 0; i < initialCap; i++ {
		conn, err := factory(context.Background())
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("factory is not able to fill the pool: %s", err)
		}
		c.conns <- &idleConn{c: conn, t: time.Now()}
		atomic.AddInt32(&c.total, 1)
	}

	return c, nil
}

func (c *boundedPool) getConns() chan *idleConn {
	c.mu.Lock()
	conns := c.conns
	c.mu.Unlock()
	return conns
}

// Get implements the Pool interfaces Get() method. If there is no new
// connection available in the pool, a new connection will be created via the
// Factory() method.
func (c *boundedPool) Get() (net.Conn, error) {
	return c.get(context.Background())
}

func (c *boundedPool) get(ctx context.Context) (net.Conn, error) {
	conns := c.getConns()
	if conns == nil {
		return nil, pool.ErrClosed
	}

	var timeout <-chan time.Time
	if c.waitTimeout > 0 {
		timer := time.NewTimer(c.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// Try and grab a connection from the pool
	for {
		select {
		case conn := <-conns:
			if conn == nil {
				return nil, pool.ErrClosed
			}
			if timeout := c.idleTimeout; timeout > 0 {
				if conn.t.Add(timeout).Before(time.Now()) {
					// Close the connection when idle longer than the specified duration
					conn.c.Close()
					atomic.AddInt32(&c.total, -1)
					continue
				}
			}
			return c.wrapConn(conn.c), nil
		default:
			// Could not get connection, can we create a new one?
			if atomic.AddInt32(&c.total, 1) <= c.maxCap {
				conn, err := c.factory(ctx)
				if err != nil {
					atomic.AddInt32(&c.total, -1)
					return nil, err
				}
				return c.wrapConn(conn), nil
			}
			atomic.AddInt32(&c.total, -1)
		}

		// The pool was empty and we couldn't create a new one to
		// retry until one is free or we timeout
		select {
		case conn := <-conns:
			if conn == nil {
				return nil, pool.ErrClosed
			}
			return c.wrapConn(conn.c), nil
		case <-timeout:
			return nil, fmt.Errorf("timed out waiting for free connection")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// put puts the connection back to the pool. If the pool is full or closed,
// conn is simply closed. A nil conn will be rejected.
func (c *boundedPool) put(conn net.Conn) error {
	if conn == nil {
		return errors.New("connection is nil. rejecting")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conns == nil {
		// pool is closed, close passed connection
		atomic.AddInt32(&c.total, -1)
		return conn.Close()
	}

	// put the resource back into the pool. If the pool is full, this will
	// block and the default case will be executed.
	select {
	case c.conns <- &idleConn{c: conn, t: time.Now()}:
		return nil
	default:
		// pool is full, close passed connection
		atomic.AddInt32(&c.total, -1)
		return conn.Close()
	}
}

func (c *boundedPool) Close() {
	c.mu.Lock()
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	if conns == nil {
		return
	}

	close(conns)
	for conn := range conns {
		conn.c.Close()
		atomic.AddInt32(&c.total, -1)
	}
}

func (c *boundedPool) Len() int { return len(c.getConns()) }

// Total returns the number of connections currently opened by the pool,
// idle or in use.
func (c *boundedPool) Total() int { return int(atomic.LoadInt32(&c.total)) }

// wrapConn wraps a standard net.Conn to a poolConn net.Conn.
func (c *boundedPool) wrapConn(conn net.Conn) net.Conn {
	p := &pooledConn{c: c}
	p.Conn = conn
	return p
}

// pooledConn is a wrapper around net.Conn to modify the behavior of
// net.Conn's Close() method.
type pooledConn struct {
	net.Conn
	mu       sync.RWMutex
	c        *boundedPool
	unusable bool
}

// Close puts the given connects back to the pool instead of closing it.
func (p *pooledConn) Close() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.unusable {
		if p.Conn != nil {
			return p.Conn.Close()
		}
		return nil
	}
	return p.c.put(p.Conn)
}

// MarkUnusable marks the connection not usable any more, to let the pool close it instead of returning it to pool.
func (p *pooledConn) MarkUnusable() {
	p.mu.Lock()
	p.unusable = true
	p.mu.Unlock()
	atomic.AddInt32(&p.c.total, -1)
}

// MarkUnusable marks a connection obtained from a bounded pool as unusable.
func MarkUnusable(conn net.Conn) {
	if pc, ok := conn.(*pooledConn); ok {
		pc.MarkUnusable()
	}
}

// bufferedConn keeps the response reader of a raw connection alive between
// requests so that no buffered bytes are lost when it returns to the pool.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func newBufferedConn(conn net.Conn) *bufferedConn {
	return &bufferedConn{Conn: conn, r: bufio.NewReader(conn)}
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }
