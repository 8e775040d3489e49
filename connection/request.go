package connection

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/influxtsdb/nodepool/pkg/httputil"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
)

// Params describes a request to send over a connection. Path, Querystring
// and Headers are merged onto the node's base url and default headers.
type Params struct {
	Method      string
	Path        string
	Querystring string
	Headers     http.Header
	Body        io.Reader

	// Timeout overrides the connection's request timeout. A negative value
	// disables the timeout.
	Timeout time.Duration

	// AsStream returns the raw response body instead of a decompressed one.
	AsStream bool
}

// State is the lifecycle state of a request.
type State int32

const (
	StateStarted State = iota
	StateResponded
	StateTimedOut
	StateErrored
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateResponded:
		return "responded"
	case StateTimedOut:
		return "timed_out"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Request is the handle of an in-flight request. Exactly one terminal state
// is reached; the first terminal event wins and later ones are ignored.
type Request struct {
	ID string

	conn   *Connection
	params Params
	cancel context.CancelFunc
	span   opentracing.Span
	start  time.Time

	state int32
	done  chan struct{}
	resp  *http.Response
	err   error
}

// Request starts a request on the connection and returns its handle. A
// malformed path is rejected with a ValidationError before any I/O and
// without being accounted as an open request.
func (c *Connection) Request(ctx context.Context, p Params) (*Request, error) {
	req, err := c.buildRequest(p)
	if err != nil {
		return nil, err
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Request{
		ID:     uuid.NewString(),
		conn:   c,
		params: p,
		cancel: cancel,
		start:  time.Now(),
		done:   make(chan struct{}),
	}

	r.span, ctx = opentracing.StartSpanFromContext(ctx, "nodepool.request")
	ext.SpanKindRPCClient.Set(r.span)
	ext.HTTPMethod.Set(r.span, req.Method)
	ext.HTTPUrl.Set(r.span, httputil.StripAuth(req.URL.String()))
	r.span.SetTag("node.id", c.ID())
	r.span.SetTag("request.id", r.ID)
	_ = r.span.Tracer().Inject(r.span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))

	c.logger.Debug("Starting request",
		zap.String("id", c.ID()),
		zap.String("request_id", r.ID),
		zap.String("method", req.Method),
		zap.String("path", req.URL.RequestURI()))

	timeout := p.Timeout
	if timeout == 0 {
		timeout = time.Duration(c.config.RequestTimeout)
	}
	if timeout > 0 {
		go r.watchTimeout(timeout)
	}

	go c.roundTrip(ctx, r, req.WithContext(ctx))
	return r, nil
}

func (c *Connection) roundTrip(ctx context.Context, r *Request, req *http.Request) {
	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			r.finish(StateTimedOut, nil, r.timeoutError(0))
		case context.Canceled:
			r.finish(StateAborted, nil, &RequestAbortedError{})
		default:
			r.finish(StateErrored, nil, &ConnectionError{Message: err.Error(), Err: err})
		}
		r.cancel()
		return
	}

	if !r.params.AsStream {
		decompress(resp)
	}
	resp.Body = &requestBody{ReadCloser: resp.Body, cancel: r.cancel}
	if !r.finish(StateResponded, resp, nil) {
		resp.Body.Close()
	}
}

func (r *Request) watchTimeout(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		if r.finish(StateTimedOut, nil, r.timeoutError(timeout)) {
			r.cancel()
		}
	case <-r.done:
	}
}

func (r *Request) timeoutError(timeout time.Duration) *TimeoutError {
	return &TimeoutError{Method: r.method(), Path: r.params.Path, Timeout: timeout}
}

func (r *Request) method() string {
	if r.params.Method == "" {
		return http.MethodGet
	}
	return r.params.Method
}

// finish moves the request to a terminal state. It returns false if another
// terminal event got there first.
func (r *Request) finish(state State, resp *http.Response, err error) bool {
	if !atomic.CompareAndSwapInt32(&r.state, int32(StateStarted), int32(state)) {
		return false
	}
	r.resp, r.err = resp, err
	r.conn.release()

	if resp != nil {
		ext.HTTPStatusCode.Set(r.span, uint16(resp.StatusCode))
	}
	if err != nil {
		ext.Error.Set(r.span, true)
		r.span.LogKV("event", "error", "message", err.Error())
	}
	r.span.Finish()

	r.conn.logger.Debug("Request finished",
		zap.String("request_id", r.ID),
		zap.Stringer("state", state),
		zap.Duration("duration", time.Since(r.start)),
		zap.Error(err))

	close(r.done)
	return true
}

// Abort cancels the request. If no terminal state was reached yet the
// request ends with a RequestAbortedError. A response body that is still
// being read is interrupted as well.
func (r *Request) Abort() {
	r.finish(StateAborted, nil, &RequestAbortedError{})
	r.cancel()
}

// Done returns a channel that is closed once the request reached a terminal state.
func (r *Request) Done() <-chan struct{} { return r.done }

// State returns the current state of the request.
func (r *Request) State() State { return State(atomic.LoadInt32(&r.state)) }

// Wait blocks until the request reached a terminal state and returns its
// outcome. The caller owns the response body.
func (r *Request) Wait() (*http.Response, error) {
	<-r.done
	return r.resp, r.err
}

// Do starts a request and waits for its outcome.
func (c *Connection) Do(ctx context.Context, p Params) (*http.Response, error) {
	r, err := c.Request(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.Wait()
}

// buildRequest merges p onto the node's base url and default headers.
func (c *Connection) buildRequest(p Params) (*http.Request, error) {
	pathname := c.url.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}
	if p.Path != "" {
		pathname = resolvePath(pathname, p.Path)
	}

	search := c.url.RawQuery
	if p.Querystring != "" {
		if search == "" {
			search = p.Querystring
		} else {
			search += "&" + p.Querystring
		}
	}

	target := pathname
	if search != "" {
		target += "?" + search
	}
	if !isValidPath(target) {
		return nil, &ValidationError{Path: target}
	}

	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, c.url.Scheme+"://"+c.url.Host+target, p.Body)
	if err != nil {
		return nil, &ValidationError{Path: target}
	}

	req.Header = c.headers.Clone()
	for k, v := range p.Headers {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	if err := httputil.SetHeaderAuth(req, c.auth, c.config.UserAgent); err != nil {
		return nil, &ConnectionError{Message: "sign request: " + err.Error(), Err: err}
	}
	return req, nil
}

// resolvePath joins a base path and a request path with exactly one slash.
func resolvePath(base, path string) string {
	baseSlash := strings.HasSuffix(base, "/")
	pathSlash := strings.HasPrefix(path, "/")
	switch {
	case baseSlash && pathSlash:
		return base + path[1:]
	case baseSlash != pathSlash:
		return base + path
	default:
		return base + "/" + path
	}
}

// isValidPath reports whether every character of path is in the printable
// range accepted by the wire library (U+0021 through U+00FF).
func isValidPath(path string) bool {
	for _, r := range path {
		if r < 0x21 || r > 0xff {
			return false
		}
	}
	return true
}

// requestBody releases the request context once the body is closed.
type requestBody struct {
	io.ReadCloser
	once   sync.Once
	cancel context.CancelFunc
}

func (b *requestBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
