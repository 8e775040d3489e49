package pool

import (
	"net/http"

	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pkg/httputil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AddConnection adds a single node to the pool and returns it.
func (p *Pool) AddConnection(d Descriptor) (*Node, error) {
	nodes, err := p.AddConnections([]Descriptor{d})
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// AddConnections adds nodes to the pool. Every descriptor is checked before
// any node is added: a node whose id or url is already registered fails the
// whole call with a ConfigurationError and leaves the pool unchanged.
//
// The added nodes get an equal share of the total weight. Nodes that held
// the previous equal share move to the new one; nodes whose weight was
// lowered by failures keep it.
func (p *Pool) AddConnections(descriptors []Descriptor) ([]*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	normalized := make([]Descriptor, 0, len(descriptors))
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		d, err := FromDescriptor(d)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, d)

		id := d.id()
		if _, ok := seen[id]; ok || p.find(id) != nil || p.find(d.href()) != nil {
			return nil, connection.NewConfigurationError("Connection with id '%s' is already present", id)
		}
		seen[id] = struct{}{}
	}

	added := make([]*Node, 0, len(normalized))
	shared := p.auth
	for _, d := range normalized {
		n, auth, err := p.createNode(d, shared)
		if err != nil {
			closeNodes(added)
			return nil, err
		}
		added = append(added, n)
		shared = auth
	}
	p.auth = shared

	prev, next := p.share(len(p.nodes)), p.share(len(p.nodes)+len(added))
	for _, n := range p.nodes {
		if n.Weight() == prev {
			n.setWeight(next)
		}
	}
	for _, n := range added {
		n.setWeight(next)
		p.logger.Debug("Adding node", zap.Stringer("node", n), zap.Int("weight", next))
	}
	p.nodes = append(p.nodes, added...)
	p.recompute()

	return added, nil
}

// RemoveConnection drops n from the pool. Its connection is closed in the
// background once its in-flight requests are done. Removing a node that is
// not in the pool does nothing.
func (p *Pool) RemoveConnection(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(n)
	if i < 0 {
		return
	}
	p.logger.Debug("Removing node", zap.Stringer("node", n))
	n.CloseAsync(nil)

	p.nodes = append(p.nodes[:i:i], p.nodes[i+1:]...)
	if i <= p.index {
		p.index--
	}
	if len(p.nodes) == 0 {
		p.resetCursor()
	}
	p.recompute()
}

// Update reconciles the pool with a complete list of nodes, as returned by
// cluster discovery. A listed node that is already registered, by id or by
// the url it was first added with, is kept along with its connection and
// marked alive. Unlisted nodes are removed and closed in the background.
// Every node then gets an equal share of the total weight and scheduling
// restarts from the first node.
//
// The pool is left unchanged if a new node cannot be created.
func (p *Pool) Update(descriptors []Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		next    = make([]*Node, 0, len(descriptors))
		ids     = make([]string, 0, len(descriptors))
		kept    = make(map[*Node]string, len(descriptors))
		created []*Node
		shared  = p.auth
	)
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		d, err := FromDescriptor(d)
		if err != nil {
			closeNodes(created)
			return err
		}
		id := d.id()
		if _, ok := seen[id]; ok {
			closeNodes(created)
			return connection.NewConfigurationError("Connection with id '%s' is already present", id)
		}
		seen[id] = struct{}{}

		n := p.find(id)
		if n == nil {
			n = p.find(d.href())
		}
		if _, ok := kept[n]; n != nil && !ok {
			kept[n] = id
		} else {
			if n, shared, err = p.createNode(d, shared); err != nil {
				closeNodes(created)
				return err
			}
			created = append(created, n)
		}
		next = append(next, n)
		ids = append(ids, id)
	}

	// Nothing below can fail.
	p.auth = shared
	for i, n := range next {
		if id, ok := kept[n]; ok {
			if n.ID() != id {
				p.logger.Debug("Node assigned an id", zap.Stringer("node", n), zap.String("new_id", id))
				n.SetID(id)
			}
			n.revive()
			if roles := descriptors[i].Roles; roles != nil {
				n.UpdateRoles(roles)
			}
		} else {
			p.logger.Debug("Adding node", zap.Stringer("node", n))
		}
	}
	for _, n := range p.nodes {
		if _, ok := kept[n]; !ok {
			p.logger.Debug("Removing node", zap.Stringer("node", n))
			n.CloseAsync(nil)
		}
	}

	weight := p.share(len(next))
	for _, n := range next {
		n.setWeight(weight)
	}
	p.nodes = next
	p.resetCursor()
	p.recompute()

	p.logger.Debug("Pool updated", zap.Strings("ids", ids), zap.Int("weight", weight))
	return nil
}

// Empty removes every node from the pool and waits until all of their
// connections are drained and closed. The pool is empty, and may be
// refilled, as soon as Empty is called.
func (p *Pool) Empty() error {
	p.mu.Lock()
	nodes := p.nodes
	p.nodes = nil
	p.resetCursor()
	p.recompute()
	p.mu.Unlock()

	if len(nodes) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, n := range nodes {
		n := n
		g.Go(n.Close)
	}
	err := g.Wait()
	p.logger.Info("Pool emptied", zap.Int("closed", len(nodes)))
	return err
}

// EmptyAsync empties the pool in the background and calls fn, if not nil,
// once every connection is closed.
func (p *Pool) EmptyAsync(fn func(error)) {
	go func() {
		err := p.Empty()
		if fn != nil {
			fn(err)
		}
	}()
}

// createNode builds the connection of a new node. Credentials found in the
// node url, or given by the descriptor, become the shared credentials if
// there are none yet. A node without credentials uses the shared ones.
// createNode returns the shared credentials to use for the next node; the
// caller stores them in the pool once the whole batch succeeded.
// p.mu must be held.
func (p *Pool) createNode(d Descriptor, shared *httputil.Auth) (*Node, *httputil.Auth, error) {
	auth := urlAuth(d.URL)
	if auth == nil && !d.Auth.IsZero() {
		auth = d.Auth
	}
	if auth != nil && shared == nil {
		shared = auth
	}
	if auth == nil {
		auth = shared
	}

	headers := p.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	for k, v := range d.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	tlsConfig := d.TLS
	if tlsConfig == nil {
		tlsConfig = p.TLS
	}
	transport := d.Transport
	if transport == nil {
		transport = p.Transport
	}

	c, err := connection.New(connection.Options{
		URL:       d.URL,
		ID:        d.ID,
		Headers:   headers,
		Auth:      auth,
		Roles:     d.Roles,
		TLS:       tlsConfig,
		Transport: transport,
		Config:    p.config.Connection,
	})
	if err != nil {
		return nil, shared, err
	}
	c.WithLogger(p.logger)

	n := newNode(c)
	p.logger.Debug("Created connection",
		zap.Stringer("node", n),
		zap.String("auth", auth.Type()))
	return n, shared, nil
}

// indexOf returns the position of n in the registry, or -1. p.mu must be held.
func (p *Pool) indexOf(n *Node) int {
	for i, m := range p.nodes {
		if m == n {
			return i
		}
	}
	return -1
}

func closeNodes(nodes []*Node) {
	for _, n := range nodes {
		n.CloseAsync(nil)
	}
}
