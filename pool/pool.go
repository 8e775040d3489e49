// Package pool implements a weighted connection pool over the nodes of a
// cluster. Nodes are picked with a smooth weighted round-robin; failing nodes
// lose weight instead of being excluded and regain an equal share as soon as
// they succeed again.
package pool // import "github.com/influxtsdb/nodepool/pool"

import (
	"crypto/tls"
	"math"
	"net/http"
	"sync"

	"github.com/influxtsdb/nodepool/connection"
	"github.com/influxtsdb/nodepool/pkg/httputil"
	"go.uber.org/zap"
)

// Pool is a weighted set of node connections.
type Pool struct {
	// TLS is the base tls config of https nodes that have none of their own.
	TLS *tls.Config

	// Headers are sent to every node, under the headers of the node itself.
	Headers http.Header

	// Transport, when set, builds the transport of nodes that have no
	// transport factory of their own.
	Transport connection.TransportFactory

	// Decay computes the weight of a node marked dead.
	Decay DecayFunc

	mu    sync.Mutex
	nodes []*Node

	// Scheduler cursor: the last selected position and the weight a node
	// must reach to be selected in the current cycle.
	index         int
	currentWeight int

	// Aggregates of the weights of all nodes. Both are zero when the pool is empty.
	maxWeight int
	gcd       int

	// auth is shared by nodes that carry no credentials.
	auth *httputil.Auth

	config Config
	logger *zap.Logger
}

// New returns a new, empty pool. Statically configured nodes are added by
// the caller with the descriptors returned by Config.Descriptors.
func New(c Config) (*Pool, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	decay, err := DecayByName(c.DecayPolicy)
	if err != nil {
		return nil, err
	}
	return &Pool{
		Decay:  decay,
		index:  -1,
		auth:   c.Auth.auth(),
		config: c,
		logger: zap.NewNop(),
	}, nil
}

// Open returns a pool with the nodes of c already added.
func Open(c Config) (*Pool, error) {
	p, err := New(c)
	if err != nil {
		return nil, err
	}
	descriptors, err := c.Descriptors()
	if err != nil {
		return nil, err
	}
	if len(descriptors) > 0 {
		if _, err := p.AddConnections(descriptors); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithLogger sets the logger on the pool and on the nodes it creates
// afterwards. It must be called before nodes are added.
func (p *Pool) WithLogger(log *zap.Logger) {
	p.logger = log.With(zap.String("service", "pool"))
}

// Size returns the number of nodes in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

// Nodes returns a snapshot of the nodes in the pool, in scheduling order.
func (p *Pool) Nodes() []*Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Node(nil), p.nodes...)
}

// Node returns the node registered under id, or nil.
func (p *Pool) Node(id string) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(id)
}

// Stats is a point-in-time sample of a pool.
type Stats struct {
	Size      int
	MaxWeight int
	GCD       int
	Nodes     []NodeStats
}

// Stats returns a sample of the pool and of every node in it.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Size:      len(p.nodes),
		MaxWeight: p.maxWeight,
		GCD:       p.gcd,
		Nodes:     make([]NodeStats, 0, len(p.nodes)),
	}
	nodes := append([]*Node(nil), p.nodes...)
	p.mu.Unlock()

	for _, n := range nodes {
		s.Nodes = append(s.Nodes, n.Stats())
	}
	return s
}

// Close empties the pool, waiting for every node to drain.
func (p *Pool) Close() error {
	return p.Empty()
}

// find returns the node registered under id. p.mu must be held.
func (p *Pool) find(id string) *Node {
	for _, n := range p.nodes {
		if n.ID() == id {
			return n
		}
	}
	return nil
}

// share returns the equal weight of a node in a pool of size nodes.
func (p *Pool) share(size int) int {
	if size == 0 {
		return 0
	}
	return int(math.Round(float64(p.config.WeightScale) / float64(size)))
}

// recompute refreshes maxWeight and gcd. p.mu must be held.
func (p *Pool) recompute() {
	p.maxWeight, p.gcd = 0, 0
	for _, n := range p.nodes {
		w := n.Weight()
		if w > p.maxWeight {
			p.maxWeight = w
		}
		p.gcd = gcd(p.gcd, w)
	}
}

// resetCursor restarts scheduling from the first node. p.mu must be held.
func (p *Pool) resetCursor() {
	p.index = -1
	p.currentWeight = 0
}
