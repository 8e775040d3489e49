package pool

import (
	"sync/atomic"

	"github.com/influxtsdb/nodepool/connection"
)

// Status is the health status of a node.
type Status int32

const (
	StatusAlive Status = iota
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusAlive:
		return "alive"
	case StatusDead:
		return "dead"
	}
	return "unknown"
}

// Node is a registry entry of the pool: a connection plus the scheduling
// state the pool keeps for it. Weight, status and dead count are only
// written by the pool while it holds its lock; they may be read at any time.
type Node struct {
	*connection.Connection

	weight    atomic.Int64
	deadCount atomic.Int64
	status    atomic.Int32
}

func newNode(c *connection.Connection) *Node {
	return &Node{Connection: c}
}

// Weight returns the relative selection priority of the node.
func (n *Node) Weight() int { return int(n.weight.Load()) }

// DeadCount returns the number of failures since the node last recovered.
func (n *Node) DeadCount() int { return int(n.deadCount.Load()) }

// Status returns the health status of the node.
func (n *Node) Status() Status { return Status(n.status.Load()) }

// IsAlive reports whether the node is alive.
func (n *Node) IsAlive() bool { return n.Status() == StatusAlive }

func (n *Node) setWeight(w int) { n.weight.Store(int64(w)) }

func (n *Node) revive() {
	n.status.Store(int32(StatusAlive))
	n.deadCount.Store(0)
}

// NodeStats is a point-in-time sample of a node.
type NodeStats struct {
	connection.Stats
	Weight    int
	DeadCount int
	Status    Status
}

// Stats returns a sample of the node's scheduling state and counters.
func (n *Node) Stats() NodeStats {
	return NodeStats{
		Stats:     n.Connection.Stats(),
		Weight:    n.Weight(),
		DeadCount: n.DeadCount(),
		Status:    n.Status(),
	}
}
