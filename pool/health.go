package pool

import "go.uber.org/zap"

// MarkAlive restores n to an equal share of the total weight after a
// successful request. It does nothing if n is already alive or if the pool
// has a single node.
func (p *Pool) MarkAlive(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.nodes) == 1 || n.IsAlive() {
		return
	}
	n.revive()
	n.setWeight(p.share(len(p.nodes)))
	p.recompute()

	p.logger.Debug("Node marked alive", zap.String("id", n.ID()), zap.Int("weight", n.Weight()))
}

// MarkDead lowers the weight of n after a failed request. The weight never
// drops below 1 so the node keeps being tried, at the lowest priority,
// until it recovers. It does nothing if the pool has a single node.
func (p *Pool) MarkDead(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.nodes) == 1 {
		return
	}
	n.status.Store(int32(StatusDead))
	deadCount := int(n.deadCount.Add(1))

	decay := p.Decay
	if decay == nil {
		decay = LogDecay
	}
	w := decay(n.Weight(), deadCount)
	if w < 1 {
		w = 1
	}
	n.setWeight(w)
	p.recompute()

	p.logger.Debug("Node marked dead",
		zap.String("id", n.ID()),
		zap.Int("weight", w),
		zap.Int("dead_count", deadCount))
}

// Resurrect does nothing. Dead nodes are never taken out of rotation, so
// they recover through MarkAlive on their next successful request.
func (p *Pool) Resurrect() {}
