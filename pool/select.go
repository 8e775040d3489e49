package pool

// Select returns the next node to send a request to, or nil if no node
// satisfies filter. A nil filter accepts every node.
//
// filter runs with the pool locked. It may inspect the node it is given but
// must not call methods of the pool, which would deadlock.
//
// Nodes are visited in a smooth weighted round-robin: each cycle over the
// registry lowers the weight threshold by the gcd of all weights, so over a
// full period every node is returned in proportion to its weight. Dead nodes
// keep a weight of at least 1 and are still returned, only less often. A
// call never scans the registry more than once.
func (p *Pool) Select(filter func(*Node) bool) *Node {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := len(p.nodes)
	for i := 0; i < size; i++ {
		p.index = (p.index + 1) % size
		if p.index == 0 {
			p.currentWeight -= p.gcd
			if p.currentWeight <= 0 {
				p.currentWeight = p.maxWeight
				if p.currentWeight == 0 {
					return nil
				}
			}
		}

		n := p.nodes[p.index]
		if n.Weight() >= p.currentWeight && (filter == nil || filter(n)) {
			return n
		}
	}
	return nil
}

// gcd returns the greatest common divisor of a and b. gcd(0, b) is b.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
