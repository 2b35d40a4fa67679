package txn

import "time"

// rebuildWaitsForLocked replaces waiterID's outgoing edges with one edge
// to every granted holder of q that conflicts with the waiter. A shared
// waiter only conflicts with a granted exclusive holder; an exclusive or
// upgrading waiter conflicts with every granted holder. Called with lm.mu
// held, immediately before lm.cond.Wait().
func (lm *LockManager) rebuildWaitsForLocked(waiterID uint64, q *rowQueue, exclusiveHoldersOnly bool) {
	edges := make(map[uint64]struct{})
	for _, r := range q.requests {
		if !r.granted || r.txnID == waiterID {
			continue
		}
		if exclusiveHoldersOnly && r.mode != modeExclusive {
			continue
		}
		edges[r.txnID] = struct{}{}
	}
	if len(edges) == 0 {
		delete(lm.waitsFor, waiterID)
		return
	}
	lm.waitsFor[waiterID] = edges
}

// findCycleLocked runs DFS from every node and returns the node ids of
// the first cycle discovered, or nil if the graph is acyclic.
func (lm *LockManager) findCycleLocked() []uint64 {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[uint64]int, len(lm.waitsFor))
	var stack []uint64

	var visit func(uint64) []uint64
	visit = func(n uint64) []uint64 {
		state[n] = visiting
		stack = append(stack, n)
		for next := range lm.waitsFor[n] {
			switch state[next] {
			case unvisited:
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			case visiting:
				for i, v := range stack {
					if v == next {
						cyc := make([]uint64, len(stack)-i)
						copy(cyc, stack[i:])
						return cyc
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		return nil
	}

	for n := range lm.waitsFor {
		if state[n] == unvisited {
			if cyc := visit(n); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// runCycleBreaker periodically scans the waits-for graph, breaking every
// cycle it finds by aborting the youngest transaction (largest id) in
// the cycle until the graph is acyclic.
func (lm *LockManager) runCycleBreaker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-lm.stop:
			return
		case <-ticker.C:
			lm.breakCycles()
		}
	}
}

func (lm *LockManager) breakCycles() {
	var victims []*Transaction
	lm.mu.Lock()
	for {
		cycle := lm.findCycleLocked()
		if cycle == nil {
			break
		}
		victim := cycle[0]
		for _, id := range cycle[1:] {
			if id > victim {
				victim = id
			}
		}
		if lm.log != nil {
			lm.log.LogDeadlockVictim(victim, cycle)
		}
		if lm.metrics != nil {
			lm.metrics.LockDeadlocksTotal.Inc()
		}
		if t, ok := lm.txns[victim]; ok {
			victims = append(victims, t)
		}
		lm.abortLocked(victim)
	}
	lm.mu.Unlock()
	// Release each victim's granted locks so the rest of its cycle can proceed.
	for _, t := range victims {
		lm.Abort(t)
	}
}
