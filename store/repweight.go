package store

import (
	"sync"

	"raicore.dev/ledger/consensus"
)

// repWeightCache is the in-memory representative-weight tally of
// section 3/4.2: Map<Account, Amount> plus a scalar total, behind a
// dedicated mutex that readers hold only briefly and writers use to
// batch-commit a transaction's operation log (section 4.2, section 5:
// "Rep-weight cache: a dedicated mutex; readers hold it briefly;
// writers batch operations and commit under the same lock").
type repWeightCache struct {
	mu      sync.RWMutex
	weights map[consensus.Account]consensus.Amount
	total   consensus.Amount
}

func newRepWeightCache() *repWeightCache {
	return &repWeightCache{weights: make(map[consensus.Account]consensus.Amount)}
}

// add is used only during cold start (section 4.2), before the cache
// is visible to readers, so it bypasses the op-log path.
func (c *repWeightCache) add(rep consensus.Account, amount consensus.Amount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsafeAdd(rep, amount)
}

func (c *repWeightCache) unsafeAdd(rep consensus.Account, amount consensus.Amount) {
	sum, overflow := c.weights[rep].Add(amount)
	if overflow {
		// An add that overflows is a programming bug (section 4.2); the
		// release build clamps to the max representable value.
		sum = consensus.Amount{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
	c.weights[rep] = sum
	total, overflow := c.total.Add(amount)
	if overflow {
		total = consensus.Amount{Hi: ^uint64(0), Lo: ^uint64(0)}
	}
	c.total = total
}

func (c *repWeightCache) unsafeSub(rep consensus.Account, amount consensus.Amount) {
	cur := c.weights[rep]
	next, underflow := cur.Sub(amount)
	if underflow {
		// A sub that would underflow is a programming bug (section 4.2);
		// the release build clamps to zero rather than panicking.
		next = consensus.ZeroAmount
	}
	if next.IsZero() {
		delete(c.weights, rep)
	} else {
		c.weights[rep] = next
	}
	total, underflow := c.total.Sub(amount)
	if underflow {
		total = consensus.ZeroAmount
	}
	c.total = total
}

// apply merges a committed write transaction's operation log into the
// cache. Called once, immediately after the owning bbolt transaction
// commits, from Store.Write.
func (c *repWeightCache) apply(ops []repWeightOp) {
	if len(ops) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range ops {
		if op.sub {
			c.unsafeSub(op.rep, op.amount)
		} else {
			c.unsafeAdd(op.rep, op.amount)
		}
	}
}

// Weight returns the current delegated weight of rep; reads never
// block a writer's in-flight op-log merge for longer than the merge
// itself takes (section 5).
func (c *repWeightCache) Weight(rep consensus.Account) consensus.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weights[rep]
}

// Total returns the global representative weight.
func (c *repWeightCache) Total() consensus.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// Snapshot returns a point-in-time copy of the full weight map, used
// by the election engine's online-weight / total-weight calculations
// (section 4.3).
func (c *repWeightCache) Snapshot() map[consensus.Account]consensus.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[consensus.Account]consensus.Amount, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}

// RepWeight returns the store's representative-weight tally for
// external callers (the election engine, RPC stats).
func (s *Store) RepWeight(rep consensus.Account) consensus.Amount { return s.rep.Weight(rep) }

// RepWeightTotal returns the global tallied representative weight.
func (s *Store) RepWeightTotal() consensus.Amount { return s.rep.Total() }

// RepWeightSnapshot returns a point-in-time copy of the full map.
func (s *Store) RepWeightSnapshot() map[consensus.Account]consensus.Amount { return s.rep.Snapshot() }
