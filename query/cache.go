// Package query implements the Block-Query & Subscription Plane of
// section 4.4: the bounded-concurrency outbound query engine that
// pulls missing blocks from the gateway, and the two bounded
// intra-node TTL stores (BlockCache, BlockWaiting) that pipeline
// speculative and deferred blocks.
package query

import (
	"sync"
	"time"

	"raicore.dev/ledger/consensus"
)

// BlockCacheTTL is how long a prefetched block stays in BlockCache
// before aging out (section 4.4: "Entries age out after 300 s").
const BlockCacheTTL = 300 * time.Second

// BlockCache maps hash to a pre-fetched next block, consulted
// immediately after a successful append to pipeline the next height
// without a gateway round-trip (section 4.4).
type BlockCache struct {
	mu      sync.Mutex
	entries map[consensus.BlockHash]*consensus.Block
	expires map[consensus.BlockHash]time.Time
	maxSize int
}

// NewBlockCache builds an empty cache. maxSize <= 0 means unbounded;
// section 4.4 calls for a "size cap [that] enforces back-pressure on
// speculative prefetch."
func NewBlockCache(maxSize int) *BlockCache {
	return &BlockCache{
		entries: make(map[consensus.BlockHash]*consensus.Block),
		expires: make(map[consensus.BlockHash]time.Time),
		maxSize: maxSize,
	}
}

// Put inserts or refreshes a prefetched block. If the cache is at
// capacity the insert is dropped silently (back-pressure).
func (c *BlockCache) Put(now time.Time, b *consensus.Block) {
	hash := b.Hash()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[hash]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		return
	}
	c.entries[hash] = b
	c.expires[hash] = now.Add(BlockCacheTTL)
}

// Get returns the cached block for hash, if present. It does not check
// the entry's TTL; an expired entry stays visible until Sweep removes it.
func (c *BlockCache) Get(hash consensus.BlockHash) (*consensus.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[hash]
	return b, ok
}

// Take returns and removes the cached block for hash.
func (c *BlockCache) Take(hash consensus.BlockHash) (*consensus.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[hash]
	if ok {
		delete(c.entries, hash)
		delete(c.expires, hash)
	}
	return b, ok
}

// Sweep drops every entry whose TTL has elapsed as of now, driven by
// the node's alarm (section 9: "aging is a periodic sweep driven by
// the alarm").
func (c *BlockCache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, exp := range c.expires {
		if !now.Before(exp) {
			delete(c.entries, hash)
			delete(c.expires, hash)
		}
	}
}
