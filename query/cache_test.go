package query

import (
	"testing"
	"time"

	"raicore.dev/ledger/consensus"
)

func testQueryBlock(seed byte) *consensus.Block {
	var acc consensus.Account
	acc[0] = seed
	return &consensus.Block{Type: consensus.BlockTypeTransaction, Opcode: consensus.OpCredit, Account: acc}
}

func TestBlockCachePutGetTake(t *testing.T) {
	c := NewBlockCache(0)
	now := time.Now()
	b := testQueryBlock(1)
	c.Put(now, b)

	got, ok := c.Get(b.Hash())
	if !ok || got.Hash() != b.Hash() {
		t.Fatalf("expected cached block to be retrievable")
	}

	taken, ok := c.Take(b.Hash())
	if !ok || taken.Hash() != b.Hash() {
		t.Fatalf("expected Take to return the cached block")
	}
	if _, ok := c.Get(b.Hash()); ok {
		t.Fatalf("expected Take to remove the entry")
	}
}

func TestBlockCacheCapacityDropsNewEntries(t *testing.T) {
	c := NewBlockCache(1)
	now := time.Now()
	a := testQueryBlock(1)
	b := testQueryBlock(2)
	c.Put(now, a)
	c.Put(now, b)

	if _, ok := c.Get(a.Hash()); !ok {
		t.Fatalf("expected the first entry to remain cached")
	}
	if _, ok := c.Get(b.Hash()); ok {
		t.Fatalf("expected the second entry to be dropped at capacity")
	}
}

func TestBlockCacheCapacityAllowsRefreshOfExisting(t *testing.T) {
	c := NewBlockCache(1)
	now := time.Now()
	a := testQueryBlock(1)
	c.Put(now, a)
	// Re-putting the same hash must not be rejected as "at capacity."
	c.Put(now.Add(time.Second), a)
	if _, ok := c.Get(a.Hash()); !ok {
		t.Fatalf("expected refreshing an existing entry to succeed at capacity")
	}
}

func TestBlockCacheSweepExpires(t *testing.T) {
	c := NewBlockCache(0)
	now := time.Now()
	b := testQueryBlock(1)
	c.Put(now, b)

	c.Sweep(now.Add(BlockCacheTTL - time.Second))
	if _, ok := c.Get(b.Hash()); !ok {
		t.Fatalf("expected entry to survive a sweep before its TTL elapses")
	}

	c.Sweep(now.Add(BlockCacheTTL + time.Second))
	if _, ok := c.Get(b.Hash()); ok {
		t.Fatalf("expected entry to be swept out once its TTL elapses")
	}
}
