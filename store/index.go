package store

import (
	"raicore.dev/ledger/consensus"
)

// ShouldIndex reports whether height is one of the sparse index's
// anchor heights (section 4.2: "a secondary sparse index stores
// (account, height x BLOCKS_PER_INDEX) -> hash").
func ShouldIndex(height consensus.Height) bool {
	return height%BlocksPerIndex == 0
}

// PutIndexEntry records an anchor (account, height) -> hash mapping.
// Callers are expected to call this only when ShouldIndex(height), but
// it is harmless (just wasted space) to index more densely.
func (t *WriteTxn) PutIndexEntry(account consensus.Account, height consensus.Height, hash consensus.BlockHash) error {
	if err := t.bucket(bucketBlocksIndex).Put(accountHeightKey(account, height), hash[:]); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_INDEX_PUT, err)
	}
	return nil
}

// DeleteIndexEntry removes an anchor entry, used when rollback deletes
// the indexed block.
func (t *WriteTxn) DeleteIndexEntry(account consensus.Account, height consensus.Height) error {
	if err := t.bucket(bucketBlocksIndex).Delete(accountHeightKey(account, height)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_INDEX_DEL, err)
	}
	return nil
}

func (t *Txn) getIndexEntry(account consensus.Account, height consensus.Height) (consensus.BlockHash, bool) {
	v := t.tx.Bucket(bucketBlocksIndex).Get(accountHeightKey(account, height))
	if v == nil {
		return consensus.BlockHash{}, false
	}
	var out consensus.BlockHash
	copy(out[:], v)
	return out, true
}

// GetBlockAtHeight resolves the block hash at (account, height) by
// clamping into [tail, head], choosing the nearer floor/ceiling anchor
// via the sparse index (falling back to the known head/tail hashes),
// then walking successor/previous links. Worst case is
// BLOCKS_PER_INDEX-1 steps (section 4.2).
func (t *Txn) GetBlockAtHeight(account consensus.Account, height consensus.Height) (*consensus.Block, bool, error) {
	info, ok, err := t.GetAccountInfo(account)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if height < info.TailHeight || height > info.HeadHeight {
		return nil, false, nil
	}
	if height == info.HeadHeight {
		blk, _, ok, err := t.GetBlock(info.HeadHash)
		return blk, ok, err
	}
	if height == info.TailHeight {
		blk, _, ok, err := t.GetBlock(info.TailHash)
		return blk, ok, err
	}

	anchorHeight, anchorHash, forward := t.nearestAnchor(account, height, info)

	cur := anchorHash
	curHeight := anchorHeight
	for curHeight != height {
		blk, succ, ok, err := t.GetBlock(cur)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, wrapStoreErr(consensus.STORE_ERR_BLOCKS_GET, errNotFound("index walk: missing block"))
		}
		if forward {
			cur = succ
			curHeight++
		} else {
			cur = blk.Previous
			curHeight--
		}
	}
	blk, _, ok, err := t.GetBlock(cur)
	return blk, ok, err
}

// nearestAnchor picks whichever of the floor sparse-index anchor, the
// ceiling sparse-index anchor, the account head, or the account tail
// is closest to height, and returns its height, hash, and whether
// walking from it to height goes forward (via successor links).
func (t *Txn) nearestAnchor(account consensus.Account, height consensus.Height, info *AccountInfo) (consensus.Height, consensus.BlockHash, bool) {
	bestHeight := info.TailHeight
	bestHash := info.TailHash
	bestDist := diffHeight(height, info.TailHeight)

	consider := func(h consensus.Height, hash consensus.BlockHash) {
		d := diffHeight(height, h)
		if d < bestDist {
			bestDist = d
			bestHeight = h
			bestHash = hash
		}
	}
	consider(info.HeadHeight, info.HeadHash)

	floorAnchor := height - (height % BlocksPerIndex)
	if floorAnchor >= info.TailHeight {
		if hash, ok := t.getIndexEntry(account, floorAnchor); ok {
			consider(floorAnchor, hash)
		}
	}
	ceilAnchor := floorAnchor + BlocksPerIndex
	if ceilAnchor <= info.HeadHeight {
		if hash, ok := t.getIndexEntry(account, ceilAnchor); ok {
			consider(ceilAnchor, hash)
		}
	}
	return bestHeight, bestHash, bestHeight < height
}

func diffHeight(a, b consensus.Height) consensus.Height {
	if a > b {
		return a - b
	}
	return b - a
}
