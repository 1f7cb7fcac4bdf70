package store

import "raicore.dev/ledger/consensus"

// PutRollback records a rolled-back block into the rollbacks table
// (section 3: audit/replay history), copied there in the same
// transaction that removes it from blocks.
func (t *WriteTxn) PutRollback(hash consensus.BlockHash, b *consensus.Block) error {
	if err := t.bucket(bucketRollbacks).Put(hash[:], consensus.EncodeBlock(b)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_ROLLBACKS_PUT, err)
	}
	return nil
}

// GetRollback looks up a historical rolled-back block by hash.
func (t *Txn) GetRollback(hash consensus.BlockHash) (*consensus.Block, bool, error) {
	v := t.tx.Bucket(bucketRollbacks).Get(hash[:])
	if v == nil {
		return nil, false, nil
	}
	blk, err := consensus.DecodeBlock(v)
	if err != nil {
		return nil, false, wrapStoreErr(consensus.STORE_ERR_ROLLBACKS_GET, err)
	}
	return blk, true, nil
}
