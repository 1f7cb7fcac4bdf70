package store

import (
	"raicore.dev/ledger/consensus"
)

// encodeStoredBlock packs a block's full wire encoding together with
// its forward successor pointer (section 3: "blocks | key: BlockHash |
// value: serialized block || successor_hash").
func encodeStoredBlock(b *consensus.Block, successor consensus.BlockHash) []byte {
	wire := consensus.EncodeBlock(b)
	out := make([]byte, 0, len(wire)+32)
	out = append(out, wire...)
	out = append(out, successor[:]...)
	return out
}

func decodeStoredBlock(raw []byte) (*consensus.Block, consensus.BlockHash, error) {
	var zero consensus.BlockHash
	if len(raw) < 32 {
		return nil, zero, xerrStoreDecode("blocks")
	}
	wire := raw[:len(raw)-32]
	var successor consensus.BlockHash
	copy(successor[:], raw[len(raw)-32:])
	blk, err := consensus.DecodeBlock(wire)
	if err != nil {
		return nil, zero, err
	}
	return blk, successor, nil
}

// GetBlock returns the block and its successor hash (zero if it is the
// current head of its account), or ok=false if absent.
func (t *Txn) GetBlock(hash consensus.BlockHash) (*consensus.Block, consensus.BlockHash, bool, error) {
	v := t.tx.Bucket(bucketBlocks).Get(hash[:])
	if v == nil {
		return nil, consensus.BlockHash{}, false, nil
	}
	blk, succ, err := decodeStoredBlock(v)
	if err != nil {
		return nil, consensus.BlockHash{}, false, wrapStoreErr(consensus.STORE_ERR_BLOCKS_GET, err)
	}
	return blk, succ, true, nil
}

// HasBlock reports whether hash is present, without paying the decode
// cost of GetBlock.
func (t *Txn) HasBlock(hash consensus.BlockHash) bool {
	return t.tx.Bucket(bucketBlocks).Get(hash[:]) != nil
}

// PutBlock inserts or overwrites a block's stored record.
func (t *WriteTxn) PutBlock(hash consensus.BlockHash, b *consensus.Block, successor consensus.BlockHash) error {
	if err := t.bucket(bucketBlocks).Put(hash[:], encodeStoredBlock(b, successor)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_BLOCKS_PUT, err)
	}
	return nil
}

// SetSuccessor rewrites only the successor pointer of an existing
// stored block (used when appending a new head, and cleared on
// rollback of that head).
func (t *WriteTxn) SetSuccessor(hash consensus.BlockHash, successor consensus.BlockHash) error {
	blk, _, ok, err := t.GetBlock(hash)
	if err != nil {
		return err
	}
	if !ok {
		return wrapStoreErr(consensus.STORE_ERR_BLOCKS_PUT, errNotFound("set successor: block not found"))
	}
	return t.PutBlock(hash, blk, successor)
}

// DeleteBlock removes a block's stored record (rollback only; the
// content must already have been copied to rollbacks).
func (t *WriteTxn) DeleteBlock(hash consensus.BlockHash) error {
	if err := t.bucket(bucketBlocks).Delete(hash[:]); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_BLOCKS_DEL, err)
	}
	return nil
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func errNotFound(msg string) error { return notFoundError(msg) }
