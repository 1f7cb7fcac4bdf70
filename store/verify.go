package store

import (
	"raicore.dev/ledger/consensus"
)

// VerifyHeads re-verifies the signature of every account's current
// head block, the node's one startup integrity check (section 6.6:
// exit code 3, "signature verification failure on startup"). It does
// not re-walk full chains: a corrupt interior block would already
// have failed this same check when it was still a head, at the time
// it was appended.
func (s *Store) VerifyHeads() error {
	return s.View(func(t *Txn) error {
		it := t.AccountsIterator()
		for k, v := it.First(); k != nil; k, v = it.Next() {
			info, err := decodeAccountInfo(v)
			if err != nil {
				return err
			}
			blk, _, ok, err := t.GetBlock(info.HeadHash)
			if err != nil {
				return err
			}
			if !ok {
				return wrapStoreErr(consensus.STORE_ERR_BLOCKS_GET, errNotFound("verify heads: head block missing"))
			}
			if err := consensus.VerifySignature(blk); err != nil {
				return err
			}
			if blk.Hash() != info.HeadHash {
				return wrapStoreErr(consensus.STORE_ERR_BLOCKS_GET, errNotFound("verify heads: head hash mismatch"))
			}
		}
		return nil
	})
}
