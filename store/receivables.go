package store

import (
	"encoding/binary"

	"raicore.dev/ledger/consensus"
)

// Receivable is a pending inbound send, section 3: "receivables | key:
// (Account, BlockHash) | value: (source_account, amount, timestamp)".
type Receivable struct {
	Source    consensus.Account
	Amount    consensus.Amount
	Timestamp consensus.Timestamp
}

func encodeReceivable(r *Receivable) []byte {
	out := make([]byte, 32+16+8)
	copy(out[0:32], r.Source[:])
	bal := r.Amount.Bytes()
	copy(out[32:48], bal[:])
	binary.BigEndian.PutUint64(out[48:56], uint64(r.Timestamp))
	return out
}

func decodeReceivable(b []byte) (*Receivable, error) {
	if len(b) != 56 {
		return nil, xerrStoreDecode("receivables")
	}
	r := &Receivable{}
	copy(r.Source[:], b[0:32])
	var bal [16]byte
	copy(bal[:], b[32:48])
	r.Amount = consensus.AmountFromBytes(bal)
	r.Timestamp = int64(binary.BigEndian.Uint64(b[48:56]))
	return r, nil
}

// GetReceivable looks up a pending send by (destination account, send
// block hash).
func (t *Txn) GetReceivable(account consensus.Account, sendHash consensus.BlockHash) (*Receivable, bool, error) {
	v := t.tx.Bucket(bucketReceivables).Get(accountHashKey(account, sendHash))
	if v == nil {
		return nil, false, nil
	}
	r, err := decodeReceivable(v)
	if err != nil {
		return nil, false, wrapStoreErr(consensus.STORE_ERR_RECEIVABLE_GET, err)
	}
	return r, true, nil
}

// PutReceivable inserts a pending send, created when that send is
// confirmed (section 3 lifecycle).
func (t *WriteTxn) PutReceivable(account consensus.Account, sendHash consensus.BlockHash, r *Receivable) error {
	if err := t.bucket(bucketReceivables).Put(accountHashKey(account, sendHash), encodeReceivable(r)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_RECEIVABLE_PUT, err)
	}
	return nil
}

// DeleteReceivable removes a pending send, deleted when the matching
// receive is confirmed.
func (t *WriteTxn) DeleteReceivable(account consensus.Account, sendHash consensus.BlockHash) error {
	if err := t.bucket(bucketReceivables).Delete(accountHashKey(account, sendHash)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_RECEIVABLE_DEL, err)
	}
	return nil
}

// ListReceivables iterates every pending receivable for account, used
// by the client RPC "receivables" action (section 6.4).
func (t *Txn) ListReceivables(account consensus.Account) ([]consensus.BlockHash, []*Receivable, error) {
	c := t.tx.Bucket(bucketReceivables).Cursor()
	prefix := account[:]
	var hashes []consensus.BlockHash
	var recs []*Receivable
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if len(k) != 64 {
			continue
		}
		var h consensus.BlockHash
		copy(h[:], k[32:64])
		r, err := decodeReceivable(v)
		if err != nil {
			return nil, nil, wrapStoreErr(consensus.STORE_ERR_RECEIVABLE_GET, err)
		}
		hashes = append(hashes, h)
		recs = append(recs, r)
	}
	return hashes, recs, nil
}

// ScanAllReceivables walks every receivable in the table, in key order
// (Account, BlockHash), invoking fn for each. Used by the client RPC
// "rewardables" action (section 6.4 / original_source
// rai/node/rewarder.cpp) to find source accounts with outstanding send
// history without needing a per-account query.
func (t *Txn) ScanAllReceivables(fn func(dest consensus.Account, sendHash consensus.BlockHash, r *Receivable) error) error {
	c := t.tx.Bucket(bucketReceivables).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if len(k) != 64 {
			continue
		}
		var dest consensus.Account
		var h consensus.BlockHash
		copy(dest[:], k[0:32])
		copy(h[:], k[32:64])
		r, err := decodeReceivable(v)
		if err != nil {
			return wrapStoreErr(consensus.STORE_ERR_RECEIVABLE_GET, err)
		}
		if err := fn(dest, h, r); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
