package store

import "raicore.dev/ledger/consensus"

// ForkEntry holds the two candidate blocks contending for one
// (account, height), section 3: "forks | key: (Account, Height) |
// value: two serialized candidate blocks."
type ForkEntry struct {
	First  *consensus.Block
	Second *consensus.Block
}

func encodeForkEntry(e *ForkEntry) []byte {
	first := consensus.EncodeBlock(e.First)
	second := consensus.EncodeBlock(e.Second)
	out := make([]byte, 0, 4+len(first)+4+len(second))
	out = append(out, u32be(uint32(len(first)))...)
	out = append(out, first...)
	out = append(out, u32be(uint32(len(second)))...)
	out = append(out, second...)
	return out
}

func decodeForkEntry(b []byte) (*ForkEntry, error) {
	if len(b) < 4 {
		return nil, xerrStoreDecode("forks")
	}
	firstLen := be32(b[0:4])
	if len(b) < int(4+firstLen+4) {
		return nil, xerrStoreDecode("forks")
	}
	first, err := consensus.DecodeBlock(b[4 : 4+firstLen])
	if err != nil {
		return nil, err
	}
	rest := b[4+firstLen:]
	secondLen := be32(rest[0:4])
	if len(rest) != int(4+secondLen) {
		return nil, xerrStoreDecode("forks")
	}
	second, err := consensus.DecodeBlock(rest[4 : 4+secondLen])
	if err != nil {
		return nil, err
	}
	return &ForkEntry{First: first, Second: second}, nil
}

func u32be(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// GetFork returns the fork entry at (account, height), if any.
func (t *Txn) GetFork(account consensus.Account, height consensus.Height) (*ForkEntry, bool, error) {
	v := t.tx.Bucket(bucketForks).Get(accountHeightKey(account, height))
	if v == nil {
		return nil, false, nil
	}
	e, err := decodeForkEntry(v)
	if err != nil {
		return nil, false, wrapStoreErr(consensus.STORE_ERR_FORKS_GET, err)
	}
	return e, true, nil
}

// PutFork inserts the fork-uniqueness-invariant entry for
// (account, height): at most one per height (section 8).
func (t *WriteTxn) PutFork(account consensus.Account, height consensus.Height, e *ForkEntry) error {
	if err := t.bucket(bucketForks).Put(accountHeightKey(account, height), encodeForkEntry(e)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_FORKS_PUT, err)
	}
	return nil
}

// DeleteFork removes a resolved fork entry.
func (t *WriteTxn) DeleteFork(account consensus.Account, height consensus.Height) error {
	if err := t.bucket(bucketForks).Delete(accountHeightKey(account, height)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_FORKS_DEL, err)
	}
	return nil
}
