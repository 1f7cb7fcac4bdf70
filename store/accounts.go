package store

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"raicore.dev/ledger/consensus"
)

// AccountType distinguishes which block-type chain an account runs,
// mirroring consensus.BlockType for the account's genesis block.
type AccountType = consensus.BlockType

// AccountInfo is the accounts-table value of section 3: a per-account
// head pointer and confirmation watermark. ConfirmedHeight ==
// consensus.InvalidHeight means "unconfirmed."
type AccountInfo struct {
	Type           AccountType
	Forks          uint32
	TailHeight     consensus.Height
	HeadHeight     consensus.Height
	ConfirmedHeight consensus.Height
	HeadHash       consensus.BlockHash
	TailHash       consensus.BlockHash
}

// HasConfirmed reports whether any block of this account is confirmed.
func (a *AccountInfo) HasConfirmed() bool {
	return a.ConfirmedHeight != consensus.InvalidHeight
}

func encodeAccountInfo(a *AccountInfo) []byte {
	out := make([]byte, 1+4+8+8+8+32+32)
	out[0] = byte(a.Type)
	binary.BigEndian.PutUint32(out[1:5], a.Forks)
	binary.BigEndian.PutUint64(out[5:13], a.TailHeight)
	binary.BigEndian.PutUint64(out[13:21], a.HeadHeight)
	binary.BigEndian.PutUint64(out[21:29], a.ConfirmedHeight)
	copy(out[29:61], a.HeadHash[:])
	copy(out[61:93], a.TailHash[:])
	return out
}

func decodeAccountInfo(b []byte) (*AccountInfo, error) {
	if len(b) != 93 {
		return nil, xerrStoreDecode("account_info")
	}
	a := &AccountInfo{
		Type:            AccountType(b[0]),
		Forks:           binary.BigEndian.Uint32(b[1:5]),
		TailHeight:      binary.BigEndian.Uint64(b[5:13]),
		HeadHeight:      binary.BigEndian.Uint64(b[13:21]),
		ConfirmedHeight: binary.BigEndian.Uint64(b[21:29]),
	}
	copy(a.HeadHash[:], b[29:61])
	copy(a.TailHash[:], b[61:93])
	return a, nil
}

// GetAccountInfo returns the account's info, or ok=false if the
// account has never appended a block.
func (t *Txn) GetAccountInfo(account consensus.Account) (*AccountInfo, bool, error) {
	v := t.tx.Bucket(bucketAccounts).Get(accountKey(account))
	if v == nil {
		return nil, false, nil
	}
	info, err := decodeAccountInfo(v)
	if err != nil {
		return nil, false, wrapStoreErr(consensus.STORE_ERR_ACCOUNTS_GET, err)
	}
	return info, true, nil
}

// PutAccountInfo is a write-transaction-only mutation.
func (t *WriteTxn) PutAccountInfo(account consensus.Account, info *AccountInfo) error {
	if err := t.bucket(bucketAccounts).Put(accountKey(account), encodeAccountInfo(info)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_ACCOUNTS_PUT, err)
	}
	return nil
}

// DeleteAccountInfo removes the account row entirely (used when a
// rollback removes an account's only block).
func (t *WriteTxn) DeleteAccountInfo(account consensus.Account) error {
	if err := t.bucket(bucketAccounts).Delete(accountKey(account)); err != nil {
		return wrapStoreErr(consensus.STORE_ERR_ACCOUNTS_DEL, err)
	}
	return nil
}

func (t *WriteTxn) bucket(name []byte) *bolt.Bucket {
	return t.tx.Bucket(name)
}

// AccountHead is a read-only convenience wrapper for callers (the
// election container, in particular) that only need an account's
// current head pointer and do not want to manage a transaction
// themselves.
func (s *Store) AccountHead(account consensus.Account) (hash consensus.BlockHash, height consensus.Height, ok bool, err error) {
	err = s.View(func(t *Txn) error {
		info, found, ferr := t.GetAccountInfo(account)
		if ferr != nil {
			return ferr
		}
		if !found {
			return nil
		}
		hash, height, ok = info.HeadHash, info.HeadHeight, true
		return nil
	})
	return hash, height, ok, err
}

// ScanAccounts walks every account row in key order, invoking fn with
// its decoded AccountInfo. Used by the client RPC "rewardables" action
// (section 6.4) to read each candidate's current head balance.
func (t *Txn) ScanAccounts(fn func(account consensus.Account, info *AccountInfo) error) error {
	c := t.tx.Bucket(bucketAccounts).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		info, err := decodeAccountInfo(v)
		if err != nil {
			return wrapStoreErr(consensus.STORE_ERR_ACCOUNTS_GET, err)
		}
		var account consensus.Account
		copy(account[:], k)
		if err := fn(account, info); err != nil {
			return err
		}
	}
	return nil
}

// BlockAtHeight is a read-only convenience wrapper over
// Txn.GetBlockAtHeight for callers (the subscription fabric's confirm
// backfill walk, in particular) that do not want to manage a
// transaction themselves.
func (s *Store) BlockAtHeight(account consensus.Account, height consensus.Height) (blk *consensus.Block, ok bool, err error) {
	err = s.View(func(t *Txn) error {
		blk, ok, err = t.GetBlockAtHeight(account, height)
		return err
	})
	return blk, ok, err
}
