package store

import bolt "go.etcd.io/bbolt"

// Iterator wraps a bbolt cursor to provide the lower_bound/upper_bound
// access pattern of section 4.2. It is only valid for the lifetime of
// the transaction it was created from, and is invalidated by writes to
// its table within the same transaction (bbolt's own cursor rule,
// which the section-4.2 invariant restates).
type Iterator struct {
	cursor *bolt.Cursor
}

// iterator opens a cursor over the named table for the duration of
// this transaction.
func (t *Txn) iterator(bucket []byte) *Iterator {
	return &Iterator{cursor: t.tx.Bucket(bucket).Cursor()}
}

// AccountsIterator iterates the accounts table.
func (t *Txn) AccountsIterator() *Iterator { return t.iterator(bucketAccounts) }

// BlocksIterator iterates the blocks table.
func (t *Txn) BlocksIterator() *Iterator { return t.iterator(bucketBlocks) }

// ForksIterator iterates the forks table.
func (t *Txn) ForksIterator() *Iterator { return t.iterator(bucketForks) }

// LowerBound seeks to the first key >= key and returns it (or nil if
// none).
func (it *Iterator) LowerBound(key []byte) (k, v []byte) {
	return it.cursor.Seek(key)
}

// UpperBound seeks to the first key > key.
func (it *Iterator) UpperBound(key []byte) (k, v []byte) {
	k, v = it.cursor.Seek(key)
	if k != nil && string(k) == string(key) {
		return it.cursor.Next()
	}
	return k, v
}

// Next advances the cursor.
func (it *Iterator) Next() (k, v []byte) { return it.cursor.Next() }

// First seeks to the first key in the table.
func (it *Iterator) First() (k, v []byte) { return it.cursor.First() }
