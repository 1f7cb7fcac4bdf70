package store

import (
	bolt "go.etcd.io/bbolt"

	"raicore.dev/ledger/consensus"
)

// Txn is a read-only transaction scope (section 4.2: "All reads and
// writes occur within a transaction object scoped to one task").
type Txn struct {
	tx *bolt.Tx
}

// repWeightOp is one entry in a write transaction's deferred
// representative-weight operation log (section 4.2, design notes
// "Rep-weight cache coherence": "the per-transaction operation log as
// a value owned by the transaction; commit is a merge into the shared
// map under a single lock").
type repWeightOp struct {
	sub   bool
	rep   consensus.Account
	amount consensus.Amount
}

// WriteTxn additionally buffers representative-weight operations,
// applied to the shared cache only on commit.
type WriteTxn struct {
	Txn
	repOps []repWeightOp
}

// AddRepWeight enqueues "representative now delegates amount more"
// into this transaction's deferred op log; it has no visible effect
// until the transaction commits.
func (t *WriteTxn) AddRepWeight(rep consensus.Account, amount consensus.Amount) {
	if rep.IsZero() || amount.IsZero() {
		return
	}
	t.repOps = append(t.repOps, repWeightOp{sub: false, rep: rep, amount: amount})
}

// SubRepWeight enqueues "representative now delegates amount less."
func (t *WriteTxn) SubRepWeight(rep consensus.Account, amount consensus.Amount) {
	if rep.IsZero() || amount.IsZero() {
		return
	}
	t.repOps = append(t.repOps, repWeightOp{sub: true, rep: rep, amount: amount})
}

// View runs fn in a read-only transaction. Multiple Views may run
// concurrently with each other and with the single in-flight Write
// (section 5: "Reads are multi-reader via separate read transactions").
func (s *Store) View(fn func(*Txn) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Txn{tx: btx})
	})
}

// Write runs fn in a single read-write transaction. On success, the
// transaction's buffered representative-weight operations are merged
// into the shared cache atomically with the bbolt commit, per section
// 4.2: "A write transaction's commit atomically flushes both the
// underlying key-value store changes and a buffered list of
// representative-weight operations." On failure, both are discarded.
func (s *Store) Write(fn func(*WriteTxn) error) error {
	wt := &WriteTxn{}
	err := s.db.Update(func(btx *bolt.Tx) error {
		wt.tx = btx
		return fn(wt)
	})
	if err != nil {
		return err
	}
	s.rep.apply(wt.repOps)
	return nil
}
