// Package store implements the Ledger Store of section 4.2: a single
// embedded bbolt database holding the tables of section 3 (accounts,
// blocks, blocks_index, forks, receivables, rollbacks) plus the
// in-memory representative-weight tally of section 4.2/4.3.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"raicore.dev/ledger/consensus"
)

// BlocksPerIndex is the sparse-index stride of section 4.2: the
// secondary index stores one entry every BlocksPerIndex heights, and a
// height lookup walks at most BlocksPerIndex-1 successor/previous
// links from the nearer anchor.
const BlocksPerIndex = 64

// SchemaVersion guards the on-disk layout; there are no inline
// migrations (section 6.5), only a version gate.
const SchemaVersion = 1

var (
	bucketMeta        = []byte("meta")
	bucketAccounts    = []byte("accounts")
	bucketBlocks      = []byte("blocks")
	bucketBlocksIndex = []byte("blocks_index")
	bucketForks       = []byte("forks")
	bucketReceivables = []byte("receivables")
	bucketRollbacks   = []byte("rollbacks")
)

var allBuckets = [][]byte{
	bucketMeta, bucketAccounts, bucketBlocks, bucketBlocksIndex,
	bucketForks, bucketReceivables, bucketRollbacks,
}

// Store is the Ledger Store: one bbolt handle plus the in-memory
// representative-weight cache (section 4.2/4.3). All mutation goes
// through Write, which is the processor's single-writer serialization
// point (section 5).
type Store struct {
	db  *bolt.DB
	rep *repWeightCache
}

// Open opens (and if necessary creates) the bbolt database at path,
// ensuring every table bucket exists, and cold-starts the
// representative-weight cache by scanning account heads.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", string(b), err)
			}
		}
		return ensureSchemaVersion(tx)
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	s := &Store{db: bdb, rep: newRepWeightCache()}
	if err := s.coldStartRepWeights(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying bbolt handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchemaVersion(tx *bolt.Tx) error {
	b := tx.Bucket(bucketMeta)
	v := b.Get([]byte("version"))
	if v == nil {
		return b.Put([]byte("version"), encodeU32(SchemaVersion))
	}
	got := decodeU32(v)
	if got > SchemaVersion {
		return fmt.Errorf("store: schema version %d newer than supported %d", got, SchemaVersion)
	}
	return nil
}

// coldStartRepWeights reconstructs the representative-weight cache by
// scanning every account head whose block carries a representative
// field (section 4.2: "a cold-start reconstructs the cache from the
// persisted blocks").
func (s *Store) coldStartRepWeights() error {
	return s.db.View(func(tx *bolt.Tx) error {
		acc := tx.Bucket(bucketAccounts)
		blocks := tx.Bucket(bucketBlocks)
		return acc.ForEach(func(k, v []byte) error {
			info, err := decodeAccountInfo(v)
			if err != nil {
				return fmt.Errorf("store: cold start: decode account info: %w", err)
			}
			raw := blocks.Get(info.HeadHash[:])
			if raw == nil {
				return fmt.Errorf("store: cold start: missing head block %x", info.HeadHash)
			}
			blk, _, err := decodeStoredBlock(raw)
			if err != nil {
				return fmt.Errorf("store: cold start: decode head block: %w", err)
			}
			if blk.HasRepresentative() {
				s.rep.add(blk.Representative, blk.Balance)
			}
			return nil
		})
	})
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func decodeU32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// accountKey, heightKey, and composite-key helpers implement section
// 6.5: integer keys are big-endian so lexicographic order matches
// numeric order; composite keys are plain concatenations.

func accountKey(a consensus.Account) []byte {
	return a[:]
}

func heightKey(h consensus.Height) []byte {
	return []byte{
		byte(h >> 56), byte(h >> 48), byte(h >> 40), byte(h >> 32),
		byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h),
	}
}

func accountHeightKey(a consensus.Account, h consensus.Height) []byte {
	out := make([]byte, 0, 40)
	out = append(out, a[:]...)
	out = append(out, heightKey(h)...)
	return out
}

func accountHashKey(a consensus.Account, h consensus.BlockHash) []byte {
	out := make([]byte, 0, 64)
	out = append(out, a[:]...)
	out = append(out, h[:]...)
	return out
}
