// Package store is the sequencer's authoritative persistent state: a
// bbolt-backed column-family store with one bucket per logical column,
// opened once at startup. All of a sealed batch's writes are applied
// inside a single bbolt transaction (Commit) — bbolt's transaction
// boundary is what gives "no partial batch state is ever observable"
// for free. The deposit indexer's dedup marks and last processed slot
// are written separately, outside batch commits.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/zelana-labs/sequencer/pkg/types"
)

var ErrNotFound = errors.New("store: key not found")

var (
	bucketAccounts         = []byte("accounts")
	bucketAccountTreeNodes = []byte("account_tree_nodes")
	bucketAccountTreeMeta  = []byte("account_tree_meta")
	bucketCommitments      = []byte("commitments")
	bucketNullifiers       = []byte("nullifiers")
	bucketShieldedMeta     = []byte("shielded_meta")
	bucketWithdrawals      = []byte("withdrawals")
	bucketBatches          = []byte("batches")
	bucketTxIndex          = []byte("tx_index")
	bucketProcessedDeps    = []byte("processed_deposits")
	bucketIndexerMeta      = []byte("indexer_meta")

	allBuckets = [][]byte{
		bucketAccounts, bucketAccountTreeNodes, bucketAccountTreeMeta,
		bucketCommitments, bucketNullifiers, bucketShieldedMeta,
		bucketWithdrawals, bucketBatches, bucketTxIndex,
		bucketProcessedDeps, bucketIndexerMeta,
	}
)

// Store wraps a bbolt database opened at path, with one bucket per
// column declared above.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *bbolt.DB {
	return s.db
}

func u64key(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func levelIndexKey(level int, index uint64) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(level))
	binary.BigEndian.PutUint64(b[8:16], index)
	return b[:]
}

// --- accounts ---

func (s *Store) GetAccount(id types.AccountId) (types.AccountState, bool, error) {
	var state types.AccountState
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get(id[:])
		if v == nil {
			return nil
		}
		found = true
		state.Balance = binary.BigEndian.Uint64(v[0:8])
		state.Nonce = binary.BigEndian.Uint64(v[8:16])
		return nil
	})
	return state, found, err
}

func encodeAccountState(s types.AccountState) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], s.Balance)
	binary.BigEndian.PutUint64(b[8:16], s.Nonce)
	return b[:]
}

// --- account tree nodes (smt.Store implementation) ---

func (s *Store) GetNode(level int, index uint64) (types.Hash, bool, error) {
	var h types.Hash
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAccountTreeNodes).Get(levelIndexKey(level, index))
		if v == nil {
			return nil
		}
		found = true
		copy(h[:], v)
		return nil
	})
	return h, found, err
}

func (s *Store) SetNode(level int, index uint64, h types.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccountTreeNodes).Put(levelIndexKey(level, index), h[:])
	})
}

func (s *Store) GetRoot() (types.Hash, error) {
	var h types.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAccountTreeMeta).Get([]byte("root"))
		if v != nil {
			copy(h[:], v)
		}
		return nil
	})
	return h, err
}

func (s *Store) SetRoot(h types.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccountTreeMeta).Put([]byte("root"), h[:])
	})
}

// --- processed deposits (exactly-once indexing) ---

func (s *Store) IsDepositProcessed(l1Seq uint64) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketProcessedDeps).Get(u64key(l1Seq)) != nil
		return nil
	})
	return found, err
}

func (s *Store) MarkDepositProcessed(l1Seq, slot uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProcessedDeps).Put(u64key(l1Seq), u64key(slot))
	})
}

func (s *Store) GetLastProcessedSlot() (uint64, bool, error) {
	var slot uint64
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketIndexerMeta).Get([]byte("last_slot"))
		if v == nil {
			return nil
		}
		found = true
		slot = binary.BigEndian.Uint64(v)
		return nil
	})
	return slot, found, err
}

func (s *Store) SetLastProcessedSlot(slot uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexerMeta).Put([]byte("last_slot"), u64key(slot))
	})
}

// --- batches ---

func (s *Store) GetBatchHeader(batchID uint64) (*types.BatchHeader, bool, error) {
	var hdr *types.BatchHeader
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBatches).Get(u64key(batchID))
		if v == nil {
			return nil
		}
		hdr = decodeBatchHeader(v)
		return nil
	})
	return hdr, hdr != nil, err
}

// GetNextBatchId returns the batch ID the pipeline should assign to the
// next sealed batch, defaulting to 1 for a fresh store.
func (s *Store) GetNextBatchId() (uint64, error) {
	id := uint64(1)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketIndexerMeta).Get([]byte("next_batch_id"))
		if v != nil {
			id = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return id, err
}

// --- shielded pool replay (startup rehydration) ---

// AllCommitmentsOrdered returns every persisted shielded commitment in
// insertion-position order, so internal/shielded.Pool can rebuild its
// in-memory frontier tree on restart.
func (s *Store) AllCommitmentsOrdered() ([]types.Hash, error) {
	var out []types.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCommitments)
		n := b.Stats().KeyN
		out = make([]types.Hash, 0, n)
		return b.ForEach(func(k, v []byte) error {
			var h types.Hash
			copy(h[:], v)
			out = append(out, h)
			return nil
		})
	})
	return out, err
}

// AllNullifiers returns every persisted spent nullifier, so
// internal/shielded.Pool can rebuild its nullifier set on restart.
func (s *Store) AllNullifiers() ([]types.Hash, error) {
	var out []types.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNullifiers)
		n := b.Stats().KeyN
		out = make([]types.Hash, 0, n)
		return b.ForEach(func(k, v []byte) error {
			var h types.Hash
			copy(h[:], k)
			out = append(out, h)
			return nil
		})
	})
	return out, err
}
