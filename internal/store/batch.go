package store

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"github.com/zelana-labs/sequencer/pkg/types"
)

// Batch accumulates every write a sealed batch produces — account
// states, account-tree nodes, shielded commitments, nullifiers,
// withdrawals, the batch header itself, and any deposit dedup entries
// — so they can be applied in a single bbolt transaction. A batch that
// fails partway through Commit leaves the store exactly as it was
// before Commit was called; there is no partial-write state to observe.
type Batch struct {
	accounts       map[types.AccountId]types.AccountState
	accountNodes   map[[2]uint64]types.Hash
	accountRoot    *types.Hash
	commitments    map[uint64]types.Hash
	nullifiers     map[types.Hash]struct{}
	withdrawals    map[uint64][]byte
	header         *types.BatchHeader
	processedDeps  map[uint64]uint64
	lastSlot       *uint64
	nextBatchId    *uint64
}

func NewBatch() *Batch {
	return &Batch{
		accounts:      make(map[types.AccountId]types.AccountState),
		accountNodes:  make(map[[2]uint64]types.Hash),
		commitments:   make(map[uint64]types.Hash),
		nullifiers:    make(map[types.Hash]struct{}),
		withdrawals:   make(map[uint64][]byte),
		processedDeps: make(map[uint64]uint64),
	}
}

func (b *Batch) PutAccount(id types.AccountId, state types.AccountState) {
	b.accounts[id] = state
}

func (b *Batch) PutAccountNode(level int, index uint64, h types.Hash) {
	b.accountNodes[[2]uint64{uint64(level), index}] = h
}

func (b *Batch) SetAccountRoot(h types.Hash) {
	b.accountRoot = &h
}

func (b *Batch) PutCommitment(position uint64, c types.Hash) {
	b.commitments[position] = c
}

func (b *Batch) PutNullifier(n types.Hash) {
	b.nullifiers[n] = struct{}{}
}

func (b *Batch) PutWithdrawal(id uint64, encoded []byte) {
	b.withdrawals[id] = encoded
}

func (b *Batch) SetHeader(h *types.BatchHeader) {
	b.header = h
}

func (b *Batch) MarkDepositProcessed(l1Seq, slot uint64) {
	b.processedDeps[l1Seq] = slot
}

func (b *Batch) SetLastProcessedSlot(slot uint64) {
	b.lastSlot = &slot
}

func (b *Batch) SetNextBatchId(id uint64) {
	b.nextBatchId = &id
}

// Commit applies every accumulated write in one bbolt transaction.
func (s *Store) Commit(b *Batch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		accBkt := tx.Bucket(bucketAccounts)
		for id, state := range b.accounts {
			if err := accBkt.Put(id[:], encodeAccountState(state)); err != nil {
				return err
			}
		}

		nodeBkt := tx.Bucket(bucketAccountTreeNodes)
		for key, h := range b.accountNodes {
			if err := nodeBkt.Put(levelIndexKey(int(key[0]), key[1]), h[:]); err != nil {
				return err
			}
		}

		if b.accountRoot != nil {
			if err := tx.Bucket(bucketAccountTreeMeta).Put([]byte("root"), (*b.accountRoot)[:]); err != nil {
				return err
			}
		}

		commitBkt := tx.Bucket(bucketCommitments)
		for pos, c := range b.commitments {
			if err := commitBkt.Put(u64key(pos), c[:]); err != nil {
				return err
			}
		}

		nullBkt := tx.Bucket(bucketNullifiers)
		for n := range b.nullifiers {
			if err := nullBkt.Put(n[:], []byte{1}); err != nil {
				return err
			}
		}

		wdBkt := tx.Bucket(bucketWithdrawals)
		for id, encoded := range b.withdrawals {
			if err := wdBkt.Put(u64key(id), encoded); err != nil {
				return err
			}
		}

		if b.header != nil {
			if err := tx.Bucket(bucketBatches).Put(u64key(b.header.BatchId), encodeBatchHeader(b.header)); err != nil {
				return err
			}
		}

		depBkt := tx.Bucket(bucketProcessedDeps)
		for l1Seq, slot := range b.processedDeps {
			if err := depBkt.Put(u64key(l1Seq), u64key(slot)); err != nil {
				return err
			}
		}

		if b.lastSlot != nil {
			if err := tx.Bucket(bucketIndexerMeta).Put([]byte("last_slot"), u64key(*b.lastSlot)); err != nil {
				return err
			}
		}

		if b.nextBatchId != nil {
			if err := tx.Bucket(bucketIndexerMeta).Put([]byte("next_batch_id"), u64key(*b.nextBatchId)); err != nil {
				return err
			}
		}

		return nil
	})
}

func encodeBatchHeader(h *types.BatchHeader) []byte {
	buf := make([]byte, 0, 8*6+32*6)
	buf = append(buf, u64Bytes(h.BatchId)...)
	buf = append(buf, h.PrevAccountRoot[:]...)
	buf = append(buf, h.PostAccountRoot[:]...)
	buf = append(buf, h.PrevShieldedRoot[:]...)
	buf = append(buf, h.PostShieldedRoot[:]...)
	buf = append(buf, h.WithdrawalRoot[:]...)
	buf = append(buf, h.BatchHash[:]...)
	buf = append(buf, u64Bytes(h.TxCount)...)
	buf = append(buf, u64Bytes(h.TransferCount)...)
	buf = append(buf, u64Bytes(h.WithdrawalCount)...)
	buf = append(buf, u64Bytes(h.ShieldedCount)...)
	buf = append(buf, u64Bytes(uint64(h.SealedAtUnix))...)
	return buf
}

func decodeBatchHeader(v []byte) *types.BatchHeader {
	if len(v) < 8*6+32*6 {
		return nil
	}
	h := &types.BatchHeader{}
	off := 0
	readU64 := func() uint64 {
		val := binary.BigEndian.Uint64(v[off : off+8])
		off += 8
		return val
	}
	readHash := func() types.Hash {
		var hsh types.Hash
		copy(hsh[:], v[off:off+32])
		off += 32
		return hsh
	}

	h.BatchId = readU64()
	h.PrevAccountRoot = readHash()
	h.PostAccountRoot = readHash()
	h.PrevShieldedRoot = readHash()
	h.PostShieldedRoot = readHash()
	h.WithdrawalRoot = readHash()
	h.BatchHash = readHash()
	h.TxCount = readU64()
	h.TransferCount = readU64()
	h.WithdrawalCount = readU64()
	h.ShieldedCount = readU64()
	h.SealedAtUnix = int64(readU64())
	return h
}

func u64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
