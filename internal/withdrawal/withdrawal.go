// Package withdrawal tracks L2-to-L1 withdrawal requests through to
// L1 settlement, plus an optional liquidity-provider fast path that
// fronts funds to the user before the challenge period elapses.
package withdrawal

import (
	"errors"
	"sync"

	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	ErrWithdrawalNotFound     = errors.New("withdrawal: not found")
	ErrInvalidStateTransition = errors.New("withdrawal: invalid state transition")
)

// Status is the lifecycle a standard withdrawal passes through.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusAttested
	StatusClaimed
	StatusInvalidated
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAttested:
		return "attested"
	case StatusClaimed:
		return "claimed"
	case StatusInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Record is a tracked withdrawal request.
type Record struct {
	TxHash      types.Hash
	From        types.AccountId
	L1Recipient [32]byte
	Amount      uint64
	BatchId     uint64
	Status      Status
}

// Queue tracks every withdrawal from submission through L1 claim.
type Queue struct {
	mu      sync.RWMutex
	records map[types.Hash]*Record
}

func NewQueue() *Queue {
	return &Queue{records: make(map[types.Hash]*Record)}
}

// Enqueue registers a withdrawal as Pending once its batch is sealed.
func (q *Queue) Enqueue(tx *types.WithdrawalTx, batchID uint64) *Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := &Record{
		TxHash:      tx.TxHash(),
		From:        tx.From,
		L1Recipient: tx.L1Recipient,
		Amount:      tx.Amount,
		BatchId:     batchID,
		Status:      StatusPending,
	}
	q.records[r.TxHash] = r
	return r
}

// Attest marks every withdrawal in a batch Attested once that batch's
// proof has been accepted on L1.
func (q *Queue) Attest(batchID uint64) []types.Hash {
	q.mu.Lock()
	defer q.mu.Unlock()

	var attested []types.Hash
	for _, r := range q.records {
		if r.BatchId == batchID && r.Status == StatusPending {
			r.Status = StatusAttested
			attested = append(attested, r.TxHash)
		}
	}
	return attested
}

// MarkClaimed transitions an attested withdrawal to Claimed once the L1
// bridge has paid it out.
func (q *Queue) MarkClaimed(txHash types.Hash) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[txHash]
	if !ok {
		return ErrWithdrawalNotFound
	}
	if r.Status != StatusAttested {
		return ErrInvalidStateTransition
	}
	r.Status = StatusClaimed
	return nil
}

// Invalidate marks a withdrawal as rejected, e.g. a fraud challenge
// against its batch succeeded.
func (q *Queue) Invalidate(txHash types.Hash) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[txHash]
	if !ok {
		return ErrWithdrawalNotFound
	}
	if r.Status == StatusClaimed {
		return ErrInvalidStateTransition
	}
	r.Status = StatusInvalidated
	return nil
}

func (q *Queue) Get(txHash types.Hash) (*Record, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	r, ok := q.records[txHash]
	return r, ok
}

func (q *Queue) PendingForBatch(batchID uint64) []*Record {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*Record
	for _, r := range q.records {
		if r.BatchId == batchID {
			out = append(out, r)
		}
	}
	return out
}
