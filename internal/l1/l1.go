// Package l1 is the sequencer's L1 settlement boundary: submitting
// sealed batches with their proofs, and relaying attested withdrawals
// for L1 payout. Only the consumer-side contract is implemented here —
// the L1 program itself is out of scope.
package l1

import (
	"context"
	"errors"
	"sync"

	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	// ErrBatchAlreadySubmitted is returned by implementations that want
	// to surface a duplicate submission explicitly rather than silently
	// no-op; MockL1Client treats it as success instead (idempotent).
	ErrBatchAlreadySubmitted = errors.New("batch already submitted")
	ErrWithdrawalAlreadySent = errors.New("withdrawal already relayed")
)

// Client is the L1 settlement boundary. Both methods must be
// idempotent: SubmitBatch under batch_id, WithdrawAttested under the
// withdrawal's transaction hash — a retried call after a transient
// failure must not double-submit.
type Client interface {
	SubmitBatch(ctx context.Context, header *types.BatchHeader, proof, publicWitness []byte) error
	WithdrawAttested(ctx context.Context, txHash types.Hash, l1Recipient [32]byte, amount uint64) error
}

// MockL1Client is an in-memory Client for tests and local runs: it
// records submissions and attestations and treats a repeat as a no-op
// success rather than an error, matching how the real L1 program's
// idempotency guard would behave to a caller.
type MockL1Client struct {
	mu          sync.Mutex
	batches     map[uint64]*types.BatchHeader
	withdrawals map[types.Hash]struct{}
}

func NewMockL1Client() *MockL1Client {
	return &MockL1Client{
		batches:     make(map[uint64]*types.BatchHeader),
		withdrawals: make(map[types.Hash]struct{}),
	}
}

func (m *MockL1Client) SubmitBatch(ctx context.Context, header *types.BatchHeader, proof, publicWitness []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[header.BatchId]; ok {
		return nil
	}
	m.batches[header.BatchId] = header
	return nil
}

func (m *MockL1Client) WithdrawAttested(ctx context.Context, txHash types.Hash, l1Recipient [32]byte, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[txHash]; ok {
		return nil
	}
	m.withdrawals[txHash] = struct{}{}
	return nil
}

func (m *MockL1Client) SubmittedBatch(batchID uint64) (*types.BatchHeader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.batches[batchID]
	return h, ok
}

func (m *MockL1Client) IsWithdrawalRelayed(txHash types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.withdrawals[txHash]
	return ok
}
