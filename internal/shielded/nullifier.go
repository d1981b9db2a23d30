package shielded

import (
	"sync"

	"github.com/zelana-labs/sequencer/internal/field"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// NullifierInfo records when and in which batch a nullifier was spent,
// for audit and dispute resolution.
type NullifierInfo struct {
	SpentInBatch uint64
	TxHash       types.Hash
}

// NullifierSet tracks every spent nullifier. Membership, not order, is
// the only thing that matters: two shielded transactions that name the
// same nullifier conflict regardless of which arrives first.
type NullifierSet struct {
	mu      sync.RWMutex
	spent   map[types.Hash]NullifierInfo
}

func NewNullifierSet() *NullifierSet {
	return &NullifierSet{spent: make(map[types.Hash]NullifierInfo)}
}

func (n *NullifierSet) IsSpent(nullifier types.Hash) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.spent[nullifier]
	return ok
}

func (n *NullifierSet) MarkSpent(nullifier types.Hash, batchID uint64, txHash types.Hash) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.spent[nullifier]; ok {
		return ErrNullifierSpent
	}
	n.spent[nullifier] = NullifierInfo{SpentInBatch: batchID, TxHash: txHash}
	return nil
}

func (n *NullifierSet) Info(nullifier types.Hash) (NullifierInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	info, ok := n.spent[nullifier]
	return info, ok
}

func (n *NullifierSet) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.spent)
}

// DeriveNullifier computes MiMC(domain=nullifier, spendingKeyCommit, commitment, position).
func DeriveNullifier(spendingKey types.Hash, commitment types.Hash, position uint64) types.Hash {
	sk := field.FromBytes([32]byte(spendingKey))
	c := field.FromBytes([32]byte(commitment))
	pos := field.FromUint64(position)
	h := field.HashN(field.DomainNullifier, sk, c, pos)
	return field.ToBytes(h)
}

// DeriveNoteCommitment computes MiMC(domain=note, value, accountId, blinder).
func DeriveNoteCommitment(value uint64, accountID types.AccountId, blinder types.Hash) types.Hash {
	v := field.FromUint64(value)
	a := field.FromBytes([32]byte(accountID))
	b := field.FromBytes([32]byte(blinder))
	h := field.HashN(field.DomainNote, v, a, b)
	return field.ToBytes(h)
}
