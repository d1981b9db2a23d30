// Package mempool holds pending transactions awaiting inclusion in a
// sealed batch: a bounded, strictly submission-ordered queue with a
// nullifier index for early shielded double-spend rejection.
package mempool

import (
	"github.com/zelana-labs/sequencer/pkg/types"
)

// Envelope wraps one of the four submittable transaction classes with
// mempool bookkeeping. Exactly one of Transparent/Withdrawal/Shielded/
// Deposit is set, selected by Type.
type Envelope struct {
	Type         types.TxType
	Transparent  *types.TransparentTx
	Withdrawal   *types.WithdrawalTx
	Shielded     *types.ShieldedTx
	Deposit      *types.DepositEvent
	Hash         types.Hash
	SubmittedSeq uint64
}

// Nullifiers returns the shielded nullifiers this envelope spends, if
// any.
func (e *Envelope) Nullifiers() []types.Nullifier {
	if e.Type == types.TxShielded {
		return e.Shielded.Nullifiers
	}
	return nil
}

func NewTransparentEnvelope(tx *types.TransparentTx) *Envelope {
	return &Envelope{Type: types.TxTransfer, Transparent: tx, Hash: tx.TxHash()}
}

func NewWithdrawalEnvelope(tx *types.WithdrawalTx) *Envelope {
	return &Envelope{Type: types.TxWithdraw, Withdrawal: tx, Hash: tx.TxHash()}
}

func NewShieldedEnvelope(tx *types.ShieldedTx) *Envelope {
	return &Envelope{Type: types.TxShielded, Shielded: tx, Hash: tx.TxHash()}
}

func NewDepositEnvelope(ev *types.DepositEvent) *Envelope {
	return &Envelope{Type: types.TxDeposit, Deposit: ev, Hash: ev.TxHash()}
}
