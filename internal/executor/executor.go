// Package executor applies transactions to account state. Execution is
// a pure function of a StateReader and a transaction: it never touches
// the persistent store directly, only the overlay the pipeline hands
// it, so the same logic runs identically in tests and in production.
package executor

import (
	"crypto/ed25519"
	"errors"

	"github.com/zelana-labs/sequencer/pkg/apperror"
	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	ErrInvalidSignature    = errors.New("executor: invalid signature")
	ErrInsufficientBalance = errors.New("executor: insufficient balance")
	ErrInvalidNonce        = errors.New("executor: nonce does not match account state")
	ErrUnknownTxType       = errors.New("executor: unrecognized transaction type")
	ErrWithdrawalOverflow  = errors.New("executor: withdrawal amount exceeds balance")
	ErrCreditOverflow      = errors.New("executor: credit would overflow recipient balance")
)

// maxBalance is the saturation ceiling every account balance is held
// under; a credit that would cross it is refused rather than wrapped.
const maxBalance = ^uint64(0)

// StateReader resolves an account's current state. A miss (account
// never seen) returns the zero AccountState, not an error — new
// accounts are implicit.
type StateReader interface {
	GetAccount(id types.AccountId) (types.AccountState, error)
}

// StateDiff is the set of account states a single transaction's
// execution touched, keyed by account.
type StateDiff struct {
	Updates map[types.AccountId]types.AccountState
}

func newDiff() StateDiff {
	return StateDiff{Updates: make(map[types.AccountId]types.AccountState)}
}

// overlay wraps a StateReader with a local read-your-writes cache so
// that a single transaction touching the same account twice (the
// self-transfer case) sees its own prior update.
type overlay struct {
	reader StateReader
	writes map[types.AccountId]types.AccountState
}

func newOverlay(reader StateReader) *overlay {
	return &overlay{reader: reader, writes: make(map[types.AccountId]types.AccountState)}
}

func (o *overlay) get(id types.AccountId) (types.AccountState, error) {
	if s, ok := o.writes[id]; ok {
		return s, nil
	}
	return o.reader.GetAccount(id)
}

func (o *overlay) set(id types.AccountId, s types.AccountState) {
	o.writes[id] = s
}

// Apply executes tx against the given reader and returns the set of
// account updates it produced. It dispatches on the transaction's
// concrete type; there is no open registration — a new transaction
// class requires a new case here.
func Apply(reader StateReader, tx interface{}) (StateDiff, error) {
	switch t := tx.(type) {
	case *types.TransparentTx:
		return applyTransparent(reader, t)
	case *types.WithdrawalTx:
		return applyWithdrawal(reader, t)
	case *types.DepositEvent:
		return applyDeposit(reader, t)
	case *types.ShieldedTx:
		// Shielded transfers move value inside the note commitment
		// tree; they never touch transparent account balances, so
		// there is no account-state diff to produce.
		return newDiff(), nil
	default:
		return StateDiff{}, apperror.New(apperror.Validation, "executor", ErrUnknownTxType)
	}
}

func verifySignature(pubKey [types.PublicKeySize]byte, signingBytes []byte, sig [types.SignatureSize]byte) bool {
	return ed25519.Verify(pubKey[:], signingBytes, sig[:])
}

func applyTransparent(reader StateReader, tx *types.TransparentTx) (StateDiff, error) {
	if !verifySignature(tx.PublicKey, tx.SigningBytes(), tx.Signature) {
		return StateDiff{}, apperror.New(apperror.Validation, "executor", ErrInvalidSignature)
	}

	o := newOverlay(reader)
	diff := newDiff()

	fromState, err := o.get(tx.From)
	if err != nil {
		return StateDiff{}, err
	}

	if fromState.Nonce != tx.Nonce {
		return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrInvalidNonce)
	}

	if fromState.Balance < tx.Amount {
		return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrInsufficientBalance)
	}

	if tx.From == tx.To {
		// Self-transfer: only the nonce advances, balance is untouched.
		fromState.Nonce++
		o.set(tx.From, fromState)
	} else {
		toState, err := o.get(tx.To)
		if err != nil {
			return StateDiff{}, err
		}
		if toState.Balance > maxBalance-tx.Amount {
			return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrCreditOverflow)
		}

		fromState.Balance -= tx.Amount
		fromState.Nonce++
		toState.Balance += tx.Amount

		o.set(tx.From, fromState)
		o.set(tx.To, toState)
	}

	diff.Updates = o.writes
	return diff, nil
}

func applyWithdrawal(reader StateReader, tx *types.WithdrawalTx) (StateDiff, error) {
	if !verifySignature(tx.PublicKey, tx.SigningBytes(), tx.Signature) {
		return StateDiff{}, apperror.New(apperror.Validation, "executor", ErrInvalidSignature)
	}

	o := newOverlay(reader)

	fromState, err := o.get(tx.From)
	if err != nil {
		return StateDiff{}, err
	}

	if fromState.Nonce != tx.Nonce {
		return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrInvalidNonce)
	}

	if fromState.Balance < tx.Amount {
		return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrWithdrawalOverflow)
	}

	fromState.Balance -= tx.Amount
	fromState.Nonce++
	o.set(tx.From, fromState)

	return StateDiff{Updates: o.writes}, nil
}

func applyDeposit(reader StateReader, ev *types.DepositEvent) (StateDiff, error) {
	o := newOverlay(reader)

	toState, err := o.get(ev.To)
	if err != nil {
		return StateDiff{}, err
	}
	if toState.Balance > maxBalance-ev.Amount {
		return StateDiff{}, apperror.New(apperror.Execution, "executor", ErrCreditOverflow)
	}

	toState.Balance += ev.Amount
	o.set(ev.To, toState)

	return StateDiff{Updates: o.writes}, nil
}
