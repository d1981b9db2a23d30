package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// Signed is implemented by every transaction class that can be hashed
// and admitted to the mempool.
type Signed interface {
	SigningBytes() []byte
}

// ComputeTxHash derives a transaction's identity hash from its signing
// bytes and signature: two transactions with identical contents but
// different signatures are distinct entries (relevant for replay of a
// previously-seen but unsigned-identical transfer).
func ComputeTxHash(signingBytes []byte, signature []byte) Hash {
	h := sha256.New()
	h.Write(signingBytes)
	h.Write(signature)
	return HashFromBytes(h.Sum(nil))
}

// AccountState is the transparent per-account state held in the account
// sparse Merkle tree: a balance and a strictly increasing nonce.
type AccountState struct {
	Balance uint64
	Nonce   uint64
}

// TxType is the closed set of transaction classes the executor dispatches
// on. There is no open registration mechanism: new classes require a new
// case in the executor's type switch.
type TxType uint8

const (
	TxTransfer TxType = iota + 1
	TxWithdraw
	TxDeposit
	TxShielded
)

// TransparentTx moves value between two transparent accounts, or is the
// transparent leg of a shielded unshield. Signed by the sender's Ed25519 key.
type TransparentTx struct {
	From      AccountId
	To        AccountId
	Amount    uint64
	Nonce     uint64
	ChainId   uint64
	Memo      []byte
	PublicKey [PublicKeySize]byte
	Signature [SignatureSize]byte
}

// SigningBytes returns the canonical fixed-width big-endian encoding of
// the fields covered by the sender's signature. Signature and hash are
// never themselves included.
func (t *TransparentTx) SigningBytes() []byte {
	buf := make([]byte, 0, 32+32+8+8+8+len(t.Memo))
	buf = append(buf, byte(TxTransfer))
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	buf = appendUint64(buf, t.Amount)
	buf = appendUint64(buf, t.Nonce)
	buf = appendUint64(buf, t.ChainId)
	buf = append(buf, t.Memo...)
	return buf
}

// TxHash returns the transaction's identity hash.
func (t *TransparentTx) TxHash() Hash {
	return ComputeTxHash(t.SigningBytes(), t.Signature[:])
}

// WithdrawalTx burns L2 balance and requests an L1 payout to l1Recipient.
type WithdrawalTx struct {
	From        AccountId
	L1Recipient [32]byte
	Amount      uint64
	Nonce       uint64
	PublicKey   [PublicKeySize]byte
	Signature   [SignatureSize]byte
}

func (w *WithdrawalTx) SigningBytes() []byte {
	buf := make([]byte, 0, 32+32+8+8)
	buf = append(buf, byte(TxWithdraw))
	buf = append(buf, w.From[:]...)
	buf = append(buf, w.L1Recipient[:]...)
	buf = appendUint64(buf, w.Amount)
	buf = appendUint64(buf, w.Nonce)
	return buf
}

// TxHash returns the transaction's identity hash.
func (w *WithdrawalTx) TxHash() Hash {
	return ComputeTxHash(w.SigningBytes(), w.Signature[:])
}

// DepositEvent is the L2-side representation of an L1 bridge deposit log,
// keyed for exactly-once processing by L1Seq.
type DepositEvent struct {
	To     AccountId
	Amount uint64
	L1Seq  uint64
}

// TxHash returns the deposit's identity hash, derived from its L1
// sequence number so that two observations of the same L1 deposit
// collapse to the same mempool entry.
func (d *DepositEvent) TxHash() Hash {
	buf := make([]byte, 0, 32+8+8)
	buf = append(buf, byte(TxDeposit))
	buf = append(buf, d.To[:]...)
	buf = appendUint64(buf, d.Amount)
	buf = appendUint64(buf, d.L1Seq)
	return ComputeTxHash(buf, nil)
}

// Commitment is a note commitment inserted into the shielded tree.
type Commitment struct {
	Value Hash
}

// Nullifier uniquely marks a spent shielded note without revealing which
// one; membership in the nullifier set is checked, never order.
type Nullifier struct {
	Value Hash
}

// ZKProof carries an opaque Groth16 proof and the public inputs it was
// generated against. The sequencer does not itself verify ProofData; see
// internal/shielded's VerifyProof hook.
type ZKProof struct {
	ProofData    []byte
	PublicInputs [][32]byte
}

// ShieldedTx spends zero or more shielded notes (via Nullifiers) and
// creates zero or more new ones (via Commitments), balanced under a
// value-commitment proof rather than plaintext amounts.
type ShieldedTx struct {
	Nullifiers  []Nullifier
	Commitments []Commitment
	Proof       ZKProof
	Anchor      Hash // shielded root this proof was built against
	Memo        []byte
}

func (s *ShieldedTx) SigningBytes() []byte {
	buf := make([]byte, 0, 64*(len(s.Nullifiers)+len(s.Commitments))+32+len(s.Memo))
	buf = append(buf, byte(TxShielded))
	for _, n := range s.Nullifiers {
		buf = append(buf, n.Value[:]...)
	}
	for _, c := range s.Commitments {
		buf = append(buf, c.Value[:]...)
	}
	buf = append(buf, s.Anchor[:]...)
	buf = append(buf, s.Memo...)
	return buf
}

// TxHash returns the transaction's identity hash. A shielded tx has no
// Ed25519 signature; its proof plays the equivalent role of binding the
// hash to a specific witness.
func (s *ShieldedTx) TxHash() Hash {
	return ComputeTxHash(s.SigningBytes(), s.Proof.ProofData)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
