package types

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by the Decode* functions when a wire
// payload is truncated relative to its declared lengths.
var ErrShortBuffer = errors.New("types: short buffer")

// EncodeTransparentTx serializes a fully-signed TransparentTx for
// datagram transport: the same fixed-width field order SigningBytes
// uses, extended with the memo length prefix and the public
// key/signature the signing bytes omit.
func EncodeTransparentTx(t *TransparentTx) []byte {
	buf := make([]byte, 0, 1+32+32+8+8+8+2+len(t.Memo)+PublicKeySize+SignatureSize)
	buf = append(buf, byte(TxTransfer))
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	buf = appendUint64(buf, t.Amount)
	buf = appendUint64(buf, t.Nonce)
	buf = appendUint64(buf, t.ChainId)
	buf = appendUint16(buf, uint16(len(t.Memo)))
	buf = append(buf, t.Memo...)
	buf = append(buf, t.PublicKey[:]...)
	buf = append(buf, t.Signature[:]...)
	return buf
}

// DecodeTransparentTx parses the wire format EncodeTransparentTx
// produces. It does not verify the signature; that happens in the
// executor.
func DecodeTransparentTx(b []byte) (*TransparentTx, error) {
	r := newReader(b)
	if _, err := r.byte(); err != nil { // tag, already dispatched on by caller
		return nil, err
	}
	t := &TransparentTx{}
	var err error
	if t.From, err = r.accountId(); err != nil {
		return nil, err
	}
	if t.To, err = r.accountId(); err != nil {
		return nil, err
	}
	if t.Amount, err = r.uint64(); err != nil {
		return nil, err
	}
	if t.Nonce, err = r.uint64(); err != nil {
		return nil, err
	}
	if t.ChainId, err = r.uint64(); err != nil {
		return nil, err
	}
	if t.Memo, err = r.lenPrefixed16(); err != nil {
		return nil, err
	}
	if t.PublicKey, err = r.publicKey(); err != nil {
		return nil, err
	}
	if t.Signature, err = r.signature(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeWithdrawalTx serializes a fully-signed WithdrawalTx.
func EncodeWithdrawalTx(w *WithdrawalTx) []byte {
	buf := make([]byte, 0, 1+32+32+8+8+PublicKeySize+SignatureSize)
	buf = append(buf, byte(TxWithdraw))
	buf = append(buf, w.From[:]...)
	buf = append(buf, w.L1Recipient[:]...)
	buf = appendUint64(buf, w.Amount)
	buf = appendUint64(buf, w.Nonce)
	buf = append(buf, w.PublicKey[:]...)
	buf = append(buf, w.Signature[:]...)
	return buf
}

// DecodeWithdrawalTx parses the wire format EncodeWithdrawalTx produces.
func DecodeWithdrawalTx(b []byte) (*WithdrawalTx, error) {
	r := newReader(b)
	if _, err := r.byte(); err != nil {
		return nil, err
	}
	w := &WithdrawalTx{}
	var err error
	if w.From, err = r.accountId(); err != nil {
		return nil, err
	}
	if w.L1Recipient, err = r.hash32(); err != nil {
		return nil, err
	}
	if w.Amount, err = r.uint64(); err != nil {
		return nil, err
	}
	if w.Nonce, err = r.uint64(); err != nil {
		return nil, err
	}
	if w.PublicKey, err = r.publicKey(); err != nil {
		return nil, err
	}
	if w.Signature, err = r.signature(); err != nil {
		return nil, err
	}
	return w, nil
}

// EncodeShieldedTx serializes a ShieldedTx, including its proof bytes.
func EncodeShieldedTx(s *ShieldedTx) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, byte(TxShielded))
	buf = appendUint16(buf, uint16(len(s.Nullifiers)))
	for _, n := range s.Nullifiers {
		buf = append(buf, n.Value[:]...)
	}
	buf = appendUint16(buf, uint16(len(s.Commitments)))
	for _, c := range s.Commitments {
		buf = append(buf, c.Value[:]...)
	}
	buf = append(buf, s.Anchor[:]...)
	buf = appendUint16(buf, uint16(len(s.Memo)))
	buf = append(buf, s.Memo...)
	buf = appendUint32(buf, uint32(len(s.Proof.ProofData)))
	buf = append(buf, s.Proof.ProofData...)
	buf = appendUint16(buf, uint16(len(s.Proof.PublicInputs)))
	for _, pi := range s.Proof.PublicInputs {
		buf = append(buf, pi[:]...)
	}
	return buf
}

// DecodeShieldedTx parses the wire format EncodeShieldedTx produces.
func DecodeShieldedTx(b []byte) (*ShieldedTx, error) {
	r := newReader(b)
	if _, err := r.byte(); err != nil {
		return nil, err
	}
	s := &ShieldedTx{}

	nCount, err := r.uint16()
	if err != nil {
		return nil, err
	}
	s.Nullifiers = make([]Nullifier, nCount)
	for i := range s.Nullifiers {
		h, err := r.hash32()
		if err != nil {
			return nil, err
		}
		s.Nullifiers[i] = Nullifier{Value: Hash(h)}
	}

	cCount, err := r.uint16()
	if err != nil {
		return nil, err
	}
	s.Commitments = make([]Commitment, cCount)
	for i := range s.Commitments {
		h, err := r.hash32()
		if err != nil {
			return nil, err
		}
		s.Commitments[i] = Commitment{Value: Hash(h)}
	}

	anchor, err := r.hash32()
	if err != nil {
		return nil, err
	}
	s.Anchor = Hash(anchor)

	if s.Memo, err = r.lenPrefixed16(); err != nil {
		return nil, err
	}

	proofLen, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if s.Proof.ProofData, err = r.bytes(int(proofLen)); err != nil {
		return nil, err
	}

	piCount, err := r.uint16()
	if err != nil {
		return nil, err
	}
	s.Proof.PublicInputs = make([][32]byte, piCount)
	for i := range s.Proof.PublicInputs {
		h, err := r.hash32()
		if err != nil {
			return nil, err
		}
		s.Proof.PublicInputs[i] = h
	}

	return s, nil
}

// PeekTxType reads the leading type tag without consuming the buffer.
func PeekTxType(b []byte) (TxType, error) {
	if len(b) < 1 {
		return 0, ErrShortBuffer
	}
	return TxType(b[0]), nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// reader is a small cursor over a byte slice used only by this file's
// Decode* functions; it never holds onto the backing array past the
// parse call that allocated it.
type reader struct {
	b   []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{b: b}
}

func (r *reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, ErrShortBuffer
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) accountId() (AccountId, error) {
	b, err := r.take(AccountIdSize)
	if err != nil {
		return AccountId{}, err
	}
	var a AccountId
	copy(a[:], b)
	return a, nil
}

func (r *reader) hash32() ([32]byte, error) {
	b, err := r.take(32)
	if err != nil {
		return [32]byte{}, err
	}
	var h [32]byte
	copy(h[:], b)
	return h, nil
}

func (r *reader) publicKey() ([PublicKeySize]byte, error) {
	b, err := r.take(PublicKeySize)
	if err != nil {
		return [PublicKeySize]byte{}, err
	}
	var pk [PublicKeySize]byte
	copy(pk[:], b)
	return pk, nil
}

func (r *reader) signature() ([SignatureSize]byte, error) {
	b, err := r.take(SignatureSize)
	if err != nil {
		return [SignatureSize]byte{}, err
	}
	var sig [SignatureSize]byte
	copy(sig[:], b)
	return sig, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *reader) lenPrefixed16() ([]byte, error) {
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}
