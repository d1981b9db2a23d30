// Package field implements the MiMC sponge hash over the BN254 scalar
// field that the sequencer's account tree, shielded tree, batch hash,
// and withdrawal root all build on. The round constants and sponge
// construction here are fixed by the proving circuit; a sequencer and
// a prover that disagree on either cannot agree on a root.
package field

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Rounds is the number of MiMC rounds applied per permutation.
const Rounds = 91

// Domain tags separate hash usages that would otherwise collide on
// structurally identical inputs.
type Domain uint64

const (
	DomainAccountLeaf Domain = 1
	DomainPair        Domain = 2
	DomainNullifier   Domain = 3
	DomainBatch       Domain = 4
	DomainWithdrawal  Domain = 5
	DomainNote        Domain = 6
)

var roundConstants [Rounds]fr.Element

func init() {
	for i := 0; i < Rounds; i++ {
		idx := uint64(i + 1)
		var e, cube fr.Element
		e.SetUint64(idx)
		cube.Square(&e)
		cube.Mul(&cube, &e)
		cube.Add(&cube, &e)
		roundConstants[i] = cube
	}
}

// round computes (x + k + c)^7.
func round(x, k, c fr.Element) fr.Element {
	var t, t2, t4, t6, t7 fr.Element
	t.Add(&x, &k)
	t.Add(&t, &c)
	t2.Square(&t)
	t4.Square(&t2)
	t6.Mul(&t4, &t2)
	t7.Mul(&t6, &t)
	return t7
}

// permute is the MiMC permutation: encrypts x under key k.
func permute(x, k fr.Element) fr.Element {
	state := x
	for i := 0; i < Rounds; i++ {
		state = round(state, k, roundConstants[i])
	}
	state.Add(&state, &k)
	return state
}

// spongeAbsorb runs the MiMC sponge over capacity and inputs in order,
// with the zero key at every permutation step (matches the circuit's
// mimc_sponge_absorb).
func spongeAbsorb(capacity fr.Element, inputs ...fr.Element) fr.Element {
	state := capacity
	var zero fr.Element
	for _, in := range inputs {
		var sum fr.Element
		sum.Add(&state, &in)
		state = permute(sum, zero)
	}
	return state
}

func domainElement(d Domain) fr.Element {
	var e fr.Element
	e.SetUint64(uint64(d))
	return e
}

// Hash2 hashes two field elements with the pair domain tag. Order
// matters: Hash2(a, b) != Hash2(b, a) in general.
func Hash2(left, right fr.Element) fr.Element {
	var zero fr.Element
	return spongeAbsorb(zero, domainElement(DomainPair), left, right)
}

// HashN hashes an arbitrary domain tag plus a variadic list of field
// elements, used for the account leaf, batch hash, and withdrawal root
// accumulators.
func HashN(domain Domain, inputs ...fr.Element) fr.Element {
	var zero fr.Element
	args := make([]fr.Element, 0, len(inputs)+1)
	args = append(args, domainElement(domain))
	args = append(args, inputs...)
	return spongeAbsorb(zero, args...)
}

// Elements and byte-boundary conversions. gnark-crypto's fr.Element
// Bytes()/SetBytes() already round-trip big-endian; this wrapper keeps
// that convention explicit rather than assumed at every call site.

// Element is a 32-byte big-endian field-element encoding.
type Element [32]byte

func FromBytes(b [32]byte) fr.Element {
	var e fr.Element
	e.SetBytes(b[:])
	return e
}

func ToBytes(e fr.Element) [32]byte {
	return e.Bytes()
}

func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// Hash2Bytes is the byte-boundary convenience wrapper around Hash2.
func Hash2Bytes(left, right [32]byte) [32]byte {
	l := FromBytes(left)
	r := FromBytes(right)
	return ToBytes(Hash2(l, r))
}

// HashNBytes is the byte-boundary convenience wrapper around HashN,
// used to compute the withdrawal root and batch hash accumulators over
// a batch's raw 32-byte field elements.
func HashNBytes(domain Domain, inputs ...[32]byte) [32]byte {
	elems := make([]fr.Element, len(inputs))
	for i, in := range inputs {
		elems[i] = FromBytes(in)
	}
	return ToBytes(HashN(domain, elems...))
}
