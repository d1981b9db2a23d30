package field

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func TestRoundConstants(t *testing.T) {
	// RC[0]: idx=1 -> 1^3 + 1 = 2
	var want0 fr.Element
	want0.SetUint64(2)
	require.True(t, roundConstants[0].Equal(&want0))

	// RC[1]: idx=2 -> 2^3 + 2 = 10
	var want1 fr.Element
	want1.SetUint64(10)
	require.True(t, roundConstants[1].Equal(&want1))
}

func TestHash2Deterministic(t *testing.T) {
	a := FromUint64(123)
	b := FromUint64(456)

	h1 := Hash2(a, b)
	h2 := Hash2(a, b)
	require.True(t, h1.Equal(&h2))
}

func TestHash2OrderMatters(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)

	h1 := Hash2(a, b)
	h2 := Hash2(b, a)
	require.False(t, h1.Equal(&h2))
}

func TestHashNAccountLeafDeterministic(t *testing.T) {
	pubkey := FromUint64(12345)
	balance := FromUint64(1000)
	nonce := FromUint64(5)

	leaf1 := HashN(DomainAccountLeaf, pubkey, balance, nonce)
	leaf2 := HashN(DomainAccountLeaf, pubkey, balance, nonce)
	require.True(t, leaf1.Equal(&leaf2))

	balance2 := FromUint64(1001)
	leaf3 := HashN(DomainAccountLeaf, pubkey, balance2, nonce)
	require.False(t, leaf1.Equal(&leaf3))
}

func TestHash2BytesDeterministic(t *testing.T) {
	var left, right [32]byte
	for i := range left {
		left[i] = 0xab
		right[i] = 0xcd
	}

	h1 := Hash2Bytes(left, right)
	h2 := Hash2Bytes(left, right)
	require.Equal(t, h1, h2)
	require.NotEqual(t, [32]byte{}, h1)
}
