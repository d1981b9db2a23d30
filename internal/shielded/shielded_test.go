package shielded

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func TestTreeInsertIncrementsPosition(t *testing.T) {
	tree := NewTree(100)

	c1 := types.Hash{1}
	c2 := types.Hash{2}

	pos1, _, err := tree.Insert(c1)
	require.NoError(t, err)
	pos2, _, err := tree.Insert(c2)
	require.NoError(t, err)

	require.Equal(t, uint64(0), pos1)
	require.Equal(t, uint64(1), pos2)
	require.Equal(t, uint64(2), tree.NextPosition())
}

func TestRootHistoryAcceptsRecentRoots(t *testing.T) {
	tree := NewTree(100)
	root0 := tree.Root()

	_, root1, err := tree.Insert(types.Hash{1})
	require.NoError(t, err)

	require.True(t, tree.IsValidAnchor(root0))
	require.True(t, tree.IsValidAnchor(root1))
	require.False(t, tree.IsValidAnchor(types.Hash{99}))
}

func TestRootHistoryEvictsBeyondCapacity(t *testing.T) {
	tree := NewTree(2)
	root0 := tree.Root()

	_, _, err := tree.Insert(types.Hash{1})
	require.NoError(t, err)
	_, _, err = tree.Insert(types.Hash{2})
	require.NoError(t, err)

	// root0 should have been evicted: ring capacity 2 now holds the two
	// post-insert roots only.
	require.False(t, tree.IsValidAnchor(root0))
}

func TestNullifierDoubleSpendRejected(t *testing.T) {
	set := NewNullifierSet()
	n := types.Hash{42}

	require.NoError(t, set.MarkSpent(n, 1, types.Hash{}))
	require.ErrorIs(t, set.MarkSpent(n, 2, types.Hash{}), ErrNullifierSpent)
}

func TestPoolApplyRejectsStaleAnchor(t *testing.T) {
	pool := NewPool(100)

	tx := &types.ShieldedTx{
		Anchor: types.Hash{0xde, 0xad},
	}

	_, err := pool.Apply(tx, 1, types.Hash{})
	require.ErrorIs(t, err, ErrAnchorNotRecent)
}

func TestPoolApplySpendsNullifiersAndAppendsCommitments(t *testing.T) {
	pool := NewPool(100)
	anchor := pool.CurrentAnchor()

	tx := &types.ShieldedTx{
		Anchor:      anchor,
		Nullifiers:  []types.Nullifier{{Value: types.Hash{7}}},
		Commitments: []types.Commitment{{Value: types.Hash{8}}},
	}

	positions, err := pool.Apply(tx, 1, types.Hash{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, positions)
	require.True(t, pool.Nullifiers.IsSpent(types.Hash{7}))
}

func TestPoolApplyRejectsReplayedNullifier(t *testing.T) {
	pool := NewPool(100)
	anchor := pool.CurrentAnchor()

	tx := &types.ShieldedTx{
		Anchor:     anchor,
		Nullifiers: []types.Nullifier{{Value: types.Hash{7}}},
	}

	_, err := pool.Apply(tx, 1, types.Hash{})
	require.NoError(t, err)

	tx2 := &types.ShieldedTx{
		Anchor:     pool.CurrentAnchor(),
		Nullifiers: []types.Nullifier{{Value: types.Hash{7}}},
	}
	_, err = pool.Apply(tx2, 2, types.Hash{})
	require.ErrorIs(t, err, ErrNullifierSpent)
}

func TestDeriveNullifierDeterministic(t *testing.T) {
	sk := types.Hash{1}
	c := types.Hash{2}

	n1 := DeriveNullifier(sk, c, 5)
	n2 := DeriveNullifier(sk, c, 5)
	require.Equal(t, n1, n2)

	n3 := DeriveNullifier(sk, c, 6)
	require.NotEqual(t, n1, n3)
}
