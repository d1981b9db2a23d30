package smt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	store := NewInMemoryStore()
	tree, err := New(store)
	require.NoError(t, err)
	return tree
}

func TestEmptyTreeRootIsDeterministic(t *testing.T) {
	tree1 := newTestTree(t)
	tree2 := newTestTree(t)

	root1, err := tree1.Root()
	require.NoError(t, err)
	root2, err := tree2.Root()
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}

func TestInsertAndVerifyPath(t *testing.T) {
	tree := newTestTree(t)

	id := types.AccountIdFromBytes([]byte{1, 2, 3, 4})
	state := types.AccountState{Balance: 1000, Nonce: 0}

	root, err := tree.InsertOrUpdate(id, state)
	require.NoError(t, err)

	leaf, ok, err := tree.Leaf(id)
	require.NoError(t, err)
	require.True(t, ok)

	path, err := tree.PathFor(id)
	require.NoError(t, err)
	require.True(t, path.Verify(leaf, root))
}

func TestRootChangesOnUpdate(t *testing.T) {
	tree := newTestTree(t)
	root0, err := tree.Root()
	require.NoError(t, err)

	id := types.AccountIdFromBytes([]byte{9, 9, 9, 9})

	root1, err := tree.InsertOrUpdate(id, types.AccountState{Balance: 1000, Nonce: 0})
	require.NoError(t, err)
	require.NotEqual(t, root0, root1)

	root2, err := tree.InsertOrUpdate(id, types.AccountState{Balance: 2000, Nonce: 1})
	require.NoError(t, err)
	require.NotEqual(t, root1, root2)
}

func TestMultipleAccountsEachVerify(t *testing.T) {
	tree := newTestTree(t)

	ids := []types.AccountId{
		types.AccountIdFromBytes([]byte{0, 0, 0, 1}),
		types.AccountIdFromBytes([]byte{0, 0, 0, 2}),
		types.AccountIdFromBytes([]byte{0, 0, 0, 3}),
	}

	var root types.Hash
	var err error
	for i, id := range ids {
		root, err = tree.InsertOrUpdate(id, types.AccountState{Balance: uint64(1000 * (i + 1)), Nonce: 0})
		require.NoError(t, err)
	}

	for _, id := range ids {
		leaf, ok, err := tree.Leaf(id)
		require.NoError(t, err)
		require.True(t, ok)

		path, err := tree.PathFor(id)
		require.NoError(t, err)
		require.True(t, path.Verify(leaf, root))
	}
}

func TestComputeLeafDeterministic(t *testing.T) {
	id := types.AccountIdFromBytes([]byte{42})
	state := types.AccountState{Balance: 5000, Nonce: 3}

	leaf1 := ComputeLeaf(id, state)
	leaf2 := ComputeLeaf(id, state)
	require.Equal(t, leaf1, leaf2)

	leaf3 := ComputeLeaf(id, types.AccountState{Balance: 5001, Nonce: 3})
	require.NotEqual(t, leaf1, leaf3)
}
