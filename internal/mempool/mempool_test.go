package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func makeTransfer(nonce uint64) *types.TransparentTx {
	return &types.TransparentTx{
		From:   types.AccountIdFromBytes([]byte{1}),
		To:     types.AccountIdFromBytes([]byte{2}),
		Amount: 10,
		Nonce:  nonce,
	}
}

func TestAddRejectsWrongChainId(t *testing.T) {
	m := New(Config{MaxSize: 10, ChainId: 7})
	tx := makeTransfer(1)
	tx.ChainId = 8

	err := m.Add(NewTransparentEnvelope(tx))
	require.ErrorIs(t, err, ErrWrongChainId)
}

func TestAddAndSelectPreservesSubmissionOrder(t *testing.T) {
	m := New(DefaultConfig())

	e1 := NewTransparentEnvelope(makeTransfer(1))
	e2 := NewTransparentEnvelope(makeTransfer(2))
	e3 := NewTransparentEnvelope(makeTransfer(3))

	require.NoError(t, m.Add(e1))
	require.NoError(t, m.Add(e2))
	require.NoError(t, m.Add(e3))

	selected := m.Select(10)
	require.Len(t, selected, 3)
	require.Equal(t, e1.Hash, selected[0].Hash)
	require.Equal(t, e2.Hash, selected[1].Hash)
	require.Equal(t, e3.Hash, selected[2].Hash)
}

func TestAddRejectsDuplicate(t *testing.T) {
	m := New(DefaultConfig())
	e := NewTransparentEnvelope(makeTransfer(1))

	require.NoError(t, m.Add(e))
	err := m.Add(e)
	require.ErrorIs(t, err, ErrTxAlreadyExists)
}

func TestAddRejectsWhenFull(t *testing.T) {
	m := New(Config{MaxSize: 1})
	require.NoError(t, m.Add(NewTransparentEnvelope(makeTransfer(1))))

	err := m.Add(NewTransparentEnvelope(makeTransfer(2)))
	require.ErrorIs(t, err, ErrPoolFull)
}

func TestAddRejectsNullifierConflict(t *testing.T) {
	m := New(DefaultConfig())

	shared := types.Nullifier{Value: types.Hash{1}}
	tx1 := &types.ShieldedTx{Nullifiers: []types.Nullifier{shared}, Memo: []byte("a")}
	tx2 := &types.ShieldedTx{Nullifiers: []types.Nullifier{shared}, Memo: []byte("b")}

	e1 := NewShieldedEnvelope(tx1)
	require.NoError(t, m.Add(e1))

	e2 := NewShieldedEnvelope(tx2)
	err := m.Add(e2)
	require.ErrorIs(t, err, ErrNullifierInUse)
}

func TestRemoveIncludedDropsEnvelopes(t *testing.T) {
	m := New(DefaultConfig())
	e1 := NewTransparentEnvelope(makeTransfer(1))
	e2 := NewTransparentEnvelope(makeTransfer(2))
	require.NoError(t, m.Add(e1))
	require.NoError(t, m.Add(e2))

	m.RemoveIncluded([]types.Hash{e1.Hash})

	require.False(t, m.Has(e1.Hash))
	require.True(t, m.Has(e2.Hash))
	require.Equal(t, 1, m.Size())
}
