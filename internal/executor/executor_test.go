package executor

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

type fakeReader map[types.AccountId]types.AccountState

func (f fakeReader) GetAccount(id types.AccountId) (types.AccountState, error) {
	return f[id], nil
}

func signedTransfer(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, from, to types.AccountId, amount, nonce uint64) *types.TransparentTx {
	t.Helper()
	tx := &types.TransparentTx{From: from, To: to, Amount: amount, Nonce: nonce}
	copy(tx.PublicKey[:], pub)
	sig := ed25519.Sign(priv, tx.SigningBytes())
	copy(tx.Signature[:], sig)
	return tx
}

func TestApplyTransparentTransfersBalance(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	to := types.AccountIdFromBytes([]byte{9, 9})

	reader := fakeReader{from: {Balance: 1000, Nonce: 0}}
	tx := signedTransfer(t, pub, priv, from, to, 100, 0)

	diff, err := Apply(reader, tx)
	require.NoError(t, err)
	require.Equal(t, uint64(900), diff.Updates[from].Balance)
	require.Equal(t, uint64(1), diff.Updates[from].Nonce)
	require.Equal(t, uint64(100), diff.Updates[to].Balance)
}

func TestApplyTransparentRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	reader := fakeReader{from: {Balance: 1000}}
	tx := signedTransfer(t, pub, otherPriv, from, types.AccountIdFromBytes([]byte{1}), 10, 0)

	_, err = Apply(reader, tx)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestApplyTransparentRejectsInsufficientBalance(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	reader := fakeReader{from: {Balance: 5}}
	tx := signedTransfer(t, pub, priv, from, types.AccountIdFromBytes([]byte{1}), 100, 0)

	_, err = Apply(reader, tx)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestApplyTransparentRejectsWrongNonce(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	reader := fakeReader{from: {Balance: 1000, Nonce: 5}}
	tx := signedTransfer(t, pub, priv, from, types.AccountIdFromBytes([]byte{1}), 10, 0)

	_, err = Apply(reader, tx)
	require.ErrorIs(t, err, ErrInvalidNonce)
}

func TestApplySelfTransferOnlyAdvancesNonce(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	reader := fakeReader{from: {Balance: 1000, Nonce: 2}}
	tx := signedTransfer(t, pub, priv, from, from, 50, 2)

	diff, err := Apply(reader, tx)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), diff.Updates[from].Balance)
	require.Equal(t, uint64(3), diff.Updates[from].Nonce)
}

func TestApplyTransparentRejectsCreditOverflow(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	from := types.AccountIdFromBytes(pub)
	to := types.AccountIdFromBytes([]byte{1})
	reader := fakeReader{
		from: {Balance: 100, Nonce: 0},
		to:   {Balance: ^uint64(0), Nonce: 0},
	}
	tx := signedTransfer(t, pub, priv, from, to, 1, 0)

	_, err = Apply(reader, tx)
	require.ErrorIs(t, err, ErrCreditOverflow)
}

func TestApplyDepositCreditsBalance(t *testing.T) {
	to := types.AccountIdFromBytes([]byte{4})
	reader := fakeReader{}
	ev := &types.DepositEvent{To: to, Amount: 500, L1Seq: 1}

	diff, err := Apply(reader, ev)
	require.NoError(t, err)
	require.Equal(t, uint64(500), diff.Updates[to].Balance)
}

func TestApplyDepositRejectsCreditOverflow(t *testing.T) {
	to := types.AccountIdFromBytes([]byte{4})
	reader := fakeReader{to: {Balance: ^uint64(0)}}
	ev := &types.DepositEvent{To: to, Amount: 1, L1Seq: 1}

	_, err := Apply(reader, ev)
	require.ErrorIs(t, err, ErrCreditOverflow)
}

func TestApplyShieldedProducesEmptyDiff(t *testing.T) {
	reader := fakeReader{}
	tx := &types.ShieldedTx{}

	diff, err := Apply(reader, tx)
	require.NoError(t, err)
	require.Empty(t, diff.Updates)
}
