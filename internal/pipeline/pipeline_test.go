package pipeline

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/internal/l1"
	"github.com/zelana-labs/sequencer/internal/mempool"
	"github.com/zelana-labs/sequencer/internal/prover"
	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/pkg/types"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	cfg.MaxBatchAge = time.Hour // tests seal explicitly unless testing the age trigger

	p, err := Open(cfg, st, nil, l1.NewMockL1Client(), nil, nil)
	require.NoError(t, err)
	return p
}

func signedTransfer(t *testing.T, priv ed25519.PrivateKey, from, to types.AccountId, amount, nonce uint64) *types.TransparentTx {
	t.Helper()
	tx := &types.TransparentTx{From: from, To: to, Amount: amount, Nonce: nonce}
	copy(tx.PublicKey[:], priv.Public().(ed25519.PublicKey))
	sig := ed25519.Sign(priv, tx.SigningBytes())
	copy(tx.Signature[:], sig)
	return tx
}

func TestDepositThenSendSealsExpectedBalances(t *testing.T) {
	p := newTestPipeline(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := types.AccountIdFromBytes(pub)
	b := types.AccountIdFromBytes([]byte{2, 2, 2, 2})

	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: a, Amount: 1000, L1Seq: 1}))

	header, err := p.Seal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, header)

	transfer := signedTransfer(t, priv, a, b, 300, 0)
	require.NoError(t, p.Submit(mempool.NewTransparentEnvelope(transfer)))

	header, err = p.Seal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, header)
	require.EqualValues(t, 1, header.TransferCount)

	aState, _, err := p.store.GetAccount(a)
	require.NoError(t, err)
	require.EqualValues(t, 700, aState.Balance)
	require.EqualValues(t, 1, aState.Nonce)

	bState, _, err := p.store.GetAccount(b)
	require.NoError(t, err)
	require.EqualValues(t, 300, bState.Balance)
}

func TestDuplicatePendingDepositIsRejectedByMempool(t *testing.T) {
	// The pipeline itself has no l1_seq dedup — that's internal/deposit's
	// job. But DepositEvent.TxHash is derived from (To, Amount, L1Seq), so
	// an identical DepositEvent submitted while the first is still pending
	// hits the mempool's duplicate-hash check and is rejected, and the
	// account is credited once.
	p := newTestPipeline(t)
	a := types.AccountIdFromBytes([]byte{1})

	ev := types.DepositEvent{To: a, Amount: 1000, L1Seq: 1}
	require.NoError(t, p.SubmitDeposit(context.Background(), ev))
	err := p.SubmitDeposit(context.Background(), ev)
	require.Error(t, err) // duplicate mempool hash: ErrTxAlreadyExists

	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	aState, _, err := p.store.GetAccount(a)
	require.NoError(t, err)
	require.EqualValues(t, 1000, aState.Balance)
}

func TestInsufficientFundsRejectsTransferStateUnchanged(t *testing.T) {
	p := newTestPipeline(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := types.AccountIdFromBytes(pub)
	b := types.AccountIdFromBytes([]byte{9})

	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: a, Amount: 50, L1Seq: 1}))
	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	transfer := signedTransfer(t, priv, a, b, 100, 0)
	require.NoError(t, p.Submit(mempool.NewTransparentEnvelope(transfer)))

	header, err := p.Seal(context.Background())
	require.NoError(t, err)
	require.Nil(t, header) // the only candidate was rejected, nothing sealed

	aState, _, err := p.store.GetAccount(a)
	require.NoError(t, err)
	require.EqualValues(t, 50, aState.Balance)
	require.EqualValues(t, 0, aState.Nonce)
}

func TestSelfTransferOnlyAdvancesNonce(t *testing.T) {
	p := newTestPipeline(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := types.AccountIdFromBytes(pub)

	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: a, Amount: 500, L1Seq: 1}))
	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	transfer := signedTransfer(t, priv, a, a, 200, 0)
	require.NoError(t, p.Submit(mempool.NewTransparentEnvelope(transfer)))
	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	aState, _, err := p.store.GetAccount(a)
	require.NoError(t, err)
	require.EqualValues(t, 500, aState.Balance)
	require.EqualValues(t, 1, aState.Nonce)
}

func TestBatchStaysOpenBelowMinTransactions(t *testing.T) {
	p := newTestPipeline(t)
	p.cfg.MinTransactions = 5

	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: types.AccountIdFromBytes([]byte{1}), Amount: 10, L1Seq: 1}))
	require.False(t, p.shouldSeal(time.Now().Add(-time.Hour), false))
}

func TestWithdrawalSealCreatesPendingRecord(t *testing.T) {
	p := newTestPipeline(t)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := types.AccountIdFromBytes(pub)

	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: a, Amount: 1000, L1Seq: 1}))
	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	w := &types.WithdrawalTx{From: a, L1Recipient: [32]byte{7}, Amount: 200, Nonce: 0}
	copy(w.PublicKey[:], priv.Public().(ed25519.PublicKey))
	sig := ed25519.Sign(priv, w.SigningBytes())
	copy(w.Signature[:], sig)

	require.NoError(t, p.Submit(mempool.NewWithdrawalEnvelope(w)))
	header, err := p.Seal(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, header.WithdrawalCount)

	rec, ok := p.withdrawals.Get(w.TxHash())
	require.True(t, ok)
	require.Equal(t, uint64(200), rec.Amount)
}

func TestProverEventsDrivesL1SubmissionAndAttestation(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer st.Close()

	mockProver, err := prover.NewMockProver()
	require.NoError(t, err)
	mockL1 := l1.NewMockL1Client()

	cfg := DefaultConfig()
	cfg.MaxBatchAge = time.Hour
	p, err := Open(cfg, st, mockProver, mockL1, nil, nil)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a := types.AccountIdFromBytes(pub)
	require.NoError(t, p.SubmitDeposit(context.Background(), types.DepositEvent{To: a, Amount: 1000, L1Seq: 1}))
	_, err = p.Seal(context.Background())
	require.NoError(t, err)

	w := &types.WithdrawalTx{From: a, L1Recipient: [32]byte{3}, Amount: 150, Nonce: 0}
	copy(w.PublicKey[:], priv.Public().(ed25519.PublicKey))
	sig := ed25519.Sign(priv, w.SigningBytes())
	copy(w.Signature[:], sig)
	require.NoError(t, p.Submit(mempool.NewWithdrawalEnvelope(w)))

	header, err := p.Seal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, header)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go p.RunProverEvents(ctx)

	require.Eventually(t, func() bool {
		_, ok := mockL1.SubmittedBatch(header.BatchId)
		return ok
	}, 4*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return mockL1.IsWithdrawalRelayed(w.TxHash())
	}, 4*time.Second, 20*time.Millisecond)
}

