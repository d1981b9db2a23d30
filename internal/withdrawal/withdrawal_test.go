package withdrawal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue()
	tx := &types.WithdrawalTx{From: types.AccountIdFromBytes([]byte{1}), Amount: 500}

	r := q.Enqueue(tx, 1)
	require.Equal(t, StatusPending, r.Status)

	attested := q.Attest(1)
	require.Equal(t, []types.Hash{r.TxHash}, attested)

	got, ok := q.Get(r.TxHash)
	require.True(t, ok)
	require.Equal(t, StatusAttested, got.Status)

	require.NoError(t, q.MarkClaimed(r.TxHash))
	got, _ = q.Get(r.TxHash)
	require.Equal(t, StatusClaimed, got.Status)
}

func TestQueueRejectsClaimBeforeAttestation(t *testing.T) {
	q := NewQueue()
	tx := &types.WithdrawalTx{From: types.AccountIdFromBytes([]byte{1}), Amount: 100}
	r := q.Enqueue(tx, 1)

	err := q.MarkClaimed(r.TxHash)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestFastServiceRegisterLPRejectsInsufficientCollateral(t *testing.T) {
	s := NewFastService(DefaultFastConfig())
	err := s.RegisterLP([32]byte{1}, [32]byte{2}, 100, nil)
	require.ErrorIs(t, err, ErrInsufficientCollateral)
}

func TestFastServiceQuoteAndExecute(t *testing.T) {
	cfg := DefaultFastConfig()
	s := NewFastService(cfg)

	lp := [32]byte{1}
	collateral := uint64(float64(cfg.MaxAmount) * cfg.CollateralRatio)
	require.NoError(t, s.RegisterLP(lp, [32]byte{2}, collateral, nil))

	quote, ok := s.Quote(100_000_000)
	require.True(t, ok)
	require.Greater(t, quote.Fee, uint64(0))
	require.Equal(t, quote.Amount-quote.Fee, quote.AmountReceived)

	now := time.Unix(1000, 0)
	claim, err := s.ExecuteFastWithdraw(types.Hash{9}, [32]byte{3}, 100_000_000, lp, now)
	require.NoError(t, err)
	require.Equal(t, FastPending, claim.State)

	_, err = s.Claim(claim.ClaimId, now)
	require.ErrorIs(t, err, ErrChallengePeriodActive)

	later := now.Add(cfg.ChallengePeriod + time.Second)
	claimed, err := s.Claim(claim.ClaimId, later)
	require.NoError(t, err)
	require.Equal(t, FastClaimed, claimed.State)
}

func TestFastServiceInvalidateClaim(t *testing.T) {
	cfg := DefaultFastConfig()
	s := NewFastService(cfg)
	lp := [32]byte{1}
	collateral := uint64(float64(cfg.MaxAmount) * cfg.CollateralRatio)
	require.NoError(t, s.RegisterLP(lp, [32]byte{2}, collateral, nil))

	now := time.Unix(2000, 0)
	claim, err := s.ExecuteFastWithdraw(types.Hash{1}, [32]byte{4}, 1000, lp, now)
	require.NoError(t, err)

	require.NoError(t, s.Invalidate(claim.ClaimId))
	_, err = s.Claim(claim.ClaimId, now.Add(cfg.ChallengePeriod*2))
	require.ErrorIs(t, err, ErrClaimAlreadyProcessed)
}
