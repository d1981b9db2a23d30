package l1

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/internal/deposit"
	"github.com/zelana-labs/sequencer/pkg/types"
)

func TestMockL1ClientSubmitBatchIsIdempotent(t *testing.T) {
	m := NewMockL1Client()
	h := &types.BatchHeader{BatchId: 5}

	require.NoError(t, m.SubmitBatch(context.Background(), h, []byte("proof"), []byte("witness")))
	require.NoError(t, m.SubmitBatch(context.Background(), h, []byte("proof"), []byte("witness")))

	got, ok := m.SubmittedBatch(5)
	require.True(t, ok)
	require.Equal(t, h, got)
}

func TestMockL1ClientWithdrawAttestedIsIdempotent(t *testing.T) {
	m := NewMockL1Client()
	txHash := types.Hash{9}

	require.NoError(t, m.WithdrawAttested(context.Background(), txHash, [32]byte{1}, 100))
	require.NoError(t, m.WithdrawAttested(context.Background(), txHash, [32]byte{1}, 100))
	require.True(t, m.IsWithdrawalRelayed(txHash))
}

func TestFormatDepositLogRoundTripsThroughIndexerParser(t *testing.T) {
	pubkey := make([]byte, 32)
	pubkey[0] = 7

	line := FormatDepositLog(pubkey, 1000, 3)
	ev, ok := deposit.ParseLogLine(line)
	require.True(t, ok)
	require.Equal(t, uint64(1000), ev.Amount)
	require.Equal(t, types.AccountIdFromBytes(pubkey), ev.To)
}
