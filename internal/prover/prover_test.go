package prover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func TestPublicInputsEncodeWitnessLayout(t *testing.T) {
	inputs := PublicInputs{
		PreAccountRoot:  types.Hash{1},
		PostAccountRoot: types.Hash{2},
		BatchId:         42,
	}
	buf := inputs.EncodeWitness()
	require.Len(t, buf, PublicWitnessSize)
	require.Equal(t, []byte{0, 0, 0, 7}, buf[:4])
	require.Equal(t, make([]byte, 8), buf[4:12])
}

func TestFromHeaderOrdersElements(t *testing.T) {
	h := &types.BatchHeader{
		BatchId:          7,
		PrevAccountRoot:  types.Hash{1},
		PostAccountRoot:  types.Hash{2},
		PrevShieldedRoot: types.Hash{3},
		PostShieldedRoot: types.Hash{4},
		WithdrawalRoot:   types.Hash{5},
		BatchHash:        types.Hash{6},
	}
	inputs := FromHeader(h)
	elems := inputs.Elements()
	require.Equal(t, types.Hash{1}, elems[0])
	require.Equal(t, types.Hash{2}, elems[1])
	require.Equal(t, types.Hash{3}, elems[2])
	require.Equal(t, types.Hash{4}, elems[3])
	require.Equal(t, types.Hash{5}, elems[4])
	require.Equal(t, types.Hash{6}, elems[5])
}

type stubTransport struct {
	resp ProveResponse
	err  error
}

func (s *stubTransport) SubmitJob(ctx context.Context, req ProveRequest) (ProveResponse, error) {
	return s.resp, s.err
}

func TestRemoteProverEmitsCompletedEvent(t *testing.T) {
	transport := &stubTransport{resp: ProveResponse{Proof: make([]byte, ProofSize)}}
	p := NewRemoteProver(transport)

	jobID, err := p.Prove(context.Background(), PublicInputs{BatchId: 1})
	require.NoError(t, err)

	var completed Event
	deadline := time.After(2 * time.Second)
	for completed.Status != StatusCompleted {
		select {
		case ev := <-p.Events():
			if ev.JobID == jobID && (ev.Status == StatusCompleted || ev.Status == StatusFailed) {
				completed = ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for prover event")
		}
	}

	require.Equal(t, StatusCompleted, completed.Status)
	require.Len(t, completed.Result.Proof, ProofSize)
}
