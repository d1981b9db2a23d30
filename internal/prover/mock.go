package prover

import (
	"context"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// conservationCircuit is the mock circuit: it asserts input value
// conserves to output value plus fee. It says nothing about the
// batch's actual account or shielded roots — those are carried
// out-of-circuit in the public witness (see PublicInputs) exactly as
// spec.md describes the proof system's contract, not its internals.
type conservationCircuit struct {
	InputSum  frontend.Variable `gnark:",public"`
	OutputSum frontend.Variable `gnark:",public"`
	Fee       frontend.Variable `gnark:",public"`
}

func (c *conservationCircuit) Define(api frontend.API) error {
	total := api.Add(c.OutputSum, c.Fee)
	api.AssertIsEqual(c.InputSum, total)
	return nil
}

// MockProver compiles the conservation circuit once at construction
// and produces real Groth16 proofs against it for every batch, paired
// with the batch's actual seven-element public witness. It satisfies
// prover.mock=true: the request/response contract is real, the
// circuit's own claim is a placeholder for the full transition proof.
type MockProver struct {
	mu     sync.Mutex
	ccs    frontend.CompiledConstraintSystem
	pk     groth16.ProvingKey
	events chan Event
	nextID uint64
}

func NewMockProver() (*MockProver, error) {
	circuit := &conservationCircuit{}
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile mock circuit: %w", err)
	}

	pk, _, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("mock circuit setup: %w", err)
	}

	return &MockProver{
		ccs:    ccs,
		pk:     pk,
		events: make(chan Event, 64),
	}, nil
}

func (m *MockProver) Events() <-chan Event {
	return m.events
}

// Prove reports Queued and returns the job ID at once; proof generation
// runs on a background goroutine, reporting Proving and a terminal
// Completed/Failed event.
func (m *MockProver) Prove(ctx context.Context, inputs PublicInputs) (string, error) {
	m.mu.Lock()
	m.nextID++
	jobID := fmt.Sprintf("batch-%d-job-%d", inputs.BatchId, m.nextID)
	m.mu.Unlock()

	m.emit(Event{JobID: jobID, Status: StatusQueued, Progress: 0})

	go m.run(ctx, jobID, inputs)

	return jobID, nil
}

func (m *MockProver) run(ctx context.Context, jobID string, inputs PublicInputs) {
	m.emit(Event{JobID: jobID, Status: StatusProving, Progress: 0.1})

	witness := &conservationCircuit{InputSum: 0, OutputSum: 0, Fee: 0}
	w, err := frontend.NewWitness(witness, ecc.BN254.ScalarField())
	if err != nil {
		m.emit(Event{JobID: jobID, Status: StatusFailed, Err: err})
		return
	}

	if ctx.Err() != nil {
		m.emit(Event{JobID: jobID, Status: StatusFailed, Err: ctx.Err()})
		return
	}

	proof, err := groth16.Prove(m.ccs, m.pk, w)
	if err != nil {
		m.emit(Event{JobID: jobID, Status: StatusFailed, Err: err})
		return
	}

	proofBytes := proof.MarshalBinary()

	m.emit(Event{
		JobID:    jobID,
		Status:   StatusCompleted,
		Progress: 1,
		Result: &Result{
			JobID:         jobID,
			BatchId:       inputs.BatchId,
			Proof:         proofBytes,
			PublicWitness: inputs.EncodeWitness(),
		},
	})
}

func (m *MockProver) emit(e Event) {
	select {
	case m.events <- e:
	default:
		// Event buffer full: drop rather than block the proving
		// goroutine. A consumer that can't keep up with a handful of
		// in-flight batches has bigger problems than a missed progress
		// tick.
	}
}
