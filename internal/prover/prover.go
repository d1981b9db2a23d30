// Package prover defines the sequencer's proving-service boundary: the
// seven-element public input layout a sealed batch must present, the
// wire encodings a prover speaks over, and two implementations — a
// mock that runs an actual (trivial) Groth16 circuit locally, and a
// remote client stub over a placeholder request/response transport.
package prover

import (
	"context"
	"encoding/binary"

	"github.com/zelana-labs/sequencer/internal/field"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// publicInputCount is the fixed number of field elements every batch's
// public witness carries, in order.
const publicInputCount = 7

// PublicWitnessSize is the byte length of an encoded witness: a 4-byte
// big-endian count, 8 bytes of padding, then 7 32-byte field elements.
const PublicWitnessSize = 4 + 8 + publicInputCount*32

// ProofSize is the fixed proof length, in bytes, of the prover wire
// contract. Nothing in this package pads or checks proofs against it:
// MockProver returns gnark's own serialization of its proof, and
// RemoteProver passes the transport's proof bytes through unchanged.
const ProofSize = 388

// PublicInputs is the ordered set of field elements a batch's proof is
// generated and verified against. Order is part of the wire contract:
// a prover and a verifier that disagree on order disagree on every
// batch.
type PublicInputs struct {
	PreAccountRoot   types.Hash
	PostAccountRoot  types.Hash
	PreShieldedRoot  types.Hash
	PostShieldedRoot types.Hash
	WithdrawalRoot   types.Hash
	BatchHash        types.Hash
	BatchId          uint64
}

// FromHeader builds the public inputs a sealed batch header implies.
func FromHeader(h *types.BatchHeader) PublicInputs {
	return PublicInputs{
		PreAccountRoot:   h.PrevAccountRoot,
		PostAccountRoot:  h.PostAccountRoot,
		PreShieldedRoot:  h.PrevShieldedRoot,
		PostShieldedRoot: h.PostShieldedRoot,
		WithdrawalRoot:   h.WithdrawalRoot,
		BatchHash:        h.BatchHash,
		BatchId:          h.BatchId,
	}
}

func (p PublicInputs) batchIdHash() types.Hash {
	return field.ToBytes(field.FromUint64(p.BatchId))
}

// Elements returns the seven field elements in their canonical order.
func (p PublicInputs) Elements() [publicInputCount]types.Hash {
	return [publicInputCount]types.Hash{
		p.PreAccountRoot,
		p.PostAccountRoot,
		p.PreShieldedRoot,
		p.PostShieldedRoot,
		p.WithdrawalRoot,
		p.BatchHash,
		p.batchIdHash(),
	}
}

// EncodeWitness serializes the public inputs to the fixed-layout byte
// encoding a prover and an L1 verifier both parse: count, padding,
// then each element big-endian.
func (p PublicInputs) EncodeWitness() []byte {
	buf := make([]byte, 0, PublicWitnessSize)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], publicInputCount)
	buf = append(buf, countBuf[:]...)
	buf = append(buf, make([]byte, 8)...)
	for _, e := range p.Elements() {
		buf = append(buf, e[:]...)
	}
	return buf
}

// Status is a proving job's lifecycle state.
type Status uint8

const (
	StatusQueued Status = iota + 1
	StatusProving
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusProving:
		return "proving"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the artifact a completed proving job hands back: a
// fixed-size proof and the public witness it was generated against.
type Result struct {
	JobID         string
	BatchId       uint64
	Proof         []byte
	PublicWitness []byte
}

// Event reports a proving job's progress. Completed events carry a
// Result; Failed events carry Err.
type Event struct {
	JobID    string
	Status   Status
	Progress float64
	Result   *Result
	Err      error
}

// Prover is the seam the pipeline hands a sealed batch's public inputs
// to. Prove returns immediately with a job ID; progress and completion
// arrive on Events.
type Prover interface {
	Prove(ctx context.Context, inputs PublicInputs) (jobID string, err error)
	Events() <-chan Event
}
