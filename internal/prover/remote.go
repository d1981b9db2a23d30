package prover

import (
	"context"
	"fmt"
	"sync"
)

// ProveRequest/ProveResponse are the wire contract a real prover
// cluster speaks. Only the request/response shape is specified here —
// the transport (gRPC in production) is a seam, not something this
// module implements.
type ProveRequest struct {
	JobID   string
	Witness []byte // EncodeWitness() output
}

type ProveResponse struct {
	JobID string
	Proof []byte
	Err   string
}

// Transport is satisfied by whatever carries ProveRequest/ProveResponse
// to a remote prover cluster — a generated gRPC client in production,
// an in-memory stub in tests.
type Transport interface {
	SubmitJob(ctx context.Context, req ProveRequest) (ProveResponse, error)
}

// RemoteProver dispatches proving jobs to an out-of-process prover
// cluster over Transport, surfacing the same Events stream a caller
// gets from MockProver so the pipeline never has to know which one
// it's talking to.
type RemoteProver struct {
	transport Transport
	events    chan Event

	mu     sync.Mutex
	nextID uint64
}

func NewRemoteProver(transport Transport) *RemoteProver {
	return &RemoteProver{
		transport: transport,
		events:    make(chan Event, 64),
	}
}

func (r *RemoteProver) Events() <-chan Event {
	return r.events
}

func (r *RemoteProver) Prove(ctx context.Context, inputs PublicInputs) (string, error) {
	r.mu.Lock()
	r.nextID++
	jobID := fmt.Sprintf("batch-%d-remote-%d", inputs.BatchId, r.nextID)
	r.mu.Unlock()

	r.emit(Event{JobID: jobID, Status: StatusQueued, Progress: 0})

	go r.run(ctx, jobID, inputs)

	return jobID, nil
}

func (r *RemoteProver) run(ctx context.Context, jobID string, inputs PublicInputs) {
	r.emit(Event{JobID: jobID, Status: StatusProving, Progress: 0.2})

	resp, err := r.transport.SubmitJob(ctx, ProveRequest{JobID: jobID, Witness: inputs.EncodeWitness()})
	if err != nil {
		r.emit(Event{JobID: jobID, Status: StatusFailed, Err: err})
		return
	}
	if resp.Err != "" {
		r.emit(Event{JobID: jobID, Status: StatusFailed, Err: fmt.Errorf("remote prover: %s", resp.Err)})
		return
	}

	r.emit(Event{
		JobID:    jobID,
		Status:   StatusCompleted,
		Progress: 1,
		Result: &Result{
			JobID:         jobID,
			BatchId:       inputs.BatchId,
			Proof:         resp.Proof,
			PublicWitness: inputs.EncodeWitness(),
		},
	})
}

func (r *RemoteProver) emit(e Event) {
	select {
	case r.events <- e:
	default:
	}
}
