package pipeline

import (
	"context"

	"github.com/zelana-labs/sequencer/internal/prover"
)

// RunProverEvents drains the prover's event stream, submitting each
// completed batch's proof to L1 settlement and attesting its
// withdrawals once the submission succeeds. Intended to run on its own
// goroutine alongside Run.
func (p *Pipeline) RunProverEvents(ctx context.Context) {
	if p.prover == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.prover.Events():
			if !ok {
				return
			}
			p.handleProverEvent(ctx, ev)
		}
	}
}

func (p *Pipeline) handleProverEvent(ctx context.Context, ev prover.Event) {
	if ev.Result == nil {
		if ev.Err != nil {
			p.log.WithError(ev.Err).WithField("job_id", ev.JobID).Error("proving job failed")
		}
		return
	}

	header, found, err := p.store.GetBatchHeader(ev.Result.BatchId)
	if err != nil || !found {
		p.log.WithError(err).WithField("batch_id", ev.Result.BatchId).Error("sealed header missing for completed proof")
		return
	}

	if p.l1Client != nil {
		if err := p.l1Client.SubmitBatch(ctx, header, ev.Result.Proof, ev.Result.PublicWitness); err != nil {
			p.log.WithError(err).WithField("batch_id", header.BatchId).Error("failed to submit batch to L1")
			return
		}
	}

	for _, txHash := range p.withdrawals.Attest(header.BatchId) {
		record, ok := p.withdrawals.Get(txHash)
		if !ok || p.l1Client == nil {
			continue
		}
		if err := p.l1Client.WithdrawAttested(ctx, txHash, record.L1Recipient, record.Amount); err != nil {
			p.log.WithError(err).WithField("tx_hash", txHash.String()).Error("failed to relay withdrawal attestation")
		}
	}
}
