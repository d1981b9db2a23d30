package deposit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/zelana-labs/sequencer/pkg/retry"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// LogBatch is one subscription notification: every bridge-program log
// line observed in a single L1 slot.
type LogBatch struct {
	Slot  uint64
	Lines []string
}

// LogSource is a live subscription to bridge-program logs. Subscribe
// blocks, passing each batch to onBatch until ctx is
// canceled or the underlying connection drops (in which case it
// returns an error and the indexer reconnects).
type LogSource interface {
	Subscribe(ctx context.Context, onBatch func(LogBatch) error) error
}

// DedupStore is the subset of internal/store's Store the indexer needs
// for exactly-once processing and restart recovery.
type DedupStore interface {
	IsDepositProcessed(l1Seq uint64) (bool, error)
	MarkDepositProcessed(l1Seq, slot uint64) error
	GetLastProcessedSlot() (uint64, bool, error)
	SetLastProcessedSlot(slot uint64) error
}

// Submitter routes a parsed deposit into the batch pipeline. It only
// returns nil once the deposit has been durably queued.
type Submitter interface {
	SubmitDeposit(ctx context.Context, ev types.DepositEvent) error
}

// Indexer watches an L1 log source for deposit events and submits each
// to the pipeline exactly once.
type Indexer struct {
	source   LogSource
	store    DedupStore
	pipeline Submitter
	log      *logrus.Entry
	retryCfg retry.Config
}

func New(source LogSource, store DedupStore, pipeline Submitter, log *logrus.Entry) *Indexer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Indexer{source: source, store: store, pipeline: pipeline, log: log, retryCfg: retry.DefaultConfig()}
}

// Run subscribes to the log source and processes batches, reconnecting
// with exponential backoff on a subscription error. It returns when ctx
// is canceled, when Subscribe returns nil, or with the last error once
// the retry budget (retry.DefaultConfig: 5 attempts) is used up.
func (idx *Indexer) Run(ctx context.Context) error {
	return retry.Do(ctx, idx.retryCfg, func(attempt int) error {
		if attempt > 1 {
			idx.log.WithField("attempt", attempt).Warn("reconnecting deposit indexer")
		}
		return idx.source.Subscribe(ctx, idx.handleBatch)
	})
}

func (idx *Indexer) handleBatch(batch LogBatch) error {
	for _, line := range batch.Lines {
		ev, ok := ParseLogLine(line)
		if !ok {
			continue
		}
		idx.handleDeposit(batch.Slot, ev)
	}
	return nil
}

func (idx *Indexer) handleDeposit(slot uint64, ev types.DepositEvent) {
	processed, err := idx.store.IsDepositProcessed(ev.L1Seq)
	if err != nil {
		idx.log.WithError(err).Error("dedup lookup failed")
		return
	}
	if processed {
		idx.log.WithField("l1_seq", ev.L1Seq).Debug("skipping duplicate deposit")
		return
	}

	if err := idx.pipeline.SubmitDeposit(context.Background(), ev); err != nil {
		idx.log.WithError(err).WithField("l1_seq", ev.L1Seq).Error("failed to submit deposit to pipeline")
		// Not marked processed: retried on the next observation of the
		// same log line or on Reconcile.
		return
	}

	if err := idx.store.MarkDepositProcessed(ev.L1Seq, slot); err != nil {
		idx.log.WithError(err).Error("failed to mark deposit processed")
	}
	if err := idx.store.SetLastProcessedSlot(slot); err != nil {
		idx.log.WithError(err).Error("failed to update last processed slot")
	}
}

// HistoricalSource re-walks a slot range for deposit logs the live
// subscription may have missed, e.g. while the indexer was offline.
type HistoricalSource interface {
	FetchRange(ctx context.Context, fromSlot uint64, onBatch func(LogBatch) error) error
}

// Reconcile replays the slot range from the last durably-processed
// slot through the current head, supplementing the live subscription's
// gap: deposits made while the indexer was offline are not lost,
// because dedup on l1_seq makes replaying already-seen deposits a
// no-op.
func (idx *Indexer) Reconcile(ctx context.Context, hist HistoricalSource) error {
	fromSlot, found, err := idx.store.GetLastProcessedSlot()
	if err != nil {
		return err
	}
	if !found {
		idx.log.Info("no previously processed slot recorded, skipping reconciliation")
		return nil
	}

	idx.log.WithField("from_slot", fromSlot).Info("reconciling deposit gap")
	return hist.FetchRange(ctx, fromSlot, idx.handleBatch)
}
