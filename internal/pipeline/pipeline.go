// Package pipeline is the sequencer's single authoritative state owner:
// one goroutine consumes admitted transactions in submission order,
// applies them to an in-memory overlay over the persistent store, and
// seals a batch when the sealing predicate fires — computing the
// batch's roots and hash, writing every effect in one atomic store
// commit, and handing the result to the prover client.
package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zelana-labs/sequencer/internal/executor"
	"github.com/zelana-labs/sequencer/internal/l1"
	"github.com/zelana-labs/sequencer/internal/mempool"
	"github.com/zelana-labs/sequencer/internal/prover"
	"github.com/zelana-labs/sequencer/internal/readindex"
	"github.com/zelana-labs/sequencer/internal/shielded"
	"github.com/zelana-labs/sequencer/internal/smt"
	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/internal/withdrawal"
	"github.com/zelana-labs/sequencer/pkg/apperror"
	"github.com/zelana-labs/sequencer/pkg/types"
)

var ErrInboxFull = errors.New("pipeline: inbox is at capacity")

// ReadIndexer mirrors a sealed batch and its transaction summaries
// into a queryable read index. It is fed asynchronously after the
// batch's atomic commit and is never on the path that determines
// correctness — a failing or absent ReadIndexer never blocks sealing.
type ReadIndexer interface {
	RecordBatch(ctx context.Context, header *types.BatchHeader, txs []readindex.TxSummary) error
}

// Config bounds a single batch's size and lifetime.
type Config struct {
	MaxTransactions int
	MaxBatchAge     time.Duration
	MaxShielded     int
	MinTransactions int
	InboxSize       int
	ChainId         uint64
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxTransactions: 100,
		MaxBatchAge:     60 * time.Second,
		MaxShielded:     10,
		MinTransactions: 1,
		InboxSize:       4096,
	}
}

// Pipeline owns the mempool, the account and shielded trees, the
// withdrawal queue, and the persistent store. Submit/SubmitDeposit may
// be called from any goroutine (they only touch the mempool, which is
// self-synchronizing); Run, and everything it calls, executes on a
// single goroutine and is not otherwise safe for concurrent use.
type Pipeline struct {
	cfg Config
	log *logrus.Entry

	mp          *mempool.Mempool
	tree        *smt.Tree
	treeOverlay *treeOverlay
	shieldedPool *shielded.Pool
	store       *store.Store
	withdrawals *withdrawal.Queue
	prover      prover.Prover
	l1Client    l1.Client
	readIndex   ReadIndexer

	inbox      chan *mempool.Envelope
	sealSignal chan struct{}

	mu          sync.Mutex
	nextBatchID uint64
}

// New constructs a Pipeline. The account tree and shielded pool are
// expected to already be rehydrated from the store (see Open).
func New(
	cfg Config,
	mp *mempool.Mempool,
	tree *smt.Tree,
	treeOv *treeOverlay,
	shieldedPool *shielded.Pool,
	st *store.Store,
	withdrawals *withdrawal.Queue,
	pr prover.Prover,
	l1c l1.Client,
	readIndex ReadIndexer,
	log *logrus.Entry,
) (*Pipeline, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	nextID, err := st.GetNextBatchId()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:          cfg,
		log:          log.WithField("component", "pipeline"),
		mp:           mp,
		tree:         tree,
		treeOverlay:  treeOv,
		shieldedPool: shieldedPool,
		store:        st,
		withdrawals:  withdrawals,
		prover:       pr,
		l1Client:     l1c,
		readIndex:    readIndex,
		inbox:        make(chan *mempool.Envelope, cfg.InboxSize),
		sealSignal:   make(chan struct{}, 1),
		nextBatchID:  nextID,
	}, nil
}

// Open builds a Pipeline's tree/overlay plumbing from a persistent
// store and replays the shielded pool's prior state, the composition
// cmd/sequencerd performs at startup. readIndex may be nil (no read
// mirror configured).
func Open(cfg Config, st *store.Store, pr prover.Prover, l1c l1.Client, readIndex ReadIndexer, log *logrus.Entry) (*Pipeline, error) {
	treeOv := newTreeOverlay(st)
	tree, err := smt.New(treeOv)
	if err != nil {
		return nil, err
	}

	shieldedPool := shielded.NewPool(100)
	commitments, err := st.AllCommitmentsOrdered()
	if err != nil {
		return nil, err
	}
	nullifiers, err := st.AllNullifiers()
	if err != nil {
		return nil, err
	}
	if err := shieldedPool.Restore(commitments, nullifiers); err != nil {
		return nil, err
	}

	mpCfg := mempool.DefaultConfig()
	mpCfg.ChainId = cfg.ChainId
	return New(cfg, mempool.New(mpCfg), tree, treeOv, shieldedPool, st, withdrawal.NewQueue(), pr, l1c, readIndex, log)
}

// Submit admits an envelope to the mempool and wakes the pipeline
// goroutine to consider sealing. Safe for concurrent use.
func (p *Pipeline) Submit(env *mempool.Envelope) error {
	if err := p.mp.Add(env); err != nil {
		return err
	}
	select {
	case p.inbox <- env:
	default:
		// Inbox full: the goroutine will still notice this tx on its
		// next tick-driven check. Backpressure here means "processed a
		// little later," not "lost" — the tx already landed in the
		// mempool.
	}
	return nil
}

// SubmitDeposit satisfies internal/deposit.Submitter.
func (p *Pipeline) SubmitDeposit(ctx context.Context, ev types.DepositEvent) error {
	return p.Submit(mempool.NewDepositEnvelope(&ev))
}

// MempoolSize reports the number of transactions currently pending,
// for read-only status reporting (internal/api.StatusSource). Safe for
// concurrent use.
func (p *Pipeline) MempoolSize() int {
	return p.mp.Size()
}

// RequestSeal asks the pipeline to seal the current batch as soon as
// it next runs its select loop, regardless of count/age, provided the
// minimum transaction count is met.
func (p *Pipeline) RequestSeal() {
	select {
	case p.sealSignal <- struct{}{}:
	default:
	}
}

// Run is the single authoritative goroutine: it consumes inbox
// notifications, a periodic ticker, and explicit seal requests, and
// seals a batch whenever the predicate is satisfied. It returns when
// ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	batchStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-p.inbox:
			if p.shouldSeal(batchStart, false) {
				if _, err := p.Seal(ctx); err != nil {
					p.log.WithError(err).Error("batch seal failed")
				}
				batchStart = time.Now()
			}

		case <-p.sealSignal:
			if p.mp.Size() >= p.cfg.MinTransactions {
				if _, err := p.Seal(ctx); err != nil {
					p.log.WithError(err).Error("explicit batch seal failed")
				}
				batchStart = time.Now()
			}

		case <-ticker.C:
			if p.shouldSeal(batchStart, false) {
				if _, err := p.Seal(ctx); err != nil {
					p.log.WithError(err).Error("batch seal failed")
				}
				batchStart = time.Now()
			}
		}
	}
}

func (p *Pipeline) shouldSeal(batchStart time.Time, explicit bool) bool {
	count := p.mp.Size()
	if count < p.cfg.MinTransactions {
		return false
	}
	if explicit {
		return true
	}
	if count >= p.cfg.MaxTransactions {
		return true
	}
	return time.Since(batchStart) >= p.cfg.MaxBatchAge
}

// selectForSeal pulls candidates off the mempool in submission order,
// respecting both the batch transaction cap and the shielded-items
// cap; shielded envelopes beyond MaxShielded are left in the mempool
// for the next batch rather than rejected.
func (p *Pipeline) selectForSeal() []*mempool.Envelope {
	candidates := p.mp.Select(p.cfg.MaxTransactions * 2)
	selected := make([]*mempool.Envelope, 0, p.cfg.MaxTransactions)
	shieldedCount := 0

	for _, env := range candidates {
		if len(selected) >= p.cfg.MaxTransactions {
			break
		}
		if env.Type == types.TxShielded {
			if shieldedCount >= p.cfg.MaxShielded {
				continue
			}
			shieldedCount++
		}
		selected = append(selected, env)
	}
	return selected
}

// Seal executes the current batch of admitted transactions, writes
// the sealed header and every account/tree/shielded/withdrawal effect
// in a single atomic store commit, and hands off to the prover.
func (p *Pipeline) Seal(ctx context.Context) (*types.BatchHeader, error) {
	p.mu.Lock()
	batchID := p.nextBatchID
	p.mu.Unlock()

	selected := p.selectForSeal()
	if len(selected) == 0 {
		return nil, nil
	}

	preAccountRoot, err := p.tree.Root()
	if err != nil {
		return nil, err
	}
	preShieldedRoot := p.shieldedPool.CurrentAnchor()

	reader := newBatchReader(p.store)
	batch := store.NewBatch()

	var (
		included        []types.Hash
		transferHashes  []types.Hash
		withdrawHashes  []types.Hash
		shieldedHashes  []types.Hash
		withdrawalTxs   []*types.WithdrawalTx
		transferCount   uint64
		withdrawCount   uint64
		shieldedTxCount uint64
		txSummaries     []readindex.TxSummary
	)

	for _, env := range selected {
		var diff executor.StateDiff
		var applyErr error

		switch env.Type {
		case types.TxTransfer:
			diff, applyErr = executor.Apply(reader, env.Transparent)
		case types.TxWithdraw:
			diff, applyErr = executor.Apply(reader, env.Withdrawal)
		case types.TxDeposit:
			diff, applyErr = executor.Apply(reader, env.Deposit)
		case types.TxShielded:
			applyErr = p.applyShielded(batch, env, batchID)
		default:
			applyErr = apperror.New(apperror.Validation, "pipeline", executor.ErrUnknownTxType)
		}

		if applyErr != nil {
			p.log.WithError(applyErr).WithField("tx_hash", env.Hash.String()).Warn("rejecting transaction at seal")
			p.mp.Remove(env.Hash)
			continue
		}

		if env.Type != types.TxShielded {
			reader.apply(diff.Updates)
			if err := p.applyTreeUpdates(diff.Updates, batch); err != nil {
				return nil, err
			}
		}

		included = append(included, env.Hash)

		switch env.Type {
		case types.TxTransfer:
			transferHashes = append(transferHashes, env.Hash)
			transferCount++
			txSummaries = append(txSummaries, readindex.TxSummary{
				TxHash: env.Hash, BatchId: batchID, Kind: "transfer",
				From: env.Transparent.From, To: env.Transparent.To, Amount: env.Transparent.Amount,
			})
		case types.TxWithdraw:
			withdrawHashes = append(withdrawHashes, env.Hash)
			withdrawalTxs = append(withdrawalTxs, env.Withdrawal)
			withdrawCount++
			batch.PutWithdrawal(withdrawalID(env.Hash), encodeWithdrawal(env.Withdrawal, batchID))
			txSummaries = append(txSummaries, readindex.TxSummary{
				TxHash: env.Hash, BatchId: batchID, Kind: "withdraw",
				From: env.Withdrawal.From, Amount: env.Withdrawal.Amount,
			})
		case types.TxDeposit:
			txSummaries = append(txSummaries, readindex.TxSummary{
				TxHash: env.Hash, BatchId: batchID, Kind: "deposit",
				To: env.Deposit.To, Amount: env.Deposit.Amount,
			})
		case types.TxShielded:
			shieldedHashes = append(shieldedHashes, env.Hash)
			shieldedTxCount++
			txSummaries = append(txSummaries, readindex.TxSummary{
				TxHash: env.Hash, BatchId: batchID, Kind: "shielded",
			})
		}
	}

	if len(included) == 0 {
		return nil, nil
	}

	postAccountRoot, err := p.treeOverlay.GetRoot()
	if err != nil {
		return nil, err
	}
	postShieldedRoot := p.shieldedPool.CurrentAnchor()

	header := &types.BatchHeader{
		BatchId:          batchID,
		PrevAccountRoot:  preAccountRoot,
		PostAccountRoot:  postAccountRoot,
		PrevShieldedRoot: preShieldedRoot,
		PostShieldedRoot: postShieldedRoot,
		WithdrawalRoot:   withdrawalRoot(batchID, withdrawHashes),
		BatchHash:        batchHash(batchID, transferHashes, withdrawHashes, shieldedHashes),
		TxCount:          uint64(len(included)),
		TransferCount:    transferCount,
		WithdrawalCount:  withdrawCount,
		ShieldedCount:    shieldedTxCount,
		SealedAtUnix:     time.Now().Unix(),
	}

	p.treeOverlay.drainInto(batch)
	batch.SetHeader(header)
	batch.SetNextBatchId(batchID + 1)

	if err := p.store.Commit(batch); err != nil {
		return nil, err
	}
	p.treeOverlay.reset()

	p.mu.Lock()
	p.nextBatchID = batchID + 1
	p.mu.Unlock()

	p.mp.RemoveIncluded(included)

	for _, tx := range withdrawalTxs {
		p.withdrawals.Enqueue(tx, batchID)
	}

	if p.prover != nil {
		if _, err := p.prover.Prove(ctx, prover.FromHeader(header)); err != nil {
			p.log.WithError(err).Error("failed to submit batch to prover")
		}
	}

	if p.readIndex != nil {
		go p.mirrorToReadIndex(header, txSummaries)
	}

	return header, nil
}

// mirrorToReadIndex feeds the sealed batch to the read index on its
// own goroutine: it runs after the authoritative commit has already
// succeeded, so a failure here is logged and dropped, never retried
// against the sealing path.
func (p *Pipeline) mirrorToReadIndex(header *types.BatchHeader, txs []readindex.TxSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.readIndex.RecordBatch(ctx, header, txs); err != nil {
		p.log.WithError(err).WithField("batch_id", header.BatchId).Warn("failed to mirror batch to read index")
	}
}

func (p *Pipeline) applyTreeUpdates(updates map[types.AccountId]types.AccountState, batch *store.Batch) error {
	for id, state := range updates {
		if _, err := p.tree.InsertOrUpdate(id, state); err != nil {
			return err
		}
		batch.PutAccount(id, state)
	}
	return nil
}

func (p *Pipeline) applyShielded(batch *store.Batch, env *mempool.Envelope, batchID uint64) error {
	positions, err := p.shieldedPool.Apply(env.Shielded, batchID, env.Hash)
	if err != nil {
		return apperror.New(apperror.Execution, "pipeline", err)
	}
	for i, pos := range positions {
		batch.PutCommitment(pos, env.Shielded.Commitments[i].Value)
	}
	for _, n := range env.Shielded.Nullifiers {
		batch.PutNullifier(n.Value)
	}
	return nil
}

func withdrawalID(txHash types.Hash) uint64 {
	return binary.BigEndian.Uint64(txHash[:8])
}

// encodeWithdrawal is the persisted-withdrawals column's encoding: a
// fixed-width record used only for durability and operator inspection
// (internal/withdrawal.Queue, not this encoding, is the authoritative
// in-process state machine).
func encodeWithdrawal(tx *types.WithdrawalTx, batchID uint64) []byte {
	buf := make([]byte, 0, types.AccountIdSize+32+8+8)
	buf = append(buf, tx.From[:]...)
	buf = append(buf, tx.L1Recipient[:]...)
	var amt, bid [8]byte
	binary.BigEndian.PutUint64(amt[:], tx.Amount)
	binary.BigEndian.PutUint64(bid[:], batchID)
	buf = append(buf, amt[:]...)
	buf = append(buf, bid[:]...)
	return buf
}
