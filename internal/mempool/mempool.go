package mempool

import (
	"errors"
	"sort"
	"sync"

	"github.com/zelana-labs/sequencer/pkg/apperror"
	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	ErrPoolFull        = errors.New("mempool: pool is full")
	ErrTxAlreadyExists = errors.New("mempool: transaction already present")
	ErrNullifierInUse  = errors.New("mempool: nullifier already claimed by a pending transaction")
	ErrWrongChainId    = errors.New("mempool: transaction targets a different chain id")
)

// Config holds mempool sizing and the chain id transparent transfers
// are admitted against.
type Config struct {
	MaxSize int
	ChainId uint64
}

func DefaultConfig() Config {
	return Config{MaxSize: 10000}
}

// Mempool is a bounded, strictly submission-ordered transaction queue.
// Transactions are selected for a batch in the order they arrived, tied
// by hash — no fee market is modeled.
type Mempool struct {
	mu sync.RWMutex

	cfg Config

	byHash     map[types.Hash]*Envelope
	queue      []*Envelope
	nullifiers map[types.Hash]types.Hash // nullifier -> claiming tx hash

	nextSeq uint64
}

func New(cfg Config) *Mempool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	return &Mempool{
		cfg:        cfg,
		byHash:     make(map[types.Hash]*Envelope),
		nullifiers: make(map[types.Hash]types.Hash),
	}
}

// Add admits an envelope, assigning it the next submission sequence
// number. Rejections are typed apperror.Error so callers can tell a
// full pool (Resource, retryable) from a malformed submission
// (Validation, not retryable).
func (m *Mempool) Add(e *Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[e.Hash]; exists {
		return apperror.New(apperror.Validation, "mempool", ErrTxAlreadyExists)
	}

	if e.Type == types.TxTransfer && e.Transparent.ChainId != m.cfg.ChainId {
		return apperror.New(apperror.Validation, "mempool", ErrWrongChainId)
	}

	if len(m.byHash) >= m.cfg.MaxSize {
		return apperror.New(apperror.Resource, "mempool", ErrPoolFull)
	}

	for _, n := range e.Nullifiers() {
		if claimant, exists := m.nullifiers[n.Value]; exists && claimant != e.Hash {
			return apperror.New(apperror.Validation, "mempool", ErrNullifierInUse)
		}
	}

	m.nextSeq++
	e.SubmittedSeq = m.nextSeq

	m.byHash[e.Hash] = e
	m.queue = append(m.queue, e)
	for _, n := range e.Nullifiers() {
		m.nullifiers[n.Value] = e.Hash
	}

	return nil
}

// Remove drops an envelope from the pool, e.g. after inclusion in a
// sealed batch.
func (m *Mempool) Remove(hash types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hash)
}

func (m *Mempool) removeLocked(hash types.Hash) {
	e, exists := m.byHash[hash]
	if !exists {
		return
	}
	delete(m.byHash, hash)
	for _, n := range e.Nullifiers() {
		delete(m.nullifiers, n.Value)
	}
	for i, q := range m.queue {
		if q.Hash == hash {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

func (m *Mempool) Get(hash types.Hash) (*Envelope, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byHash[hash]
	return e, ok
}

func (m *Mempool) Has(hash types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHash[hash]
	return ok
}

func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}

// Select returns up to maxCount pending envelopes in strict submission
// order (ties broken by hash), skipping any whose nullifiers conflict
// with an envelope already chosen in this selection.
func (m *Mempool) Select(maxCount int) []*Envelope {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]*Envelope, len(m.queue))
	copy(ordered, m.queue)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SubmittedSeq != ordered[j].SubmittedSeq {
			return ordered[i].SubmittedSeq < ordered[j].SubmittedSeq
		}
		return lessHash(ordered[i].Hash, ordered[j].Hash)
	})

	selected := make([]*Envelope, 0, maxCount)
	usedNullifiers := make(map[types.Hash]struct{})

	for _, e := range ordered {
		if len(selected) >= maxCount {
			break
		}

		conflict := false
		for _, n := range e.Nullifiers() {
			if _, used := usedNullifiers[n.Value]; used {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		selected = append(selected, e)
		for _, n := range e.Nullifiers() {
			usedNullifiers[n.Value] = struct{}{}
		}
	}

	return selected
}

// RemoveIncluded drops every envelope in hashes, e.g. once its batch
// has been sealed and committed to the store.
func (m *Mempool) RemoveIncluded(hashes []types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.removeLocked(h)
	}
}

func lessHash(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
