package pipeline

import (
	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// batchReader gives the executor read-your-writes visibility across an
// entire open batch, not just within a single transaction: a transfer
// crediting an account earlier in the batch must be visible to a
// transfer spending it later in the same batch (spec.md's "deposit
// then send" scenario), without ever touching the persistent store
// until the batch seals.
type batchReader struct {
	backing *store.Store
	touched map[types.AccountId]types.AccountState
}

func newBatchReader(backing *store.Store) *batchReader {
	return &batchReader{backing: backing, touched: make(map[types.AccountId]types.AccountState)}
}

func (r *batchReader) GetAccount(id types.AccountId) (types.AccountState, error) {
	if s, ok := r.touched[id]; ok {
		return s, nil
	}
	s, _, err := r.backing.GetAccount(id)
	return s, err
}

func (r *batchReader) apply(updates map[types.AccountId]types.AccountState) {
	for id, s := range updates {
		r.touched[id] = s
	}
}

func (r *batchReader) reset() {
	r.touched = make(map[types.AccountId]types.AccountState)
}

// treeOverlay satisfies internal/smt.Store while buffering every write
// in memory for the duration of an open batch. internal/smt.Tree
// writes one node per tree level on every InsertOrUpdate call; without
// this buffer those writes would land in the bbolt store immediately,
// ahead of and independent from the rest of the batch's effects,
// breaking "no partial batch state is ever observable." Buffered
// writes are drained into a store.Batch at seal time so the tree's
// path recompute becomes part of the same atomic commit as everything
// else.
type treeOverlay struct {
	backing *store.Store
	nodes   map[[2]uint64]types.Hash
	root    *types.Hash
}

func newTreeOverlay(backing *store.Store) *treeOverlay {
	return &treeOverlay{backing: backing, nodes: make(map[[2]uint64]types.Hash)}
}

func (t *treeOverlay) GetNode(level int, index uint64) (types.Hash, bool, error) {
	key := [2]uint64{uint64(level), index}
	if h, ok := t.nodes[key]; ok {
		return h, true, nil
	}
	return t.backing.GetNode(level, index)
}

func (t *treeOverlay) SetNode(level int, index uint64, h types.Hash) error {
	t.nodes[[2]uint64{uint64(level), index}] = h
	return nil
}

func (t *treeOverlay) GetRoot() (types.Hash, error) {
	if t.root != nil {
		return *t.root, nil
	}
	return t.backing.GetRoot()
}

func (t *treeOverlay) SetRoot(h types.Hash) error {
	t.root = &h
	return nil
}

// drainInto copies every buffered write into b, to be committed
// alongside the rest of the sealed batch's effects.
func (t *treeOverlay) drainInto(b *store.Batch) {
	for key, h := range t.nodes {
		b.PutAccountNode(int(key[0]), key[1], h)
	}
	if t.root != nil {
		b.SetAccountRoot(*t.root)
	}
}

// reset clears the buffer once its writes have been durably committed;
// subsequent reads fall through to the now up-to-date backing store.
func (t *treeOverlay) reset() {
	t.nodes = make(map[[2]uint64]types.Hash)
	t.root = nil
}
