// Package shielded implements the append-only note commitment tree,
// the nullifier set, and the root-history ring that together back the
// shielded pool. The tree is frontier-based, giving O(depth) insertion,
// and lives in memory. The frontier itself is not persisted:
// internal/store keeps only the commitment leaves, and a restart
// re-inserts every leaf in position order (Pool.Restore), so restart
// cost grows with the number of leaves.
package shielded

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zelana-labs/sequencer/internal/field"
	"github.com/zelana-labs/sequencer/pkg/types"
)

var (
	ErrTreeFull          = errors.New("shielded tree is full")
	ErrPositionNotFound  = errors.New("commitment position not found")
	ErrNullifierSpent    = errors.New("nullifier already spent")
	ErrAnchorNotRecent   = errors.New("anchor is not a recent root")
	ErrCommitmentUnknown = errors.New("commitment not found in tree")
)

const maxPosition = uint64(1)<<uint(types.ShieldedTreeDepth) - 1

// Frontier holds, per level, the left sibling still waiting for its
// right pair. A nil entry means that level's pending slot is empty.
type Frontier struct {
	nodes        [types.ShieldedTreeDepth]*types.Hash
	NextPosition uint64
}

func NewFrontier() *Frontier {
	return &Frontier{}
}

// Insert folds a new leaf into the frontier and returns the new root.
// This mirrors the incremental-Merkle-tree algorithm used by every
// append-only commitment tree in the note-based privacy literature:
// climb from the leaf, and at each level either consume a pending left
// sibling (if we landed on the right) or park ourselves as the new
// pending left sibling (if we landed on the left).
func (f *Frontier) Insert(leaf types.Hash, empty *[types.ShieldedTreeDepth + 1]types.Hash) (types.Hash, error) {
	if f.NextPosition > maxPosition {
		return types.Hash{}, ErrTreeFull
	}
	position := f.NextPosition
	f.NextPosition++

	current := leaf
	idx := position

	for level := 0; level < types.ShieldedTreeDepth; level++ {
		isRight := idx&1 == 1
		if isRight {
			left := empty[level]
			if f.nodes[level] != nil {
				left = *f.nodes[level]
			}
			current = field.ToBytes(field.Hash2(field.FromBytes(left), field.FromBytes(current)))
			f.nodes[level] = nil
		} else {
			saved := current
			f.nodes[level] = &saved
			current = field.ToBytes(field.Hash2(field.FromBytes(current), field.FromBytes(empty[level])))
		}
		idx /= 2
	}

	return current, nil
}

func emptyRoots() [types.ShieldedTreeDepth + 1]types.Hash {
	var out [types.ShieldedTreeDepth + 1]types.Hash
	var cur fr.Element
	out[0] = field.ToBytes(cur)
	for lvl := 0; lvl < types.ShieldedTreeDepth; lvl++ {
		cur = field.Hash2(cur, cur)
		out[lvl+1] = field.ToBytes(cur)
	}
	return out
}

// RootHistory is a fixed-capacity ring of recently valid roots. A
// shielded proof's anchor need not match the current root exactly —
// only some root that was current within the window — because a
// client may build against a root that is superseded by the time its
// transaction reaches the pipeline.
type RootHistory struct {
	mu       sync.RWMutex
	capacity int
	roots    []types.Hash
	index    map[types.Hash]struct{}
}

func NewRootHistory(capacity int) *RootHistory {
	return &RootHistory{
		capacity: capacity,
		roots:    make([]types.Hash, 0, capacity),
		index:    make(map[types.Hash]struct{}, capacity),
	}
}

func (r *RootHistory) Push(root types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.roots) == r.capacity {
		oldest := r.roots[0]
		r.roots = r.roots[1:]
		delete(r.index, oldest)
	}
	r.roots = append(r.roots, root)
	r.index[root] = struct{}{}
}

func (r *RootHistory) IsValid(root types.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[root]
	return ok
}

// Tree is the shielded note-commitment tree: frontier-based (the
// frontier is held in memory only), append-only, with a root-history
// ring for anchor validation.
type Tree struct {
	mu          sync.Mutex
	frontier    *Frontier
	empty       [types.ShieldedTreeDepth + 1]types.Hash
	root        types.Hash
	history     *RootHistory
	commitments map[uint64]types.Hash
	siblingMap  map[[2]uint64]types.Hash // populated lazily for path queries
}

func NewTree(rootHistorySize int) *Tree {
	empty := emptyRoots()
	t := &Tree{
		frontier:    NewFrontier(),
		empty:       empty,
		root:        empty[types.ShieldedTreeDepth],
		history:     NewRootHistory(rootHistorySize),
		commitments: make(map[uint64]types.Hash),
		siblingMap:  make(map[[2]uint64]types.Hash),
	}
	t.history.Push(t.root)
	return t
}

// Insert appends a new commitment, updating the frontier, the root,
// and the root history. Returns the position the commitment landed at.
func (t *Tree) Insert(commitment types.Hash) (uint64, types.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	position := t.frontier.NextPosition
	t.siblingMap[[2]uint64{0, position}] = commitment

	root, err := t.frontier.Insert(commitment, &t.empty)
	if err != nil {
		return 0, types.Hash{}, err
	}

	t.commitments[position] = commitment
	t.root = root
	t.history.Push(root)

	return position, root, nil
}

func (t *Tree) Root() types.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

func (t *Tree) IsValidAnchor(root types.Hash) bool {
	return t.history.IsValid(root)
}

func (t *Tree) CommitmentAt(position uint64) (types.Hash, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.commitments[position]
	return c, ok
}

func (t *Tree) NextPosition() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frontier.NextPosition
}
