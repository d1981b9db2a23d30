// Package smt implements the fixed-depth sparse Merkle tree over
// transparent account states. Account leaves are positioned by the
// first four bytes of their AccountId; the tree never rebalances and
// never changes depth.
package smt

import (
	"errors"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zelana-labs/sequencer/internal/field"
	"github.com/zelana-labs/sequencer/pkg/types"
)

var ErrAccountNotFound = errors.New("account not found in tree")

// Store is the persistence seam for tree nodes, satisfied by an
// in-memory map in tests and by internal/store's bbolt-backed
// implementation in production.
type Store interface {
	GetNode(level int, index uint64) (types.Hash, bool, error)
	SetNode(level int, index uint64, h types.Hash) error
	GetRoot() (types.Hash, error)
	SetRoot(types.Hash) error
}

// Path is an inclusion proof: depth sibling hashes plus the left/right
// bit at each level, ordered leaf-to-root.
type Path struct {
	Siblings [types.AccountTreeDepth]types.Hash
	IsRight  [types.AccountTreeDepth]bool
	Position uint32
}

// ComputeRoot recomputes the tree root along this path given a leaf hash.
func (p *Path) ComputeRoot(leaf types.Hash) types.Hash {
	current := field.FromBytes(leaf)
	for i := 0; i < types.AccountTreeDepth; i++ {
		sibling := field.FromBytes(p.Siblings[i])
		var parent fr.Element
		if p.IsRight[i] {
			parent = field.Hash2(sibling, current)
		} else {
			parent = field.Hash2(current, sibling)
		}
		current = parent
	}
	return field.ToBytes(current)
}

// Verify checks that leaf, following this path, reproduces root.
func (p *Path) Verify(leaf, root types.Hash) bool {
	return p.ComputeRoot(leaf) == root
}

// emptySubtreeRoots[level] is the root of an empty subtree of that
// height; emptySubtreeRoots[0] is the empty leaf.
var emptySubtreeRoots [types.AccountTreeDepth + 1]types.Hash
var emptyOnce sync.Once

func emptyRoots() [types.AccountTreeDepth + 1]types.Hash {
	emptyOnce.Do(func() {
		var cur fr.Element // zero element, the empty leaf
		emptySubtreeRoots[0] = field.ToBytes(cur)
		for lvl := 0; lvl < types.AccountTreeDepth; lvl++ {
			cur = field.Hash2(cur, cur)
			emptySubtreeRoots[lvl+1] = field.ToBytes(cur)
		}
	})
	return emptySubtreeRoots
}

// ComputeLeaf hashes an account's state into its tree leaf value:
// MiMC(domain=account, pubkey, balance, nonce).
func ComputeLeaf(id types.AccountId, state types.AccountState) types.Hash {
	pubkey := field.FromBytes([32]byte(id))
	balance := field.FromUint64(state.Balance)
	nonce := field.FromUint64(state.Nonce)
	leaf := field.HashN(field.DomainAccountLeaf, pubkey, balance, nonce)
	return field.ToBytes(leaf)
}

// Tree is the account sparse Merkle tree. It is not safe for concurrent
// use; callers serialize access (the pipeline is the sole writer).
type Tree struct {
	store Store
	empty [types.AccountTreeDepth + 1]types.Hash
}

func New(store Store) (*Tree, error) {
	t := &Tree{store: store, empty: emptyRoots()}
	root, err := store.GetRoot()
	if err != nil {
		return nil, err
	}
	if root.IsEmpty() {
		if err := store.SetRoot(t.empty[types.AccountTreeDepth]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) Root() (types.Hash, error) {
	return t.store.GetRoot()
}

// InsertOrUpdate writes the account's leaf and rehashes the path to the
// root, returning the new root.
func (t *Tree) InsertOrUpdate(id types.AccountId, state types.AccountState) (types.Hash, error) {
	position := uint64(id.Position())
	leaf := ComputeLeaf(id, state)

	if err := t.store.SetNode(0, position, leaf); err != nil {
		return types.Hash{}, err
	}

	currentIndex := position
	currentHash := leaf

	for level := 0; level < types.AccountTreeDepth; level++ {
		isRight := currentIndex&1 == 1
		var siblingIndex uint64
		if isRight {
			siblingIndex = currentIndex - 1
		} else {
			siblingIndex = currentIndex + 1
		}

		sibling, ok, err := t.store.GetNode(level, siblingIndex)
		if err != nil {
			return types.Hash{}, err
		}
		if !ok {
			sibling = t.empty[level]
		}

		currentField := field.FromBytes(currentHash)
		siblingField := field.FromBytes(sibling)

		var parent fr.Element
		if isRight {
			parent = field.Hash2(siblingField, currentField)
		} else {
			parent = field.Hash2(currentField, siblingField)
		}

		currentIndex /= 2
		currentHash = field.ToBytes(parent)

		if err := t.store.SetNode(level+1, currentIndex, currentHash); err != nil {
			return types.Hash{}, err
		}
	}

	if err := t.store.SetRoot(currentHash); err != nil {
		return types.Hash{}, err
	}
	return currentHash, nil
}

// PathFor returns the inclusion path for an account's current position,
// whether or not that position currently holds a real leaf (empty
// positions have a well-defined path against the empty leaf).
func (t *Tree) PathFor(id types.AccountId) (*Path, error) {
	position := uint64(id.Position())
	p := &Path{Position: id.Position()}

	currentIndex := position
	for level := 0; level < types.AccountTreeDepth; level++ {
		isRight := currentIndex&1 == 1
		p.IsRight[level] = isRight

		var siblingIndex uint64
		if isRight {
			siblingIndex = currentIndex - 1
		} else {
			siblingIndex = currentIndex + 1
		}

		sibling, ok, err := t.store.GetNode(level, siblingIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			sibling = t.empty[level]
		}
		p.Siblings[level] = sibling

		currentIndex /= 2
	}

	return p, nil
}

// Leaf returns the leaf currently stored at id's position, if any.
func (t *Tree) Leaf(id types.AccountId) (types.Hash, bool, error) {
	return t.store.GetNode(0, uint64(id.Position()))
}

// InMemoryStore is a map-backed Store for tests and for components that
// don't need durability (e.g. transient path recomputation).
type InMemoryStore struct {
	mu    sync.RWMutex
	nodes map[[2]uint64]types.Hash
	root  types.Hash
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nodes: make(map[[2]uint64]types.Hash)}
}

func (s *InMemoryStore) key(level int, index uint64) [2]uint64 {
	return [2]uint64{uint64(level), index}
}

func (s *InMemoryStore) GetNode(level int, index uint64) (types.Hash, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.nodes[s.key(level, index)]
	return h, ok, nil
}

func (s *InMemoryStore) SetNode(level int, index uint64, h types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[s.key(level, index)] = h
	return nil
}

func (s *InMemoryStore) GetRoot() (types.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root, nil
}

func (s *InMemoryStore) SetRoot(h types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = h
	return nil
}
