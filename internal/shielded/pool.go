package shielded

import (
	"errors"

	"github.com/zelana-labs/sequencer/pkg/types"
)

var ErrProofRejected = errors.New("shielded proof rejected")

// ProofVerifier is the seam through which a real Groth16 verifier can
// be wired in later without restructuring the pool. The sequencer
// itself is a pass-through: it enforces nullifier uniqueness and
// anchor recency, and defers cryptographic proof validity to whatever
// is plugged in here. Pool.Apply calls it without a nil check; NewPool
// installs AcceptAll.
type ProofVerifier func(proof types.ZKProof) bool

// AcceptAll is a ProofVerifier that never rejects; NewPool installs it
// whatever the prover mode.
func AcceptAll(types.ZKProof) bool { return true }

// Pool is the shielded pool: a commitment tree, a nullifier set, and
// the anchor/proof checks a shielded transaction must pass before its
// effects (spend nullifiers, append commitments) are applied.
type Pool struct {
	Tree       *Tree
	Nullifiers *NullifierSet
	VerifyProof ProofVerifier
}

func NewPool(rootHistorySize int) *Pool {
	return &Pool{
		Tree:        NewTree(rootHistorySize),
		Nullifiers:  NewNullifierSet(),
		VerifyProof: AcceptAll,
	}
}

// Apply validates and applies a shielded transaction's effects,
// returning the positions its new commitments were inserted at.
func (p *Pool) Apply(tx *types.ShieldedTx, batchID uint64, txHash types.Hash) ([]uint64, error) {
	if !p.Tree.IsValidAnchor(tx.Anchor) {
		return nil, ErrAnchorNotRecent
	}

	for _, n := range tx.Nullifiers {
		if p.Nullifiers.IsSpent(n.Value) {
			return nil, ErrNullifierSpent
		}
	}

	if !p.VerifyProof(tx.Proof) {
		return nil, ErrProofRejected
	}

	for _, n := range tx.Nullifiers {
		if err := p.Nullifiers.MarkSpent(n.Value, batchID, txHash); err != nil {
			return nil, err
		}
	}

	positions := make([]uint64, 0, len(tx.Commitments))
	for _, c := range tx.Commitments {
		pos, _, err := p.Tree.Insert(c.Value)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}

	return positions, nil
}

func (p *Pool) CurrentAnchor() types.Hash {
	return p.Tree.Root()
}

// Restore replays persisted commitments (in insertion-position order)
// and nullifiers into a freshly constructed Pool, rebuilding the
// in-memory frontier tree and nullifier set a restart would otherwise
// lose. batchID/txHash provenance for nullifiers spent before restart
// is not recoverable from the store's presence-only encoding, so
// replayed nullifiers are marked spent under batch 0 with a zero hash;
// this only affects audit lookups, never spend-uniqueness.
func (p *Pool) Restore(commitments []types.Hash, nullifiers []types.Hash) error {
	for _, c := range commitments {
		if _, _, err := p.Tree.Insert(c); err != nil {
			return err
		}
	}
	for _, n := range nullifiers {
		if err := p.Nullifiers.MarkSpent(n, 0, types.Hash{}); err != nil {
			return err
		}
	}
	return nil
}
