package pipeline

import (
	"github.com/zelana-labs/sequencer/internal/field"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// accumulate folds batchID and every hash in hashes through the MiMC
// sponge under domain, giving a single deterministic accumulator value
// for an ordered sequence of per-tx hashes. Used for both
// withdrawal_root (withdrawals only) and batch_hash (every class,
// transfers then withdrawals then shielded items).
func accumulate(domain field.Domain, batchID uint64, hashes ...types.Hash) types.Hash {
	inputs := make([][32]byte, 0, len(hashes)+1)
	inputs = append(inputs, field.ToBytes(field.FromUint64(batchID)))
	for _, h := range hashes {
		inputs = append(inputs, [32]byte(h))
	}
	return types.Hash(field.HashNBytes(domain, inputs...))
}

func withdrawalRoot(batchID uint64, withdrawals []types.Hash) types.Hash {
	return accumulate(field.DomainWithdrawal, batchID, withdrawals...)
}

func batchHash(batchID uint64, transfers, withdrawals, shielded []types.Hash) types.Hash {
	all := make([]types.Hash, 0, len(transfers)+len(withdrawals)+len(shielded))
	all = append(all, transfers...)
	all = append(all, withdrawals...)
	all = append(all, shielded...)
	return accumulate(field.DomainBatch, batchID, all...)
}
