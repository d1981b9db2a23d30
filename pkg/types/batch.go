package types

// BatchHeader is the sealed, atomic unit the pipeline hands off to the
// prover and, later, to L1 settlement. All roots are snapshots taken
// after every transaction in the batch has been applied.
type BatchHeader struct {
	BatchId uint64

	PrevAccountRoot Hash
	PostAccountRoot Hash

	PrevShieldedRoot Hash
	PostShieldedRoot Hash

	WithdrawalRoot Hash

	BatchHash Hash

	TxCount         uint64
	TransferCount   uint64
	WithdrawalCount uint64
	ShieldedCount   uint64

	SealedAtUnix int64
}
