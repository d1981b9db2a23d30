// Package readindex implements a best-effort pgx-backed mirror of
// sealed batch headers and per-transaction summaries, with lookup
// methods for queries that bbolt does not do well. internal/api does
// not query it; the HTTP API reads from the bbolt store.
// It is fed asynchronously after each batch seal and is never
// consulted by the pipeline for correctness — bbolt remains the sole
// source of truth.
package readindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zelana-labs/sequencer/pkg/types"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("readindex: not found")

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig mirrors the teacher's Postgres defaults.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "sequencer",
		Password: "",
		Database: "sequencer",
		SSLMode:  "disable",
		MaxConns: 10,
	}
}

// Index is a pgx-backed mirror of sealed batches and the transactions
// they contain.
type Index struct {
	pool *pgxpool.Pool
}

// TxSummary is one included transaction's read-index row.
type TxSummary struct {
	TxHash  types.Hash
	BatchId uint64
	Kind    string // "transfer", "withdraw", "deposit", "shielded"
	From    types.AccountId
	To      types.AccountId
	Amount  uint64
}

// Open connects to Postgres and ensures the read-index schema exists.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("readindex: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("readindex: ping: %w", err)
	}

	idx := &Index{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() {
	idx.pool.Close()
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	_, err := idx.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS batches (
			batch_id           BIGINT PRIMARY KEY,
			prev_account_root  BYTEA NOT NULL,
			post_account_root  BYTEA NOT NULL,
			prev_shielded_root BYTEA NOT NULL,
			post_shielded_root BYTEA NOT NULL,
			withdrawal_root    BYTEA NOT NULL,
			batch_hash         BYTEA NOT NULL,
			tx_count           BIGINT NOT NULL,
			transfer_count     BIGINT NOT NULL,
			withdrawal_count   BIGINT NOT NULL,
			shielded_count     BIGINT NOT NULL,
			sealed_at_unix     BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tx_index (
			tx_hash  BYTEA PRIMARY KEY,
			batch_id BIGINT NOT NULL REFERENCES batches(batch_id),
			kind     TEXT NOT NULL,
			from_id  BYTEA,
			to_id    BYTEA,
			amount   BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS tx_index_batch_id_idx ON tx_index(batch_id);
	`)
	if err != nil {
		return fmt.Errorf("readindex: ensure schema: %w", err)
	}
	return nil
}

// RecordBatch mirrors a sealed batch header and its included
// transaction summaries. Best-effort: callers should log a failure
// here, not treat it as fatal — the pipeline has already committed the
// authoritative state by the time this runs.
func (idx *Index) RecordBatch(ctx context.Context, header *types.BatchHeader, txs []TxSummary) error {
	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("readindex: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO batches (
			batch_id, prev_account_root, post_account_root, prev_shielded_root,
			post_shielded_root, withdrawal_root, batch_hash, tx_count,
			transfer_count, withdrawal_count, shielded_count, sealed_at_unix
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (batch_id) DO NOTHING
	`,
		header.BatchId,
		header.PrevAccountRoot[:],
		header.PostAccountRoot[:],
		header.PrevShieldedRoot[:],
		header.PostShieldedRoot[:],
		header.WithdrawalRoot[:],
		header.BatchHash[:],
		header.TxCount,
		header.TransferCount,
		header.WithdrawalCount,
		header.ShieldedCount,
		header.SealedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("readindex: insert batch: %w", err)
	}

	for _, t := range txs {
		_, err = tx.Exec(ctx, `
			INSERT INTO tx_index (tx_hash, batch_id, kind, from_id, to_id, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tx_hash) DO NOTHING
		`, t.TxHash[:], t.BatchId, t.Kind, nullIfEmptyAccount(t.From), nullIfEmptyAccount(t.To), t.Amount)
		if err != nil {
			return fmt.Errorf("readindex: insert tx: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("readindex: commit: %w", err)
	}
	return nil
}

// LatestBatch returns the most recently sealed batch header.
func (idx *Index) LatestBatch(ctx context.Context) (*types.BatchHeader, error) {
	row := idx.pool.QueryRow(ctx, `
		SELECT batch_id, prev_account_root, post_account_root, prev_shielded_root,
			   post_shielded_root, withdrawal_root, batch_hash, tx_count,
			   transfer_count, withdrawal_count, shielded_count, sealed_at_unix
		FROM batches ORDER BY batch_id DESC LIMIT 1
	`)
	return scanBatchHeader(row)
}

// BatchByID returns a single sealed batch header by id.
func (idx *Index) BatchByID(ctx context.Context, batchID uint64) (*types.BatchHeader, error) {
	row := idx.pool.QueryRow(ctx, `
		SELECT batch_id, prev_account_root, post_account_root, prev_shielded_root,
			   post_shielded_root, withdrawal_root, batch_hash, tx_count,
			   transfer_count, withdrawal_count, shielded_count, sealed_at_unix
		FROM batches WHERE batch_id = $1
	`, batchID)
	return scanBatchHeader(row)
}

// TxByHash returns the read-index summary for a single transaction.
func (idx *Index) TxByHash(ctx context.Context, txHash types.Hash) (*TxSummary, error) {
	var (
		s            TxSummary
		fromID, toID []byte
		hashCol      []byte
	)
	row := idx.pool.QueryRow(ctx, `
		SELECT tx_hash, batch_id, kind, from_id, to_id, amount
		FROM tx_index WHERE tx_hash = $1
	`, txHash[:])
	if err := row.Scan(&hashCol, &s.BatchId, &s.Kind, &fromID, &toID, &s.Amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("readindex: tx by hash: %w", err)
	}
	s.TxHash = types.HashFromBytes(hashCol)
	if fromID != nil {
		s.From = types.AccountIdFromBytes(fromID)
	}
	if toID != nil {
		s.To = types.AccountIdFromBytes(toID)
	}
	return &s, nil
}

func scanBatchHeader(row pgx.Row) (*types.BatchHeader, error) {
	var (
		h                                               types.BatchHeader
		prevAcct, postAcct, prevShielded, postShielded []byte
		withdrawalRoot, batchHash                      []byte
	)
	if err := row.Scan(
		&h.BatchId, &prevAcct, &postAcct, &prevShielded, &postShielded,
		&withdrawalRoot, &batchHash, &h.TxCount, &h.TransferCount,
		&h.WithdrawalCount, &h.ShieldedCount, &h.SealedAtUnix,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("readindex: scan batch header: %w", err)
	}
	h.PrevAccountRoot = types.HashFromBytes(prevAcct)
	h.PostAccountRoot = types.HashFromBytes(postAcct)
	h.PrevShieldedRoot = types.HashFromBytes(prevShielded)
	h.PostShieldedRoot = types.HashFromBytes(postShielded)
	h.WithdrawalRoot = types.HashFromBytes(withdrawalRoot)
	h.BatchHash = types.HashFromBytes(batchHash)
	return &h, nil
}

func nullIfEmptyAccount(a types.AccountId) interface{} {
	if a == types.EmptyAccountId {
		return nil
	}
	return a[:]
}
