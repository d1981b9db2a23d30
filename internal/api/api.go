// Package api implements the sequencer's HTTP surface: account lookups
// and batch status, as named in spec.md's external interfaces section,
// plus a manual deposit-replay endpoint. Deposit replay submits a
// deposit to the pipeline; apart from that, the API never mutates
// pipeline or store state.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// StatusSource reports the pipeline's current batch-in-progress
// counters, without exposing mutation.
type StatusSource interface {
	MempoolSize() int
}

// DepositSubmitter admits a deposit event into the pipeline, bypassing
// the (unconfigured) L1 log subscription. Used only by the operator's
// manual replay path.
type DepositSubmitter interface {
	SubmitDeposit(ctx context.Context, ev types.DepositEvent) error
}

// Server answers GET /health, GET /account/{hex_id}, POST /account,
// GET /batch/latest, GET /status/batch, and POST /deposit/replay.
type Server struct {
	store   *store.Store
	status  StatusSource
	deposit DepositSubmitter
	log     *logrus.Entry
}

// New builds a Server. status may be nil if batch-in-progress
// reporting isn't wired (status/batch then reports only sealed state).
// deposit may be nil, in which case /deposit/replay is disabled.
func New(st *store.Store, status StatusSource, deposit DepositSubmitter, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{store: st, status: status, deposit: deposit, log: log.WithField("component", "api")}
}

// Handler builds the HTTP mux for this server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/account/", s.handleAccountByPath)
	mux.HandleFunc("/account", s.handleAccountPost)
	mux.HandleFunc("/batch/latest", s.handleBatchLatest)
	mux.HandleFunc("/status/batch", s.handleStatusBatch)
	mux.HandleFunc("/deposit/replay", s.handleDepositReplay)
	return mux
}

// envelope is the uniform response shape spec.md §6 requires.
type envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Status: "error", Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"time": time.Now().UTC().Format(time.RFC3339)})
}

type accountResponse struct {
	AccountId string `json:"account_id"`
	Balance   uint64 `json:"balance"`
	Nonce     uint64 `json:"nonce"`
}

func (s *Server) lookupAccount(hexID string) (accountResponse, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexID))
	if err != nil {
		return accountResponse{}, err
	}
	id := types.AccountIdFromBytes(raw)
	// Unknown ids return the zero balance/nonce, per spec.md's "unknown
	// ids return zero balances" — GetAccount's found flag is ignored.
	state, _, err := s.store.GetAccount(id)
	if err != nil {
		return accountResponse{}, err
	}
	return accountResponse{AccountId: id.String(), Balance: state.Balance, Nonce: state.Nonce}, nil
}

func (s *Server) handleAccountByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hexID := strings.TrimPrefix(r.URL.Path, "/account/")
	if hexID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}
	resp, err := s.lookupAccount(hexID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id: "+err.Error())
		return
	}
	writeOK(w, resp)
}

func (s *Server) handleAccountPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		AccountId string `json:"account_id"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.lookupAccount(req.AccountId)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id: "+err.Error())
		return
	}
	writeOK(w, resp)
}

type batchResponse struct {
	BatchId          uint64 `json:"batch_id"`
	PrevAccountRoot  string `json:"prev_account_root"`
	PostAccountRoot  string `json:"post_account_root"`
	PrevShieldedRoot string `json:"prev_shielded_root"`
	PostShieldedRoot string `json:"post_shielded_root"`
	WithdrawalRoot   string `json:"withdrawal_root"`
	BatchHash        string `json:"batch_hash"`
	TxCount          uint64 `json:"tx_count"`
	TransferCount    uint64 `json:"transfer_count"`
	WithdrawalCount  uint64 `json:"withdrawal_count"`
	ShieldedCount    uint64 `json:"shielded_count"`
	SealedAtUnix     int64  `json:"sealed_at_unix"`
}

func toBatchResponse(h *types.BatchHeader) batchResponse {
	return batchResponse{
		BatchId:          h.BatchId,
		PrevAccountRoot:  h.PrevAccountRoot.String(),
		PostAccountRoot:  h.PostAccountRoot.String(),
		PrevShieldedRoot: h.PrevShieldedRoot.String(),
		PostShieldedRoot: h.PostShieldedRoot.String(),
		WithdrawalRoot:   h.WithdrawalRoot.String(),
		BatchHash:        h.BatchHash.String(),
		TxCount:          h.TxCount,
		TransferCount:    h.TransferCount,
		WithdrawalCount:  h.WithdrawalCount,
		ShieldedCount:    h.ShieldedCount,
		SealedAtUnix:     h.SealedAtUnix,
	}
}

func (s *Server) handleBatchLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	nextID, err := s.store.GetNextBatchId()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read batch counter")
		return
	}
	if nextID <= 1 {
		writeError(w, http.StatusNotFound, "no batch sealed yet")
		return
	}
	header, found, err := s.store.GetBatchHeader(nextID - 1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load batch header")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no batch sealed yet")
		return
	}
	writeOK(w, toBatchResponse(header))
}

func (s *Server) handleStatusBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	nextID, err := s.store.GetNextBatchId()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read batch counter")
		return
	}
	resp := map[string]interface{}{
		"next_batch_id": nextID,
	}
	if s.status != nil {
		resp["mempool_size"] = s.status.MempoolSize()
	}
	writeOK(w, resp)
}

// handleDepositReplay submits a deposit event directly, for operators
// recovering from a gap in (or the absence of) an L1 log subscription.
// It is not a substitute for exactly-once L1 indexing: a replayed
// deposit skips internal/deposit's dedup bookkeeping entirely, so
// replaying the same L1 sequence number twice double-credits it.
func (s *Server) handleDepositReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deposit == nil {
		writeError(w, http.StatusServiceUnavailable, "deposit replay is not enabled")
		return
	}
	var req struct {
		AccountId string `json:"account_id"`
		Amount    uint64 `json:"amount"`
		L1Seq     uint64 `json:"l1_seq"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw, err := hex.DecodeString(strings.TrimSpace(req.AccountId))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id: "+err.Error())
		return
	}
	ev := types.DepositEvent{To: types.AccountIdFromBytes(raw), Amount: req.Amount, L1Seq: req.L1Seq}
	if err := s.deposit.SubmitDeposit(r.Context(), ev); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to submit deposit: "+err.Error())
		return
	}
	s.log.WithField("l1_seq", req.L1Seq).Warn("deposit replayed manually via API")
	writeOK(w, map[string]string{"tx_hash": ev.TxHash().String()})
}
