package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/internal/store"
	"github.com/zelana-labs/sequencer/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil, nil, nil), st
}

type stubDepositSubmitter struct {
	lastEvent types.DepositEvent
	err       error
}

func (s *stubDepositSubmitter) SubmitDeposit(ctx context.Context, ev types.DepositEvent) error {
	s.lastEvent = ev
	return s.err
}

func TestDepositReplayDisabledByDefault(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/deposit/replay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDepositReplaySubmitsEvent(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sub := &stubDepositSubmitter{}
	s := New(st, nil, sub, nil)

	id := types.AccountIdFromBytes([]byte{7})
	body := `{"account_id":"` + id.String() + `","amount":500,"l1_seq":1}`
	req := httptest.NewRequest(http.MethodPost, "/deposit/replay", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, id, sub.lastEvent.To)
	require.EqualValues(t, 500, sub.lastEvent.Amount)
}

func TestHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "ok", env.Status)
}

func TestUnknownAccountReturnsZeroBalance(t *testing.T) {
	s, _ := newTestServer(t)
	id := types.AccountIdFromBytes([]byte{1, 2, 3})
	req := httptest.NewRequest(http.MethodGet, "/account/"+id.String(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]interface{})
	require.EqualValues(t, 0, data["balance"])
}

func TestAccountReflectsStoredBalance(t *testing.T) {
	s, st := newTestServer(t)
	id := types.AccountIdFromBytes([]byte{9, 9})

	b := store.NewBatch()
	b.PutAccount(id, types.AccountState{Balance: 777, Nonce: 3})
	require.NoError(t, st.Commit(b))

	req := httptest.NewRequest(http.MethodGet, "/account/"+id.String(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]interface{})
	require.EqualValues(t, 777, data["balance"])
	require.EqualValues(t, 3, data["nonce"])
}

func TestAccountPostMirrorsGet(t *testing.T) {
	s, _ := newTestServer(t)
	id := types.AccountIdFromBytes([]byte{5})

	body := strings.NewReader(`{"account_id":"` + id.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/account", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchLatestNotFoundBeforeAnySeal(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/batch/latest", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchLatestReturnsSealedHeader(t *testing.T) {
	s, st := newTestServer(t)

	header := &types.BatchHeader{BatchId: 1, TxCount: 2}
	b := store.NewBatch()
	b.SetHeader(header)
	b.SetNextBatchId(2)
	require.NoError(t, st.Commit(b))

	req := httptest.NewRequest(http.MethodGet, "/batch/latest", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]interface{})
	require.EqualValues(t, 1, data["batch_id"])
}
