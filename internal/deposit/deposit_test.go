package deposit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zelana-labs/sequencer/pkg/types"
)

func TestParseLogLineBase58Pubkey(t *testing.T) {
	line := "ZE_DEPOSIT:11111111111111111111111111111111:1000:7"
	ev, ok := ParseLogLine(line)
	require.True(t, ok)
	require.Equal(t, uint64(1000), ev.Amount)
	require.Equal(t, uint64(7), ev.L1Seq)
}

func TestParseLogLineByteArrayPubkey(t *testing.T) {
	arr := "[1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32]"
	line := "ZE_DEPOSIT:" + arr + ":500:3"

	ev, ok := ParseLogLine(line)
	require.True(t, ok)
	require.Equal(t, uint64(500), ev.Amount)
	require.Equal(t, uint64(3), ev.L1Seq)
	require.Equal(t, byte(1), ev.To[0])
	require.Equal(t, byte(32), ev.To[31])
}

func TestParseLogLineRejectsMalformed(t *testing.T) {
	_, ok := ParseLogLine("ZE_DEPOSIT:not-enough-fields")
	require.False(t, ok)

	_, ok = ParseLogLine("not a deposit log at all")
	require.False(t, ok)
}

type fakeDedupStore struct {
	processed  map[uint64]uint64
	lastSlot   uint64
	haveSlot   bool
}

func newFakeDedupStore() *fakeDedupStore {
	return &fakeDedupStore{processed: make(map[uint64]uint64)}
}

func (f *fakeDedupStore) IsDepositProcessed(l1Seq uint64) (bool, error) {
	_, ok := f.processed[l1Seq]
	return ok, nil
}

func (f *fakeDedupStore) MarkDepositProcessed(l1Seq, slot uint64) error {
	f.processed[l1Seq] = slot
	return nil
}

func (f *fakeDedupStore) GetLastProcessedSlot() (uint64, bool, error) {
	return f.lastSlot, f.haveSlot, nil
}

func (f *fakeDedupStore) SetLastProcessedSlot(slot uint64) error {
	f.lastSlot = slot
	f.haveSlot = true
	return nil
}

type fakeSubmitter struct {
	submitted []types.DepositEvent
	fail      bool
}

func (f *fakeSubmitter) SubmitDeposit(ctx context.Context, ev types.DepositEvent) error {
	if f.fail {
		return context.DeadlineExceeded
	}
	f.submitted = append(f.submitted, ev)
	return nil
}

func TestHandleDepositSkipsDuplicate(t *testing.T) {
	store := newFakeDedupStore()
	sub := &fakeSubmitter{}
	idx := New(nil, store, sub, nil)

	ev := types.DepositEvent{To: types.AccountIdFromBytes([]byte{1}), Amount: 100, L1Seq: 5}
	idx.handleDeposit(10, ev)
	require.Len(t, sub.submitted, 1)

	idx.handleDeposit(11, ev)
	require.Len(t, sub.submitted, 1, "duplicate l1_seq must not be resubmitted")
}

func TestHandleDepositNotMarkedOnSubmitFailure(t *testing.T) {
	store := newFakeDedupStore()
	sub := &fakeSubmitter{fail: true}
	idx := New(nil, store, sub, nil)

	ev := types.DepositEvent{To: types.AccountIdFromBytes([]byte{2}), Amount: 50, L1Seq: 9}
	idx.handleDeposit(10, ev)

	processed, _ := store.IsDepositProcessed(9)
	require.False(t, processed, "failed submission must not mark the deposit processed")
}

type fakeHistoricalSource struct {
	fromSlot uint64
}

func (f *fakeHistoricalSource) FetchRange(ctx context.Context, fromSlot uint64, onBatch func(LogBatch) error) error {
	f.fromSlot = fromSlot
	return onBatch(LogBatch{Slot: fromSlot + 1, Lines: []string{"ZE_DEPOSIT:11111111111111111111111111111112:10:1"}})
}

func TestReconcileReplaysFromLastProcessedSlot(t *testing.T) {
	store := newFakeDedupStore()
	store.lastSlot = 42
	store.haveSlot = true
	sub := &fakeSubmitter{}
	idx := New(nil, store, sub, nil)

	hist := &fakeHistoricalSource{}
	require.NoError(t, idx.Reconcile(context.Background(), hist))
	require.Equal(t, uint64(42), hist.fromSlot)
	require.Len(t, sub.submitted, 1)
}
