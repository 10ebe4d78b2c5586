package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/recovery"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testState(t *testing.T, id string) paper.State {
	t.Helper()
	a, err := paper.NewAccount(paper.Config{ID: id, Ledger: paper.LedgerConfig{InitialBalance: 10000}}, logger.Nop())
	require.NoError(t, err)

	_, err = a.ProcessTick(types.Tick{Symbol: "BTCUSDT", Price: 50000, Timestamp: t0})
	require.NoError(t, err)
	_, _, err = a.PlaceOrder(paper.OrderRequest{Symbol: "BTCUSDT", Type: paper.OrderTypeMarket, Side: types.SideBuy, Quantity: 0.1})
	require.NoError(t, err)
	_, _, err = a.PlaceOrder(paper.OrderRequest{Symbol: "BTCUSDT", Type: paper.OrderTypeLimit, Side: types.SideBuy, Quantity: 0.02, Price: 45000})
	require.NoError(t, err)
	return a.State()
}

func TestFileStore_SaveLoadRestore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	st := testState(t, "acct-1")
	require.NoError(t, store.Save(ctx, st))

	loaded, err := store.Load(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, st.ID, loaded.ID)
	assert.InDelta(t, st.Balance.Cash, loaded.Balance.Cash, 1e-9)
	assert.InDelta(t, st.Balance.Locked, loaded.Balance.Locked, 1e-9)
	assert.Len(t, loaded.OpenPositions, 1)
	assert.Len(t, loaded.Orders, 2)
	assert.Len(t, loaded.Trades, 1)

	restored, err := Restore(ctx, store, "acct-1", logger.Nop())
	require.NoError(t, err)
	assert.Len(t, restored.PendingOrders(), 1)
	assert.Len(t, restored.OpenPositions(), 1)
	assert.InDelta(t, st.Balance.Equity, restored.Balance().Equity, 1e-6)

	_, err = os.Stat(filepath.Join(store.Dir(), "acct-1_state.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestFileStore_BackupAndList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, testState(t, "b")))
	require.NoError(t, store.Save(ctx, testState(t, "b")))
	require.NoError(t, store.Save(ctx, testState(t, "a")))

	_, err = os.Stat(filepath.Join(store.Dir(), "b_state_backup.json"))
	assert.NoError(t, err, "second save keeps the previous state as backup")

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "b"))
	require.NoError(t, store.Delete(ctx, "b"))
	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestFileStore_Errors(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, store.Save(ctx, paper.State{}))
	_, err = store.Load(ctx, "../escape")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken_state.json"), []byte("{"), 0644))
	_, err = store.Load(ctx, "broken")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Save(cancelled, testState(t, "c")), context.Canceled)
}

func TestRedisStore_Save(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(db, "", 0)
	ctx := context.Background()

	st := testState(t, "acct-r")
	data, err := json.Marshal(&st)
	require.NoError(t, err)

	t.Run("stores json under prefixed key", func(t *testing.T) {
		mock.ExpectSet("paper:account:acct-r", data, 0).SetVal("OK")
		require.NoError(t, store.Save(ctx, st))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error is returned", func(t *testing.T) {
		mock.ExpectSet("paper:account:acct-r", data, 0).SetErr(redis.TxFailedErr)
		assert.Error(t, store.Save(ctx, st))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, paper.State{}))
	})
}

func TestRedisStore_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStoreWithClient(db, "sim:", time.Hour)
	ctx := context.Background()

	st := testState(t, "acct-r")
	data, err := json.Marshal(&st)
	require.NoError(t, err)

	t.Run("hit decodes state", func(t *testing.T) {
		mock.ExpectGet("sim:acct-r").SetVal(string(data))
		loaded, err := store.Load(ctx, "acct-r")
		require.NoError(t, err)
		assert.Equal(t, "acct-r", loaded.ID)
		assert.Len(t, loaded.Orders, 2)
		assert.InDelta(t, st.Balance.Reserved, loaded.Balance.Reserved, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss is ErrNotFound", func(t *testing.T) {
		mock.ExpectGet("sim:other").RedisNil()
		_, err := store.Load(ctx, "other")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectDel("sim:acct-r").SetVal(1)
		assert.NoError(t, store.Delete(ctx, "acct-r"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

type flakyStore struct {
	SnapshotStore
	failures int
	calls    int
}

func (f *flakyStore) Save(ctx context.Context, st paper.State) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return f.SnapshotStore.Save(ctx, st)
}

func (f *flakyStore) Load(ctx context.Context, accountID string) (paper.State, error) {
	f.calls++
	return f.SnapshotStore.Load(ctx, accountID)
}

func TestRetryingStore(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileStore(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	flaky := &flakyStore{SnapshotStore: files, failures: 1}
	store := NewRetryingStore(flaky, recovery.NewRecoveryHandler(recovery.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, logger.Nop()))

	st := testState(t, "acct-retry")
	require.NoError(t, store.Save(ctx, st))
	assert.Equal(t, 2, flaky.calls)

	loaded, err := store.Load(ctx, "acct-retry")
	require.NoError(t, err)
	assert.Equal(t, st.ID, loaded.ID)

	flaky.calls = 0
	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, flaky.calls)

	require.NoError(t, store.Delete(ctx, "acct-retry"))
	_, err = files.Load(ctx, "acct-retry")
	assert.ErrorIs(t, err, ErrNotFound)
}
