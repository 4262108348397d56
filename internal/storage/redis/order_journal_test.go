package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/orders"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	mu      sync.Mutex
	items   map[string][]string
	pushErr error
	closed  bool
}

func newFakeList() *fakeList {
	return &fakeList{items: make(map[string][]string)}
}

func (f *fakeList) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case []byte:
			s = string(val)
		default:
			s = fmt.Sprint(val)
		}
		f.items[key] = append([]string{s}, f.items[key]...)
	}
	return redis.NewIntResult(int64(len(f.items[key])), nil)
}

func (f *fakeList) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = slice(f.items[key], start, stop)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeList) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewStringSliceResult(slice(f.items[key], start, stop), nil)
}

func (f *fakeList) Close() error {
	f.closed = true
	return nil
}

func slice(items []string, start, stop int64) []string {
	if stop >= int64(len(items)) {
		stop = int64(len(items)) - 1
	}
	if start > stop {
		return nil
	}
	return append([]string(nil), items[start:stop+1]...)
}

func TestRecordKeepsNewestFirst(t *testing.T) {
	client := newFakeList()
	journal := newOrderJournal(client, Config{})

	ctx := context.Background()
	require.NoError(t, journal.Record(ctx, orders.Order{OrderID: "ord_1"}))
	require.NoError(t, journal.Record(ctx, orders.Order{OrderID: "ord_2"}))

	list, err := journal.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ord_2", list[0].OrderID)
	assert.Equal(t, "ord_1", list[1].OrderID)
	assert.NotEmpty(t, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())
	assert.Contains(t, client.items, defaultKey)
}

func TestRecordTrimsToMaxEntries(t *testing.T) {
	client := newFakeList()
	journal := newOrderJournal(client, Config{Key: "orders", MaxEntries: 2})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Record(ctx, orders.Order{OrderID: fmt.Sprintf("ord_%d", i)}))
	}
	assert.Len(t, client.items["orders"], 2)

	list, err := journal.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ord_4", list[0].OrderID)
}

func TestRecentSkipsCorruptEntries(t *testing.T) {
	client := newFakeList()
	client.items[defaultKey] = []string{"not-json", `{"order_id":"ord_9"}`}
	journal := newOrderJournal(client, Config{})

	list, err := journal.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ord_9", list[0].OrderID)
}

func TestRecordFailureIsStorageError(t *testing.T) {
	client := newFakeList()
	client.pushErr = errors.New("READONLY")
	journal := newOrderJournal(client, Config{})

	err := journal.Record(context.Background(), orders.Order{OrderID: "ord_1"})
	assert.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
}

func TestNewOrderJournalRequiresAddress(t *testing.T) {
	_, err := NewOrderJournal(context.Background(), Config{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestCloseClosesClient(t *testing.T) {
	client := newFakeList()
	journal := newOrderJournal(client, Config{})
	require.NoError(t, journal.Close())
	assert.True(t, client.closed)
}
