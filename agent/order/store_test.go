package order

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "orders.db")
	store, err := Open(context.Background(), StoreConfig{DSN: dsn, MaxAttempts: 5}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	seeded, err := store.Seed(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)
	return store
}

func TestStoreSeedOnlyWhenEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	seeded, err := store.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	orders, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 4)
	assert.Equal(t, SeedOrders(), orders)
}

func TestStoreGetNotFound(t *testing.T) {
	t.Parallel()

	_, err := newTestStore(t).Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStoreCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		id         int64
		wantKind   OutcomeKind
		wantStatus Status
	}{
		{name: "processing cancels", id: 1002, wantKind: OutcomeOK, wantStatus: StatusCancelled},
		{name: "shipped is illegal", id: 1001, wantKind: OutcomeIllegalTransition, wantStatus: StatusShipped},
		{name: "delivered is illegal", id: 1003, wantKind: OutcomeIllegalTransition, wantStatus: StatusDelivered},
		{name: "cancelled stays cancelled", id: 1004, wantKind: OutcomeOK, wantStatus: StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := newTestStore(t)

			out, err := store.Cancel(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.id, out.OrderID)

			got, err := store.Get(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestStoreCancelReportsObservedStatus(t *testing.T) {
	t.Parallel()

	out, err := newTestStore(t).Cancel(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIllegalTransition, out.Kind)
	assert.Equal(t, StatusShipped, out.Current)
}

func TestStoreReturn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	out, err := store.Return(ctx, 1003)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, StatusDelivered, out.Current)
	assert.Equal(t, StatusReturned, out.Next)

	got, err := store.Get(ctx, 1003)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, got.Status)

	for _, id := range []int64{1001, 1002, 1003, 1004} {
		before, err := store.Get(ctx, id)
		require.NoError(t, err)

		out, err := store.Return(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, OutcomeIllegalTransition, out.Kind, "order %d", id)
		assert.Equal(t, before.Status, out.Current)

		after, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.Status, after.Status)
	}
}

func TestStoreMissingOrderOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	out, err := store.Cancel(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)

	out, err = store.Return(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)

	orders, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedOrders(), orders)
}

func TestStoreRepeatedFailuresNeverMutate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		out, err := store.Cancel(ctx, 1001)
		require.NoError(t, err)
		require.Equal(t, OutcomeIllegalTransition, out.Kind)

		out, err = store.Return(ctx, 1002)
		require.NoError(t, err)
		require.Equal(t, OutcomeIllegalTransition, out.Kind)
	}

	orders, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedOrders(), orders)
}

func TestStoreStrictRulesBlockTerminalCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, WithRules(Rules{BlockTerminalCancel: true}))

	out, err := store.Cancel(ctx, 1004)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIllegalTransition, out.Kind)
	assert.Equal(t, StatusCancelled, out.Current)
}

func TestStoreConcurrentReturnSucceedsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	const workers = 8
	outcomes := runConcurrently(t, workers, func() (Outcome, error) {
		return store.Return(ctx, 1003)
	})

	ok := 0
	for _, out := range outcomes {
		if out.OK() {
			ok++
			continue
		}
		assert.Equal(t, OutcomeIllegalTransition, out.Kind)
		assert.Equal(t, StatusReturned, out.Current)
	}
	assert.Equal(t, 1, ok)
}

func TestStoreConcurrentStrictCancelSucceedsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, WithRules(Rules{BlockTerminalCancel: true}))

	outcomes := runConcurrently(t, 8, func() (Outcome, error) {
		return store.Cancel(ctx, 1002)
	})

	ok := 0
	for _, out := range outcomes {
		if out.OK() {
			ok++
		}
	}
	assert.Equal(t, 1, ok)

	got, err := store.Get(ctx, 1002)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestStoreRejectsCorruptStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.db.NewUpdate().Model((*orderRow)(nil)).
		Set("status = ?", "Lost").
		Where("order_id = ?", 1001).
		Exec(ctx)
	require.NoError(t, err)

	_, err = store.Get(ctx, 1001)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = store.Cancel(ctx, 1001)
	assert.True(t, errors.Is(err, ErrInvalidStatus), "got %v", err)
}

func runConcurrently(t *testing.T, n int, fn func() (Outcome, error)) []Outcome {
	t.Helper()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
		errs     []error
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := fn()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			outcomes = append(outcomes, out)
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs, fmt.Sprint(errs))
	require.Len(t, outcomes, n)
	return outcomes
}

func TestStoreGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t, WithMaxAttempts(3))

	// Every status update is silently dropped, so each compare-and-set misses.
	_, err := store.db.ExecContext(ctx, `CREATE TRIGGER orders_freeze BEFORE UPDATE ON orders BEGIN SELECT RAISE(IGNORE); END`)
	require.NoError(t, err)

	_, err = store.Cancel(ctx, 1002)
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	o, err := store.Get(ctx, 1002)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, o.Status)
}
