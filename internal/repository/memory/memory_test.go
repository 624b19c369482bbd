package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

var key = repository.StockKey{ProductID: "product-1", Location: "store-1"}

func seed(t *testing.T, r *Repository, available int32) repository.StockRecord {
	t.Helper()

	var rec repository.StockRecord
	err := r.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		rec, err = tx.CreateStock(ctx, key)
		if err != nil {
			return err
		}
		rec.QuantityAvailable = available
		return tx.UpdateStock(ctx, rec)
	})
	require.NoError(t, err)
	return rec
}

func TestRepository_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	rec := seed(t, r, 10)

	boom := errors.New("boom")
	err := r.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		locked, err := tx.LockStock(ctx, key)
		require.NoError(t, err)

		locked.QuantityAvailable = 1
		locked.QuantityReserved = 9
		require.NoError(t, tx.UpdateStock(ctx, locked))
		require.NoError(t, tx.InsertReservation(ctx, repository.Reservation{ID: "res-1", StockRecordID: rec.ID, Quantity: 9}))
		require.NoError(t, tx.AppendMovement(ctx, repository.Movement{Key: key, Kind: repository.MovementReserve, QuantityDelta: -9}))
		require.NoError(t, tx.AppendOutbox(ctx, repository.OutboxEvent{EventID: "evt-1"}))

		// внутри транзакции изменения видны
		again, err := tx.LockStockByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, int32(1), again.QuantityAvailable)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.GetStock(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int32(10), got.QuantityAvailable)
	require.Equal(t, int32(0), got.QuantityReserved)

	_, err = r.GetReservation(ctx, "res-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	movements, err := r.ListMovements(ctx, key, 10)
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestRepository_UpdateStockRejectsNegativeCounters(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	seed(t, r, 3)

	err := r.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rec, err := tx.LockStock(ctx, key)
		if err != nil {
			return err
		}
		rec.QuantityAvailable = -1
		return tx.UpdateStock(ctx, rec)
	})
	require.Error(t, err)

	got, err := r.GetStock(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int32(3), got.QuantityAvailable)
}

func TestRepository_CreateStockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	first := seed(t, r, 5)

	err := r.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rec, err := tx.CreateStock(ctx, key)
		require.NoError(t, err)
		require.Equal(t, first.ID, rec.ID)
		require.Equal(t, int32(5), rec.QuantityAvailable)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, r.Snapshot(), 1)
}

func TestRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()

	err := r.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
			if err := tx.AppendOutbox(ctx, repository.OutboxEvent{EventID: id, Topic: "stock.movements"}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	pending, err := r.GetPendingOutboxEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "evt-1", pending[0].EventID)

	require.NoError(t, r.MarkOutboxEventSent(ctx, "evt-1"))
	require.NoError(t, r.MarkOutboxEventFailed(ctx, "evt-2", "broker down"))
	require.ErrorIs(t, r.MarkOutboxEventSent(ctx, "missing"), repository.ErrNotFound)

	pending, err = r.GetPendingOutboxEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "evt-2", pending[0].EventID)
	require.Equal(t, "evt-3", pending[1].EventID)
}

func TestRepository_InTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewRepository().InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
