package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

// pgTx реализует repository.Tx поверх pgx.Tx
type pgTx struct {
	tx pgx.Tx
}

var _ repository.Tx = (*pgTx)(nil)

func (t *pgTx) LockStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	return scanStock(t.tx.QueryRow(ctx,
		selectStock+` WHERE product_id = $1 AND variant_id = $2 AND location = $3 FOR UPDATE`,
		key.ProductID, key.VariantID, key.Location))
}

func (t *pgTx) LockStockByID(ctx context.Context, id int64) (repository.StockRecord, error) {
	return scanStock(t.tx.QueryRow(ctx, selectStock+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LockReservation(ctx context.Context, id string) (repository.Reservation, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return repository.Reservation{}, repository.ErrNotFound
	}
	// блокируем только строку резерва, запись склада блокируется следующим шагом
	return scanReservation(t.tx.QueryRow(ctx, selectReservation+` WHERE r.id = $1 FOR UPDATE OF r`, rid))
}

func (t *pgTx) CreateStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stock_records (product_id, variant_id, location)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (product_id, variant_id, location) DO NOTHING`,
		key.ProductID, key.VariantID, key.Location)
	if err != nil {
		return repository.StockRecord{}, err
	}
	return t.LockStock(ctx, key)
}

func (t *pgTx) UpdateStock(ctx context.Context, rec repository.StockRecord) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE stock_records
		 SET quantity_available = $2, quantity_reserved = $3, updated_at = $4
		 WHERE id = $1`,
		rec.ID, rec.QuantityAvailable, rec.QuantityReserved, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertReservation(ctx context.Context, res repository.Reservation) error {
	rid, err := uuid.Parse(res.ID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO stock_reservations (id, stock_record_id, quantity, status, reference, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rid, res.StockRecordID, res.Quantity, string(res.Status), res.Reference, res.CreatedAt, res.UpdatedAt)
	return err
}

func (t *pgTx) UpdateReservation(ctx context.Context, res repository.Reservation) error {
	rid, err := uuid.Parse(res.ID)
	if err != nil {
		return repository.ErrNotFound
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE stock_reservations
		 SET quantity = $2, status = $3, updated_at = $4
		 WHERE id = $1`,
		rid, res.Quantity, string(res.Status), res.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendMovement(ctx context.Context, m repository.Movement) error {
	var reservationID *uuid.UUID
	if m.ReservationID != "" {
		rid, err := uuid.Parse(m.ReservationID)
		if err != nil {
			return err
		}
		reservationID = &rid
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO stock_movements (stock_record_id, quantity_delta, movement_kind, reservation_id, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.StockRecordID, m.QuantityDelta, string(m.Kind), reservationID, m.Note, m.CreatedAt)
	return err
}

func (t *pgTx) AppendOutbox(ctx context.Context, e repository.OutboxEvent) error {
	eid, err := uuid.Parse(e.EventID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO stock_outbox (event_id, aggregate_id, topic, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		eid, e.AggregateID, e.Topic, e.Payload, e.CreatedAt)
	return err
}
