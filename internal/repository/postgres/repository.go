package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

// SQLSTATE кодов, при которых транзакцию имеет смысл повторить
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const retryBackoff = 10 * time.Millisecond

var (
	_ repository.StockRepository  = (*Repository)(nil)
	_ repository.OutboxRepository = (*Repository)(nil)
)

// Repository реализует StockRepository используя PostgreSQL.
// Блокировки строк - SELECT ... FOR UPDATE внутри транзакции READ COMMITTED.
type Repository struct {
	pool      *pgxpool.Pool
	txRetries int
}

// NewRepository создаёт новый PostgreSQL репозиторий.
// txRetries - сколько раз повторить транзакцию после serialization failure/deadlock.
func NewRepository(pool *pgxpool.Pool, txRetries int) *Repository {
	if txRetries < 0 {
		txRetries = 0
	}
	return &Repository{
		pool:      pool,
		txRetries: txRetries,
	}
}

// InTx выполняет fn в транзакции. fn может быть вызвана повторно, если PostgreSQL
// отменил транзакцию из-за deadlock или serialization failure.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt >= r.txRetries {
			return fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
}

func (r *Repository) runTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	// Rollback после Commit ничего не делает
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// GetStock читает запись без блокировки
func (r *Repository) GetStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	return scanStock(r.pool.QueryRow(ctx, selectStock+` WHERE product_id = $1 AND variant_id = $2 AND location = $3`,
		key.ProductID, key.VariantID, key.Location))
}

// GetReservation читает резерв без блокировки
func (r *Repository) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return repository.Reservation{}, repository.ErrNotFound
	}
	return scanReservation(r.pool.QueryRow(ctx, selectReservation+` WHERE r.id = $1`, rid))
}

// ListMovements возвращает последние limit движений по ключу, новые первыми
func (r *Repository) ListMovements(ctx context.Context, key repository.StockKey, limit int) ([]repository.Movement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.stock_record_id, s.product_id, s.variant_id, s.location,
		        m.quantity_delta, m.movement_kind, COALESCE(m.reservation_id::text, ''), m.note, m.created_at
		 FROM stock_movements m
		 JOIN stock_records s ON s.id = m.stock_record_id
		 WHERE s.product_id = $1 AND s.variant_id = $2 AND s.location = $3
		 ORDER BY m.id DESC
		 LIMIT $4`,
		key.ProductID, key.VariantID, key.Location, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]repository.Movement, 0)
	for rows.Next() {
		var (
			m    repository.Movement
			kind string
		)
		if err := rows.Scan(&m.ID, &m.StockRecordID, &m.Key.ProductID, &m.Key.VariantID, &m.Key.Location,
			&m.QuantityDelta, &kind, &m.ReservationID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = repository.MovementKind(kind)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// Ping проверяет соединение с PostgreSQL
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetPendingOutboxEvents возвращает неотправленные события в порядке записи.
// Неудачные попытки (status = failed) тоже попадают в выборку.
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_id::text, aggregate_id, topic, payload, created_at
		 FROM stock_outbox
		 WHERE status <> 'sent'
		 ORDER BY seq
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]repository.OutboxEvent, 0)
	for rows.Next() {
		var e repository.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.Topic, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkOutboxEventSent помечает событие отправленным
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.updateOutbox(ctx, eventID,
		`UPDATE stock_outbox
		 SET status = 'sent', attempts = attempts + 1, sent_at = now(), last_error = NULL
		 WHERE event_id = $1`)
}

// MarkOutboxEventFailed фиксирует неудачную попытку публикации
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errMsg string) error {
	return r.updateOutbox(ctx, eventID,
		`UPDATE stock_outbox
		 SET status = 'failed', attempts = attempts + 1, last_error = $2
		 WHERE event_id = $1`, errMsg)
}

func (r *Repository) updateOutbox(ctx context.Context, eventID string, query string, args ...any) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return repository.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const (
	selectStock = `SELECT id, product_id, variant_id, location, quantity_available, quantity_reserved, updated_at
		 FROM stock_records`

	selectReservation = `SELECT r.id::text, r.stock_record_id, s.product_id, s.variant_id, s.location,
		        r.quantity, r.status, r.reference, r.created_at, r.updated_at
		 FROM stock_reservations r
		 JOIN stock_records s ON s.id = r.stock_record_id`
)

func scanStock(row pgx.Row) (repository.StockRecord, error) {
	var rec repository.StockRecord
	err := row.Scan(&rec.ID, &rec.Key.ProductID, &rec.Key.VariantID, &rec.Key.Location,
		&rec.QuantityAvailable, &rec.QuantityReserved, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.StockRecord{}, repository.ErrNotFound
		}
		return repository.StockRecord{}, err
	}
	return rec, nil
}

func scanReservation(row pgx.Row) (repository.Reservation, error) {
	var (
		res    repository.Reservation
		status string
	)
	err := row.Scan(&res.ID, &res.StockRecordID, &res.Key.ProductID, &res.Key.VariantID, &res.Key.Location,
		&res.Quantity, &status, &res.Reference, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Reservation{}, repository.ErrNotFound
		}
		return repository.Reservation{}, err
	}
	res.Status = repository.ReservationStatus(status)
	return res, nil
}
