package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

const (
	defaultMovementsLimit = 50
	maxMovementsLimit     = 500
)

// StockLedger держит разбиение остатка на available/reserved для каждой записи склада.
// Каждая операция - одна транзакция хранилища: блокировка строки, проверка, запись счётчиков,
// запись движения в журнал и события в outbox. Либо всё, либо ничего.
type StockLedger struct {
	repo           repository.StockRepository
	logger         *zap.Logger
	metrics        Metrics
	movementsTopic string

	now   func() time.Time
	newID func() string
}

// NewStockLedger создаёт журнал резервов.
// movementsTopic - топик Kafka, в который outbox dispatcher опубликует события движений.
func NewStockLedger(repo repository.StockRepository, logger *zap.Logger, metrics Metrics, movementsTopic string) *StockLedger {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &StockLedger{
		repo:           repo,
		logger:         logger,
		metrics:        metrics,
		movementsTopic: movementsTopic,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// ReserveInput входные данные для резерва
type ReserveInput struct {
	Key      repository.StockKey
	Quantity int32
	// Reference внешний идентификатор строки заказа, сохраняется в резерве
	Reference string
	Note      string
}

// RestockInput входные данные для поступления товара
type RestockInput struct {
	Key      repository.StockKey
	Quantity int32
	Note     string
}

// Reserve переносит Quantity из available в reserved и возвращает handle резерва.
// Если available < Quantity - *InsufficientStockError{Available}, состояние не меняется.
func (s *StockLedger) Reserve(ctx context.Context, in ReserveInput) (repository.Reservation, error) {
	const op = "reserve"
	log := observability.L(ctx, s.logger).With(zap.String("op", op), zap.Stringer("stock_key", in.Key))

	if err := validateKey(in.Key); err != nil {
		return fail(s, log, op, repository.Reservation{}, err)
	}
	if in.Quantity <= 0 {
		return fail(s, log, op, repository.Reservation{}, fmt.Errorf("%w: reserve quantity must be > 0, got %d", ErrInvalidQuantity, in.Quantity))
	}

	var (
		res       repository.Reservation
		movements []repository.Movement
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		movements = movements[:0]

		rec, err := tx.LockStock(ctx, in.Key)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStockRecordNotFound
			}
			return err
		}

		if rec.QuantityAvailable < in.Quantity {
			return &InsufficientStockError{Available: rec.QuantityAvailable, Requested: in.Quantity}
		}

		now := s.now()
		rec.QuantityAvailable -= in.Quantity
		rec.QuantityReserved += in.Quantity
		rec.UpdatedAt = now
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}

		res = repository.Reservation{
			ID:            s.newID(),
			StockRecordID: rec.ID,
			Key:           rec.Key,
			Quantity:      in.Quantity,
			Status:        repository.ReservationActive,
			Reference:     in.Reference,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}

		m, err := s.record(ctx, tx, rec, repository.MovementReserve, -in.Quantity, res.ID, in.Note)
		if err != nil {
			return err
		}
		movements = append(movements, m)
		return nil
	})
	if err != nil {
		return fail(s, log, op, repository.Reservation{}, err)
	}

	s.succeed(op, movements)
	log.Info("stock reserved",
		zap.String("reservation_id", res.ID),
		zap.Int32("quantity", res.Quantity),
	)
	return res, nil
}

// Adjust меняет количество активного резерва на newQuantity.
// Рост проверяется против available (он уже не включает исходный резерв),
// уменьшение возвращает разницу в available безусловно, равное количество - no-op.
// newQuantity == 0 допустим: резерв остаётся активным с нулевым количеством.
func (s *StockLedger) Adjust(ctx context.Context, reservationID string, newQuantity int32) (repository.Reservation, error) {
	const op = "adjust"
	log := observability.L(ctx, s.logger).With(zap.String("op", op), zap.String("reservation_id", reservationID))

	if newQuantity < 0 {
		return fail(s, log, op, repository.Reservation{}, fmt.Errorf("%w: adjust quantity must be >= 0, got %d", ErrInvalidQuantity, newQuantity))
	}

	var (
		res       repository.Reservation
		movements []repository.Movement
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		movements = movements[:0]

		var err error
		res, err = s.lockActiveReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if newQuantity == res.Quantity {
			return nil
		}

		rec, err := s.lockReservedStock(ctx, tx, res)
		if err != nil {
			return err
		}

		var delta int32
		if newQuantity > res.Quantity {
			grow := newQuantity - res.Quantity
			if rec.QuantityAvailable < grow {
				return &InsufficientStockError{Available: rec.QuantityAvailable, Requested: grow}
			}
			rec.QuantityAvailable -= grow
			rec.QuantityReserved += grow
			delta = -grow
		} else {
			shrink := res.Quantity - newQuantity
			if rec.QuantityReserved < shrink {
				return invariantError(rec, shrink)
			}
			rec.QuantityAvailable += shrink
			rec.QuantityReserved -= shrink
			delta = shrink
		}

		now := s.now()
		rec.UpdatedAt = now
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}

		res.Quantity = newQuantity
		res.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		m, err := s.record(ctx, tx, rec, repository.MovementAdjust, delta, res.ID, "")
		if err != nil {
			return err
		}
		movements = append(movements, m)
		return nil
	})
	if err != nil {
		return fail(s, log, op, repository.Reservation{}, err)
	}

	s.succeed(op, movements)
	log.Info("reservation adjusted", zap.Int32("quantity", res.Quantity))
	return res, nil
}

// Release возвращает весь зарезервированный объём в available и закрывает резерв.
// Повторный release (или неизвестный id) - ErrInvalidReservation, счётчики не трогаются.
func (s *StockLedger) Release(ctx context.Context, reservationID string) error {
	_, err := s.closeReservation(ctx, "release", reservationID, repository.ReservationReleased)
	return err
}

// Fulfill завершает продажу: зарезервированный объём списывается со склада, резерв закрывается.
func (s *StockLedger) Fulfill(ctx context.Context, reservationID string) error {
	_, err := s.closeReservation(ctx, "fulfill", reservationID, repository.ReservationFulfilled)
	return err
}

// closeReservation общая часть Release и Fulfill: обе операции закрывают активный резерв целиком
func (s *StockLedger) closeReservation(ctx context.Context, op, reservationID string, status repository.ReservationStatus) (repository.Reservation, error) {
	log := observability.L(ctx, s.logger).With(zap.String("op", op), zap.String("reservation_id", reservationID))

	var (
		res       repository.Reservation
		movements []repository.Movement
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		movements = movements[:0]

		var err error
		res, err = s.lockActiveReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}

		rec, err := s.lockReservedStock(ctx, tx, res)
		if err != nil {
			return err
		}

		if rec.QuantityReserved < res.Quantity {
			return invariantError(rec, res.Quantity)
		}

		var (
			kind  repository.MovementKind
			delta int32
		)
		switch status {
		case repository.ReservationReleased:
			rec.QuantityAvailable += res.Quantity
			kind, delta = repository.MovementRelease, res.Quantity
		case repository.ReservationFulfilled:
			kind, delta = repository.MovementSale, -res.Quantity
		default:
			return fmt.Errorf("unexpected reservation status %q", status)
		}
		rec.QuantityReserved -= res.Quantity

		now := s.now()
		rec.UpdatedAt = now
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}

		res.Status = status
		res.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		m, err := s.record(ctx, tx, rec, kind, delta, res.ID, "")
		if err != nil {
			return err
		}
		movements = append(movements, m)
		return nil
	})
	if err != nil {
		return fail(s, log, op, repository.Reservation{}, err)
	}

	s.succeed(op, movements)
	log.Info("reservation closed",
		zap.String("status", string(status)),
		zap.Int32("quantity", res.Quantity),
	)
	return res, nil
}

// Restock добавляет Quantity в available. Запись склада создаётся, если её ещё нет.
func (s *StockLedger) Restock(ctx context.Context, in RestockInput) (repository.StockRecord, error) {
	const op = "restock"
	log := observability.L(ctx, s.logger).With(zap.String("op", op), zap.Stringer("stock_key", in.Key))

	if err := validateKey(in.Key); err != nil {
		return fail(s, log, op, repository.StockRecord{}, err)
	}
	if in.Quantity <= 0 {
		return fail(s, log, op, repository.StockRecord{}, fmt.Errorf("%w: restock quantity must be > 0, got %d", ErrInvalidQuantity, in.Quantity))
	}

	var (
		rec       repository.StockRecord
		movements []repository.Movement
	)
	err := s.repo.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		movements = movements[:0]

		var err error
		rec, err = tx.CreateStock(ctx, in.Key)
		if err != nil {
			return err
		}

		if int64(rec.Total())+int64(in.Quantity) > math.MaxInt32 {
			return fmt.Errorf("%w: restock of %d overflows stock total %d", ErrInvalidQuantity, in.Quantity, rec.Total())
		}

		rec.QuantityAvailable += in.Quantity
		rec.UpdatedAt = s.now()
		if err := tx.UpdateStock(ctx, rec); err != nil {
			return err
		}

		m, err := s.record(ctx, tx, rec, repository.MovementRestock, in.Quantity, "", in.Note)
		if err != nil {
			return err
		}
		movements = append(movements, m)
		return nil
	})
	if err != nil {
		return fail(s, log, op, repository.StockRecord{}, err)
	}

	s.succeed(op, movements)
	log.Info("stock restocked",
		zap.Int32("quantity", in.Quantity),
		zap.Int32("available", rec.QuantityAvailable),
	)
	return rec, nil
}

// GetStock возвращает текущие счётчики записи
func (s *StockLedger) GetStock(ctx context.Context, key repository.StockKey) (repository.StockRecord, error) {
	if err := validateKey(key); err != nil {
		return repository.StockRecord{}, err
	}
	rec, err := s.repo.GetStock(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.StockRecord{}, ErrStockRecordNotFound
		}
		return repository.StockRecord{}, storageError("get stock", err)
	}
	return rec, nil
}

// GetReservation возвращает резерв по id в любом статусе
func (s *StockLedger) GetReservation(ctx context.Context, id string) (repository.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Reservation{}, ErrInvalidReservation
		}
		return repository.Reservation{}, storageError("get reservation", err)
	}
	return res, nil
}

// ListMovements возвращает последние движения записи. limit <= 0 - значение по умолчанию.
func (s *StockLedger) ListMovements(ctx context.Context, key repository.StockKey, limit int) ([]repository.Movement, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMovementsLimit
	}
	if limit > maxMovementsLimit {
		limit = maxMovementsLimit
	}
	movements, err := s.repo.ListMovements(ctx, key, limit)
	if err != nil {
		return nil, storageError("list movements", err)
	}
	return movements, nil
}

// Ping проверяет хранилище, используется в health check
func (s *StockLedger) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *StockLedger) lockActiveReservation(ctx context.Context, tx repository.Tx, id string) (repository.Reservation, error) {
	if id == "" {
		return repository.Reservation{}, fmt.Errorf("%w: empty reservation id", ErrInvalidReservation)
	}
	res, err := tx.LockReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Reservation{}, fmt.Errorf("%w: reservation %s not found", ErrInvalidReservation, id)
		}
		return repository.Reservation{}, err
	}
	if res.Status != repository.ReservationActive {
		return repository.Reservation{}, fmt.Errorf("%w: reservation %s is %s", ErrInvalidReservation, id, res.Status)
	}
	return res, nil
}

func (s *StockLedger) lockReservedStock(ctx context.Context, tx repository.Tx, res repository.Reservation) (repository.StockRecord, error) {
	rec, err := tx.LockStockByID(ctx, res.StockRecordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.StockRecord{}, fmt.Errorf("%w: stock record %d of reservation %s is missing", ErrInvariantViolation, res.StockRecordID, res.ID)
		}
		return repository.StockRecord{}, err
	}
	return rec, nil
}

// record пишет движение и outbox событие в текущей транзакции
func (s *StockLedger) record(ctx context.Context, tx repository.Tx, rec repository.StockRecord, kind repository.MovementKind, delta int32, reservationID, note string) (repository.Movement, error) {
	m := repository.Movement{
		StockRecordID: rec.ID,
		Key:           rec.Key,
		QuantityDelta: delta,
		Kind:          kind,
		ReservationID: reservationID,
		Note:          note,
		CreatedAt:     rec.UpdatedAt,
	}
	if err := tx.AppendMovement(ctx, m); err != nil {
		return repository.Movement{}, err
	}

	eventID := s.newID()
	payload, err := newMovementEvent(eventID, rec.UpdatedAt, rec, m).marshal()
	if err != nil {
		return repository.Movement{}, fmt.Errorf("marshal movement event: %w", err)
	}
	if err := tx.AppendOutbox(ctx, repository.OutboxEvent{
		EventID:     eventID,
		AggregateID: rec.Key.String(),
		Topic:       s.movementsTopic,
		Payload:     payload,
		CreatedAt:   rec.UpdatedAt,
	}); err != nil {
		return repository.Movement{}, err
	}
	return m, nil
}

func (s *StockLedger) succeed(op string, movements []repository.Movement) {
	s.metrics.ObserveOperation(op, ResultOK)
	for _, m := range movements {
		s.metrics.ObserveMovement(m.Kind, m.QuantityDelta)
	}
}

// fail классифицирует ошибку: доменные возвращаются как есть, остальные оборачиваются в ErrStorage
func fail[T any](s *StockLedger, log *zap.Logger, op string, zero T, err error) (T, error) {
	switch {
	case isInsufficient(err):
		s.metrics.ObserveOperation(op, ResultInsufficientStock)
		log.Info("insufficient stock", zap.Error(err))
		return zero, err
	case errors.Is(err, ErrInvariantViolation):
		s.metrics.ObserveOperation(op, ResultInvariant)
		log.Error("stock invariant violation, transaction rolled back", zap.Error(err))
		return zero, err
	case isDomainError(err):
		s.metrics.ObserveOperation(op, ResultInvalid)
		log.Warn("stock operation rejected", zap.Error(err))
		return zero, err
	}
	s.metrics.ObserveOperation(op, ResultStorageError)
	log.Error("stock operation failed", zap.Error(err))
	return zero, storageError(op, err)
}

func isInsufficient(err error) bool {
	_, ok := AsInsufficientStock(err)
	return ok
}

func invariantError(rec repository.StockRecord, sub int32) error {
	return fmt.Errorf("%w: record %d (%s): cannot subtract %d from reserved=%d",
		ErrInvariantViolation, rec.ID, rec.Key, sub, rec.QuantityReserved)
}

func validateKey(key repository.StockKey) error {
	if strings.TrimSpace(key.ProductID) == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidStockKey)
	}
	if strings.TrimSpace(key.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidStockKey)
	}
	return nil
}
