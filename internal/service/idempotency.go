package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/platform/observability"
)

// IdempotentReserver делает Reserve повторяемым по ключу идемпотентности:
// повтор запроса с тем же ключом возвращает уже созданный резерв вместо нового.
type IdempotentReserver struct {
	ledger *StockLedger
	store  repository.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentReserver создаёт обёртку над ledger. ttl - сколько помнить ключ.
func NewIdempotentReserver(ledger *StockLedger, store repository.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotentReserver {
	return &IdempotentReserver{
		ledger: ledger,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Reserve резервирует товар. replayed=true, если резерв уже был создан раньше с тем же ключом.
// Пустой ключ означает обычный Reserve без идемпотентности.
func (r *IdempotentReserver) Reserve(ctx context.Context, idempotencyKey string, in ReserveInput) (res repository.Reservation, replayed bool, err error) {
	if idempotencyKey == "" {
		res, err = r.ledger.Reserve(ctx, in)
		return res, false, err
	}

	log := observability.L(ctx, r.logger).With(zap.String("idempotency_key", idempotencyKey))
	fingerprint := requestFingerprint(in)

	stored, err := r.store.Get(ctx, idempotencyKey)
	switch {
	case err == nil:
		existingID, err := matchFingerprint(stored, fingerprint)
		if err != nil {
			log.Warn("idempotency key reused with different request", zap.String("reservation_id", existingID))
			return repository.Reservation{}, false, err
		}
		log.Info("idempotent replay", zap.String("reservation_id", existingID))
		res, err = r.ledger.GetReservation(ctx, existingID)
		return res, true, err
	case !errors.Is(err, repository.ErrNotFound):
		return repository.Reservation{}, false, storageError("idempotency lookup", err)
	}

	res, err = r.ledger.Reserve(ctx, in)
	if err != nil {
		return repository.Reservation{}, false, err
	}

	ok, stored, err := r.store.SetIfAbsent(ctx, idempotencyKey, res.ID+valueSeparator+fingerprint, r.ttl)
	if err != nil {
		// резерв уже создан, ключ просто не запомнится
		log.Warn("failed to store idempotency key", zap.Error(err), zap.String("reservation_id", res.ID))
		return res, false, nil
	}
	if ok {
		return res, false, nil
	}

	// параллельный запрос с тем же ключом успел раньше: наш резерв лишний
	existingID, mismatch := matchFingerprint(stored, fingerprint)
	log.Info("idempotency race lost, releasing duplicate reservation",
		zap.String("reservation_id", res.ID),
		zap.String("winner_reservation_id", existingID),
	)
	if err := r.ledger.Release(ctx, res.ID); err != nil {
		log.Error("failed to release duplicate reservation", zap.Error(err), zap.String("reservation_id", res.ID))
	}
	if mismatch != nil {
		return repository.Reservation{}, false, mismatch
	}
	res, err = r.ledger.GetReservation(ctx, existingID)
	return res, true, err
}

// valueSeparator разделяет id резерва и отпечаток запроса в сохранённом значении
const valueSeparator = "|"

// requestFingerprint - sha256 от параметров резерва. Note не входит: на результат он не влияет.
func requestFingerprint(in ReserveInput) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%s",
		in.Key.ProductID, in.Key.VariantID, in.Key.Location, in.Quantity, in.Reference)))
	return hex.EncodeToString(sum[:])
}

// matchFingerprint разбирает сохранённое значение "id|fingerprint" и сверяет отпечаток.
// Значение без отпечатка принимается как есть.
func matchFingerprint(stored, fingerprint string) (string, error) {
	id, storedFingerprint, found := strings.Cut(stored, valueSeparator)
	if found && storedFingerprint != fingerprint {
		return id, fmt.Errorf("%w: reservation %s", ErrIdempotencyKeyReused, id)
	}
	return id, nil
}
