package service

import (
	"errors"
	"fmt"
)

// InsufficientStockError возвращается, когда запрошенное количество больше доступного.
// Available - quantity_available записи в момент проверки, его показывают пользователю.
type InsufficientStockError struct {
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// AsInsufficientStock достаёт *InsufficientStockError из цепочки ошибок
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

var (
	// ErrInvalidReservation - резерв не существует или уже не активен (release/fulfill). Ошибка вызывающего кода.
	ErrInvalidReservation = errors.New("invalid reservation")
	// ErrInvalidQuantity - количество вне допустимого диапазона
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidStockKey - не указан product_id или location
	ErrInvalidStockKey = errors.New("invalid stock key")
	// ErrStockRecordNotFound - для ключа нет записи склада
	ErrStockRecordNotFound = errors.New("stock record not found")
	// ErrInvariantViolation - операция увела бы счётчик ниже нуля. Транзакция откатывается.
	ErrInvariantViolation = errors.New("stock invariant violation")
	// ErrIdempotencyKeyReused - ключ идемпотентности уже использован для запроса с другими параметрами
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different request")
	// ErrStorage - хранилище не смогло выполнить транзакцию. Никаких частичных изменений не было.
	ErrStorage = errors.New("storage failure")
)

// isDomainError true для ошибок, которые сервис возвращает как есть, без обёртки в ErrStorage
func isDomainError(err error) bool {
	if _, ok := AsInsufficientStock(err); ok {
		return true
	}
	return errors.Is(err, ErrInvalidReservation) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidStockKey) ||
		errors.Is(err, ErrStockRecordNotFound) ||
		errors.Is(err, ErrInvariantViolation)
}

// storageError оборачивает ошибку хранилища так, чтобы errors.Is(err, ErrStorage) был true
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
