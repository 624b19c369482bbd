package service

import "github.com/Epky/GA-Enterprice-sub001/internal/repository"

// Результаты операций для метрик
const (
	ResultOK                = "ok"
	ResultInsufficientStock = "insufficient_stock"
	ResultInvalid           = "invalid"
	ResultInvariant         = "invariant_violation"
	ResultStorageError      = "storage_error"
)

// Metrics собирает счётчики операций журнала.
// Реализация на prometheus лежит в internal/metrics, в тестах используется NopMetrics.
type Metrics interface {
	// ObserveOperation учитывает результат операции (reserve/adjust/release/...)
	ObserveOperation(op, result string)
	// ObserveMovement учитывает записанное движение
	ObserveMovement(kind repository.MovementKind, delta int32)
}

// NopMetrics ничего не делает
type NopMetrics struct{}

// ObserveOperation ничего не делает
func (NopMetrics) ObserveOperation(string, string) {}

// ObserveMovement ничего не делает
func (NopMetrics) ObserveMovement(repository.MovementKind, int32) {}
