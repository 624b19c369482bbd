package repository

import (
	"context"
	"time"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=IdempotencyStore --dir=. --output=./mocks --outpkg=mocks

// IdempotencyStore хранит результат запроса по ключу идемпотентности на время ttl.
// Используется для Idempotency-Key в HTTP и для дедупликации событий Kafka.
type IdempotencyStore interface {
	// Get возвращает сохранённое значение. ErrNotFound, если ключа нет или ttl истёк
	Get(ctx context.Context, key string) (string, error)

	// SetIfAbsent сохраняет value, только если ключа ещё нет.
	// Возвращает stored=false и уже сохранённое значение, если ключ занят.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (stored bool, existing string, err error)
}
