package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyRepository)(nil)

// IdempotencyRepository реализует IdempotencyStore используя Redis строки с TTL
type IdempotencyRepository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewIdempotencyRepository создаёт новый Redis idempotency repository.
// prefix отделяет пространства ключей (например "idem:reserve" и "idem:order-cancelled").
func NewIdempotencyRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (r *IdempotencyRepository) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// Get получает сохранённое значение по ключу
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		r.logger.Error("failed to get idempotency key from redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return "", fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return value, nil
}

// SetIfAbsent сохраняет значение через SET NX. Если ключ уже занят - читает текущее значение.
func (r *IdempotencyRepository) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, string, error) {
	rkey := r.redisKey(key)

	stored, err := r.client.SetNX(ctx, rkey, value, ttl).Result()
	if err != nil {
		r.logger.Error("failed to set idempotency key in redis",
			zap.Error(err),
			zap.String("key", key),
		)
		return false, "", fmt.Errorf("failed to set idempotency key: %w", err)
	}
	if stored {
		r.logger.Debug("idempotency key stored",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
		)
		return true, value, nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		return false, "", err
	}
	return false, existing, nil
}
