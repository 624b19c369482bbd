package middleware

import (
	"context"
	"net/http"
)

// IdempotencyKeyHeader заголовок, по которому повтор POST запроса распознаётся как тот же запрос
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

type ctxKeyIdempotencyKey struct{}

var idempotencyKey = ctxKeyIdempotencyKey{}

// WithIdempotencyKey - HTTP middleware: читает заголовок Idempotency-Key и кладёт его в context.
// Заголовок необязателен, слишком длинный ключ - 400.
func WithIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			http.Error(w, "Idempotency-Key is too long", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdempotencyKey(r.Context(), key)))
	})
}

// ContextWithIdempotencyKey сохраняет ключ идемпотентности в контексте
func ContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

// IdempotencyKeyFromContext возвращает ключ идемпотентности, если он был передан
func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey).(string)
	return key, ok
}
