package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

type idempotencyEntry struct {
	value     string
	expiresAt time.Time
}

// IdempotencyStore реализует repository.IdempotencyStore используя in-memory map
// Используется для dev/test окружений, когда Redis не настроен.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

// NewIdempotencyStore создаёт новый in-memory store
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

// Get возвращает значение, если ttl ещё не истёк
func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()

	entry, ok := s.entries[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return entry.value, nil
}

// SetIfAbsent сохраняет value, если ключа нет или он протух
func (s *IdempotencyStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()

	if entry, ok := s.entries[key]; ok {
		return false, entry.value, nil
	}
	s.entries[key] = idempotencyEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, value, nil
}

// cleanupExpiredLocked удаляет протухшие записи (вызывается с уже захваченным lock)
func (s *IdempotencyStore) cleanupExpiredLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
